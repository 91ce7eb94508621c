package domain

// Name 是输入表格里出现的学名原文（逐字节比较：区分大小写、保留空白）。
//
// 约束：去重只按字符串精确相等；不做任何规范化（清洗/取属名属于
// normalize 层，且只影响查询串，不影响 Ledger 的主键）。
type Name string
