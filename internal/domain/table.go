package domain

// Table 是已物化的表格数据：有序列名 + 行（全部按字符串处理）。
//
// 不变量（实现必须遵守）：
// - 每行的单元格数与 Columns 等长（读入层负责补齐/截断）
// - 行顺序即输入顺序；任何处理都不得重排或增删行
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex 按列名精确查找（列名在读入时已做首尾去空白）。
func (t Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}
