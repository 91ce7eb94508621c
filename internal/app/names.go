package app

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/TNRM/internal/domain"
)

// CollectNames 从表的指定列提取去重后的学名集合。
//
// - 去重按单元格原文精确相等（不做任何规范化），保持首次出现顺序
// - 空白单元格与 "nan" 占位（大小写不敏感）被过滤，计入 skipped——
//   它们是"没有名字可解析"，永远不应成为查询
func CollectNames(t domain.Table, column string) (names []domain.Name, skipped int, err error) {
	idx, ok := t.ColumnIndex(column)
	if !ok {
		return nil, 0, fmt.Errorf("列 %q 不存在（可用列：%s）", column, strings.Join(t.Columns, ", "))
	}

	seen := make(map[domain.Name]struct{}, 128)
	names = make([]domain.Name, 0, 128)
	for _, row := range t.Rows {
		cell := row[idx]
		if isMissing(cell) {
			skipped++
			continue
		}
		n := domain.Name(cell)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names, skipped, nil
}

// isMissing 识别"无名字"占位：空白，或表格工具导出的 "nan" 字面量。
func isMissing(cell string) bool {
	s := strings.TrimSpace(cell)
	return s == "" || strings.EqualFold(s, "nan")
}
