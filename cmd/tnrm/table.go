package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/John-Robertt/TNRM/internal/domain"
)

// renderSummaryTable 把 Match Level 频次渲染成终端表格。
// 空 tier 桶（该行没有任何解析记录）展示为 "(none)"。
func renderSummaryTable(summary []domain.TierCount) string {
	if len(summary) == 0 {
		return ""
	}

	tw := table.NewWriter()
	style := table.StyleRounded
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"Match Level", "Rows"})

	total := 0
	for _, tc := range summary {
		tier := tc.Tier
		if tier == "" {
			tier = "(none)"
		}
		tw.AppendRow(table.Row{tier, tc.Count})
		total += tc.Count
	}
	tw.AppendFooter(table.Row{"total", strconv.Itoa(total)})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft, AlignFooter: text.AlignRight},
	})

	return tw.Render()
}
