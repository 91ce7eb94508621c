package resolve

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/TNRM/internal/domain"
)

// 追加到输出表的解析列（固定顺序）。
const (
	ColMatchedName    = "Primary Matched Name"
	ColSynonyms       = "Synonyms"
	ColTaxonID        = "OTT ID"
	ColRank           = "Rank"
	ColMatchQuery     = "Match Query"
	ColMatchTier      = "Match Level"
	ColApproximate    = "Approximate Match"
	ColIsSynonymInput = "Is Synonym Input"
)

// SynonymDelimiter 是同物异名列表在单元格里的连接符。
const SynonymDelimiter = "; "

// ResultColumns 返回解析列名（调用方不得修改返回的底层数组）。
func ResultColumns() []string {
	return []string{
		ColMatchedName, ColSynonyms, ColTaxonID, ColRank,
		ColMatchQuery, ColMatchTier, ColApproximate, ColIsSynonymInput,
	}
}

// Finalize 保证每个去重名都有恰好一条终态记录。管线从未触达的名字
// 记 processing_error——tier 簿记正确时这不该发生，出现即实现 bug。
func Finalize(led *Ledger, names []domain.Name) {
	for _, n := range names {
		if _, ok := led.Get(n); ok {
			continue
		}
		led.Apply(n, missRecord(string(n), domain.TierProcessingError))
	}
}

// Join 把解析列左连接回原始行集：行数与行序严格保留，重复名字的行
// 得到相同的解析值；找不到记录的行（理论上 Finalize 之后不会出现，
// 但空名单元格必然走这里）填全空列。
func Join(t domain.Table, column string, led *Ledger) (domain.Table, error) {
	idx, ok := t.ColumnIndex(column)
	if !ok {
		return domain.Table{}, fmt.Errorf("列 %q 不存在", column)
	}

	out := domain.Table{
		Columns: append(append([]string(nil), t.Columns...), ResultColumns()...),
		Rows:    make([][]string, 0, len(t.Rows)),
	}

	for _, row := range t.Rows {
		cells := append([]string(nil), row...)
		if rec, ok := led.Get(domain.Name(row[idx])); ok {
			cells = append(cells, recordCells(rec)...)
		} else {
			cells = append(cells, "", "", "", "", "", "", "", "")
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// Summarize 对合并后的行集统计 Match Level 频次（空值是独立的桶），
// 计数降序、同计数按 tier 字典序。
func Summarize(t domain.Table) ([]domain.TierCount, error) {
	idx, ok := t.ColumnIndex(ColMatchTier)
	if !ok {
		return nil, fmt.Errorf("列 %q 不存在（Summarize 只接受合并后的表）", ColMatchTier)
	}

	counts := make(map[string]int, 8)
	order := make([]string, 0, 8)
	for _, row := range t.Rows {
		tier := row[idx]
		if _, seen := counts[tier]; !seen {
			order = append(order, tier)
		}
		counts[tier]++
	}

	out := make([]domain.TierCount, 0, len(order))
	for _, tier := range order {
		out = append(out, domain.TierCount{Tier: tier, Count: counts[tier]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tier < out[j].Tier
	})
	return out, nil
}

func recordCells(rec domain.ResolutionRecord) []string {
	id := ""
	if rec.TaxonID != nil {
		id = strconv.FormatInt(*rec.TaxonID, 10)
	}
	return []string{
		rec.MatchedName,
		strings.Join(rec.Synonyms, SynonymDelimiter),
		id,
		rec.Rank,
		rec.MatchQuery,
		rec.MatchTier,
		strconv.FormatBool(rec.Approximate),
		strconv.FormatBool(rec.IsSynonymInput),
	}
}
