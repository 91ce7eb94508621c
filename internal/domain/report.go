package domain

import (
	"sort"
	"time"
)

const (
	ErrCodeDatasetFailed  = "dataset_failed"
	ErrCodeColumnNotFound = "column_not_found"
	ErrCodeNoNames        = "no_names"
	ErrCodeTNRSFailed     = "tnrs_failed"
	ErrCodeIOFailed       = "io_failed"
	ErrCodeConfigInvalid  = "config_invalid"
)

// TierCount 是 Match Level 的频次统计项（Tier 为空串表示"无记录"桶）。
type TierCount struct {
	Tier  string `json:"tier"`
	Count int    `json:"count"`
}

// RunFailure 描述导致整个 run 中止的失败（带足够的定位上下文）。
type RunFailure struct {
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Tier  string `json:"tier,omitempty"`
	Batch int    `json:"batch,omitempty"`
}

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	Input  string `json:"input"`
	Column string `json:"column"`
	Output string `json:"output,omitempty"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Rows          int `json:"rows"`
	DistinctNames int `json:"distinct_names"`
	SkippedCells  int `json:"skipped_cells"`
	CacheHits     int `json:"cache_hits"`

	Summary []TierCount `json:"summary"`
	Failure *RunFailure `json:"failure,omitempty"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 稳定排序：计数降序；计数相同按 tier 字典序
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Summary, func(i, j int) bool {
		if r.Summary[i].Count != r.Summary[j].Count {
			return r.Summary[i].Count > r.Summary[j].Count
		}
		return r.Summary[i].Tier < r.Summary[j].Tier
	})
}

// Failed 表示该 run 是否中止（区别于"有名字没匹配上"——那是正常终态）。
func (r *RunReport) Failed() bool { return r.Failure != nil }
