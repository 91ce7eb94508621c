package resolve

import "time"

// Observer 用于把"tier/批次进度"从解析流程中解耦出来。
//
// 约束：
// - resolve 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件全部来自单一 goroutine（管线串行），实现无需加锁
type Observer interface {
	// OnTierStart 在某个 tier 开始前调用。queries==0 表示该 tier 整体跳过。
	OnTierStart(tier string, pending, queries, batches int)
	// OnBatchDone 在一个批次成功返回后调用（batch 从 1 开始）。
	OnBatchDone(tier string, batch, batches, size int, dur time.Duration)
	// OnTierDone 在某个 tier 结束时调用（含被跳过的 tier）。
	OnTierDone(tier string, matched, remaining int, dur time.Duration)
}
