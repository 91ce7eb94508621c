package run

import (
	"time"

	"github.com/John-Robertt/TNRM/internal/config"
	"github.com/John-Robertt/TNRM/internal/resolve"
)

// Observer 用于把"运行进度/阶段信息"从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 管线严格串行，事件来自单一 goroutine，实现无需加锁
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户
	// 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在 load/names/cache/join 等阶段结束时调用。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)

	// tier/批次级事件直接复用 resolve 的定义。
	resolve.Observer
}
