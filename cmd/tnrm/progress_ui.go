package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/TNRM/internal/app/run"
	"github.com/John-Robertt/TNRM/internal/config"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run/resolve 只发事件，CLI 决定如何展示
// - 管线严格串行，事件来自单一 goroutine，无需加锁
type progressUI struct {
	w io.Writer

	startedAt time.Time
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不写输出/不写缓存)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] TNRM run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	fmt.Fprintf(p.w, "  column: %s\n", eff.Column)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  batch_size: %d\n", eff.BatchSize)
	fmt.Fprintf(p.w, "  pause: %s\n", eff.Pause)
	fmt.Fprintf(p.w, "  endpoint: %s\n", truncate(eff.Endpoint, 120))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s\n", eff.Output)
	fmt.Fprintf(p.w, "  cache: %s\n", filepath.Join(filepath.Dir(eff.Output), "cache"))
	if eff.Apply {
		fmt.Fprintf(p.w, "  report: %s\n", filepath.Join(filepath.Dir(eff.Output), "cache", "report.json"))
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	switch name {
	case "load":
		fmt.Fprintf(p.w, "读表: rows=%d columns=%d (%s)\n",
			intField(fields, "rows"), intField(fields, "columns"), formatShortDuration(dur),
		)
	case "names":
		fmt.Fprintf(p.w, "提名: distinct=%d skipped=%d (%s)\n",
			intField(fields, "distinct"), intField(fields, "skipped"), formatShortDuration(dur),
		)
	case "cache":
		fmt.Fprintf(p.w, "缓存: hits=%d (%s)\n",
			intField(fields, "hits"), formatShortDuration(dur),
		)
	case "join":
		fmt.Fprintf(p.w, "合并: rows=%d columns=%d (%s)\n\n",
			intField(fields, "rows"), intField(fields, "columns"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnTierStart(tier string, pending, queries, batches int) {
	if queries == 0 {
		fmt.Fprintf(p.w, "[%s] 跳过（无待解析名字）\n", tier)
		return
	}
	fmt.Fprintf(p.w, "[%s] pending=%d queries=%d batches=%d\n", tier, pending, queries, batches)
}

func (p *progressUI) OnBatchDone(tier string, batch, batches, size int, dur time.Duration) {
	fmt.Fprintf(p.w, "[%s] 批次 %d/%d size=%d (%s)\n", tier, batch, batches, size, formatShortDuration(dur))
}

func (p *progressUI) OnTierDone(tier string, matched, remaining int, dur time.Duration) {
	fmt.Fprintf(p.w, "[%s] 完成 matched=%d remaining=%d (%s)\n", tier, matched, remaining, formatShortDuration(dur))
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
