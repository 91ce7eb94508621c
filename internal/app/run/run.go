package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/John-Robertt/TNRM/internal/app"
	"github.com/John-Robertt/TNRM/internal/config"
	"github.com/John-Robertt/TNRM/internal/dataset"
	"github.com/John-Robertt/TNRM/internal/domain"
	"github.com/John-Robertt/TNRM/internal/infra/cache"
	"github.com/John-Robertt/TNRM/internal/resolve"
	"github.com/John-Robertt/TNRM/internal/tnrs"
)

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 失败被"降级"为 report 的 Failure 字段，而不是 error 返回值——
// 调用方永远拿到一份可输出的报告。
func Execute(ctx context.Context, eff config.EffectiveConfig, matcher tnrs.Matcher) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, matcher, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出
// 进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, matcher tnrs.Matcher, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Input:     eff.Input,
		Column:    eff.Column,
		DryRun:    !eff.Apply,
		StartedAt: started,
	}
	if eff.Apply {
		rr.Output = eff.Output
	}

	fail := func(f domain.RunFailure) domain.RunReport {
		rr.Failure = &f
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	// 读表。
	loadStarted := time.Now()
	tbl, err := dataset.Read(eff.Input)
	if err != nil {
		return fail(domain.RunFailure{Code: domain.ErrCodeDatasetFailed, Msg: fmt.Sprintf("读取 %q 失败：%v", eff.Input, err)})
	}
	rr.Rows = len(tbl.Rows)
	if obs != nil {
		obs.OnPhaseDone("load", map[string]any{
			"rows":    len(tbl.Rows),
			"columns": len(tbl.Columns),
		}, time.Since(loadStarted))
	}

	// 提取去重名集（任何网络调用之前完成全部配置校验）。
	namesStarted := time.Now()
	names, skipped, err := app.CollectNames(tbl, eff.Column)
	if err != nil {
		return fail(domain.RunFailure{Code: domain.ErrCodeColumnNotFound, Msg: err.Error()})
	}
	if len(names) == 0 {
		return fail(domain.RunFailure{
			Code: domain.ErrCodeNoNames,
			Msg:  fmt.Sprintf("列 %q 里没有可解析的名字（%d 个单元格均为空/占位）", eff.Column, skipped),
		})
	}
	rr.DistinctNames = len(names)
	rr.SkippedCells = skipped
	if obs != nil {
		obs.OnPhaseDone("names", map[string]any{
			"distinct": len(names),
			"skipped":  skipped,
		}, time.Since(namesStarted))
	}

	// 缓存预热：命中的名字直接入 Ledger，后续 tier 自动跳过。
	store := cache.New(filepath.Dir(eff.Output), !eff.Apply)
	led := resolve.NewLedger()

	cacheStarted := time.Now()
	hits := 0
	for _, n := range names {
		rec, ok, err := store.Read(n)
		if err != nil || !ok {
			continue // 读缓存失败按 miss 处理，走网络
		}
		led.Apply(n, rec)
		hits++
	}
	rr.CacheHits = hits
	if obs != nil {
		obs.OnPhaseDone("cache", map[string]any{"hits": hits}, time.Since(cacheStarted))
	}

	// 三级回退解析。批次失败 => 整个 run 中止（已提交条目保持不变）。
	resolver := &resolve.Resolver{
		Matcher:   matcher,
		BatchSize: eff.BatchSize,
		Pause:     eff.Pause,
	}
	if obs != nil {
		resolver.Observer = obs
	}
	if err := resolver.Run(ctx, names, led); err != nil {
		f := domain.RunFailure{Code: domain.ErrCodeTNRSFailed, Msg: err.Error()}
		var te *resolve.TierError
		if errors.As(err, &te) {
			f.Tier = te.Tier
			f.Batch = te.Batch
		}
		return fail(f)
	}

	// 合并与汇总。
	joinStarted := time.Now()
	resolve.Finalize(led, names)
	merged, err := resolve.Join(tbl, eff.Column, led)
	if err != nil {
		// CollectNames 已校验过列存在，走到这里说明实现 bug。
		return fail(domain.RunFailure{Code: domain.ErrCodeColumnNotFound, Msg: err.Error()})
	}
	summary, err := resolve.Summarize(merged)
	if err != nil {
		return fail(domain.RunFailure{Code: domain.ErrCodeDatasetFailed, Msg: err.Error()})
	}
	rr.Summary = summary
	if obs != nil {
		obs.OnPhaseDone("join", map[string]any{
			"rows":    len(merged.Rows),
			"columns": len(merged.Columns),
		}, time.Since(joinStarted))
	}

	// apply：写输出文件 + 回写缓存。dry-run 禁止任何落盘。
	if eff.Apply {
		if err := dataset.Write(eff.Output, merged); err != nil {
			return fail(domain.RunFailure{Code: domain.ErrCodeIOFailed, Msg: fmt.Sprintf("写入 %q 失败：%v", eff.Output, err)})
		}
		for _, n := range names {
			rec, ok := led.Get(n)
			if !ok || !rec.Matched() {
				continue
			}
			// 缓存回写 best-effort：失败不影响 run 结果。
			_ = store.Write(n, rec)
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}
