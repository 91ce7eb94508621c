package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/TNRM/internal/domain"
	"github.com/John-Robertt/TNRM/internal/normalize"
	"github.com/John-Robertt/TNRM/internal/tnrs"
)

// DefaultBatchSize 是单次请求的名字数上限默认值（服务端对请求体量有
// 上限约束；这不是正确性参数）。
const DefaultBatchSize = 200

// genus tier 的 rank 门禁：属名查询命中"种级"结果说明服务端做了错误
// 的向下匹配，必须拒绝。
var genusRanks = map[string]struct{}{
	"genus":   {},
	"family":  {},
	"order":   {},
	"class":   {},
	"phylum":  {},
	"kingdom": {},
}

// Resolver 按固定顺序执行三级回退解析：原名 -> 清洗名 -> 属名，
// 每一级只处理上一级结束时仍未匹配的名字。
//
// 约束：
// - 严格串行：tier 之间是同步屏障，批次之间依次执行
// - Ledger 只由当前 tier 写入（单调规则见 Ledger.Apply）
// - 任何批次失败 => 整个 run 中止（已提交的 Ledger 条目保持不变）
type Resolver struct {
	Matcher   tnrs.Matcher
	BatchSize int

	// Pause 是批间停顿（对服务端的礼貌约定，非正确性机制）。
	// Sleep 可注入：nil 时用 time.Sleep，测试注入空实现免等待。
	Pause time.Duration
	Sleep func(time.Duration)

	Observer Observer
}

// TierError 标记失败发生在哪个 tier 的第几个批次。
type TierError struct {
	Tier    string
	Batch   int
	Batches int
	Err     error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("tier=%s batch=%d/%d：%v", e.Tier, e.Batch, e.Batches, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }

// Run 对去重后的名字集执行完整的三级解析并就地更新 led。
// names 必须已去重（app.CollectNames 的输出）；已匹配的名字（例如
// 缓存预热写入的）会被各 tier 自动跳过。
func (r *Resolver) Run(ctx context.Context, names []domain.Name, led *Ledger) error {
	if err := r.runOriginal(ctx, names, led); err != nil {
		return err
	}
	if err := r.runCleaned(ctx, names, led); err != nil {
		return err
	}
	if err := r.runGenus(ctx, names, led); err != nil {
		return err
	}

	// 收尾：仍无 id 且未被标记为 genus 失败的名字记最终未匹配。
	// （从未被任何 tier 触达的名字没有记录，由 Finalize 兜底。）
	for _, n := range names {
		if led.Matched(n) {
			continue
		}
		if rec, ok := led.Get(n); ok && rec.MatchTier == domain.TierNoMatchGenusFailed {
			continue
		}
		led.Demote(n, domain.TierNoMatchFinal)
	}
	return nil
}

// runOriginal：tier 1。查询集 = 全部仍未解析的原名；首候选无条件采纳；
// 零候选写占位记录（仅当该名字还没有任何记录）。
func (r *Resolver) runOriginal(ctx context.Context, names []domain.Name, led *Ledger) error {
	pending := led.Unresolved(names)
	queries := make([]string, 0, len(pending))
	for _, n := range pending {
		queries = append(queries, string(n))
	}

	return r.runTier(ctx, domain.TierSpeciesOriginal, names, pending, queries, led, func(res tnrs.Result) {
		n := domain.Name(res.Query)
		if led.Matched(n) {
			return
		}
		if cand, ok := firstCandidate(res); ok {
			led.Apply(n, matchRecord(res.Query, domain.TierSpeciesOriginal, cand))
			return
		}
		if _, exists := led.Get(n); !exists {
			led.Apply(n, missRecord(res.Query, domain.TierNoMatchInitial))
		}
	})
}

// runCleaned：tier 2。对仍未匹配的名字求清洗串；清洗无变化/无结果的
// 名字跳过。清洗串 -> 原名是一对多反查表（多个原名可能收敛到同一清洗
// 串），每个 tier 现建，不跨 run 持久化。
func (r *Resolver) runCleaned(ctx context.Context, names []domain.Name, led *Ledger) error {
	pending := led.Unresolved(names)

	byClean := make(map[string][]domain.Name, len(pending))
	queries := make([]string, 0, len(pending))
	for _, n := range pending {
		cleaned, ok := normalize.Clean(string(n))
		if !ok || cleaned == string(n) {
			continue
		}
		if _, seen := byClean[cleaned]; !seen {
			queries = append(queries, cleaned)
		}
		byClean[cleaned] = append(byClean[cleaned], n)
	}

	return r.runTier(ctx, domain.TierSpeciesCleaned, names, pending, queries, led, func(res tnrs.Result) {
		cand, ok := firstCandidate(res)
		if !ok {
			// 清洗串也没命中：占位记录已在 tier 1 写好，留给收尾处理。
			return
		}
		for _, n := range byClean[res.Query] {
			if led.Matched(n) {
				continue
			}
			led.Apply(n, matchRecord(res.Query, domain.TierSpeciesCleaned, cand))
		}
	})
}

// runGenus：tier 3。属名 -> 原名是一对多反查表（一个属扇出到共享该属
// 的所有名字）。首候选必须通过 rank 门禁才生效；零候选或门禁失败的
// 属名，其映射到的名字全部记 genus 失败终态。
func (r *Resolver) runGenus(ctx context.Context, names []domain.Name, led *Ledger) error {
	pending := led.Unresolved(names)

	byGenus := make(map[string][]domain.Name, len(pending))
	queries := make([]string, 0, len(pending))
	for _, n := range pending {
		genus, ok := normalize.Genus(string(n))
		if !ok {
			continue
		}
		if _, seen := byGenus[genus]; !seen {
			queries = append(queries, genus)
		}
		byGenus[genus] = append(byGenus[genus], n)
	}

	return r.runTier(ctx, domain.TierGenus, names, pending, queries, led, func(res tnrs.Result) {
		originals := byGenus[res.Query]
		if len(originals) == 0 {
			return
		}

		cand, ok := firstCandidate(res)
		if ok && genusRankAllowed(cand.Taxon.Rank) {
			for _, n := range originals {
				if led.Matched(n) {
					continue
				}
				led.Apply(n, matchRecord(res.Query, domain.TierGenus, cand))
			}
			return
		}

		// 零候选或 rank 门禁失败：终态 genus 失败。
		for _, n := range originals {
			if led.Matched(n) {
				continue
			}
			if _, exists := led.Get(n); !exists {
				led.Apply(n, missRecord(string(n), domain.TierNoMatchGenusFailed))
				continue
			}
			led.Demote(n, domain.TierNoMatchGenusFailed)
		}
	})
}

// runTier 执行一个 tier 的全部批次（查询集为空则整体跳过，零网络调用）。
func (r *Resolver) runTier(ctx context.Context, tier string, names, pending []domain.Name, queries []string, led *Ledger, apply func(tnrs.Result)) error {
	started := time.Now()
	size := r.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	batches := 0
	if len(queries) > 0 {
		batches = (len(queries) + size - 1) / size
	}
	if r.Observer != nil {
		r.Observer.OnTierStart(tier, len(pending), len(queries), batches)
	}

	for i := 0; i < len(queries); i += size {
		end := i + size
		if end > len(queries) {
			end = len(queries)
		}
		batch := queries[i:end]
		batchIdx := i/size + 1

		batchStarted := time.Now()
		results, err := r.Matcher.MatchNames(ctx, batch)
		if err != nil {
			return &TierError{Tier: tier, Batch: batchIdx, Batches: batches, Err: err}
		}
		for _, res := range results {
			apply(res)
		}
		if r.Observer != nil {
			r.Observer.OnBatchDone(tier, batchIdx, batches, len(batch), time.Since(batchStarted))
		}

		// 批间停顿；最后一个批次之后不停。
		if end < len(queries) && r.Pause > 0 {
			r.sleep(r.Pause)
		}
	}

	if r.Observer != nil {
		remaining := len(led.Unresolved(names))
		r.Observer.OnTierDone(tier, len(names)-remaining, remaining, time.Since(started))
	}
	return nil
}

func (r *Resolver) sleep(d time.Duration) {
	if r.Sleep != nil {
		r.Sleep(d)
		return
	}
	time.Sleep(d)
}

// firstCandidate 取服务端排序的首个候选（tie-break 完全交给服务端）。
// 缺 id 的候选视同没有候选，保证"匹配层级必伴随非空 id"的不变量。
func firstCandidate(res tnrs.Result) (tnrs.Candidate, bool) {
	if len(res.Candidates) == 0 {
		return tnrs.Candidate{}, false
	}
	c := res.Candidates[0]
	if c.Taxon.OTTID == nil {
		return tnrs.Candidate{}, false
	}
	return c, true
}

func genusRankAllowed(rank string) bool {
	_, ok := genusRanks[strings.ToLower(strings.TrimSpace(rank))]
	return ok
}

func matchRecord(query, tier string, cand tnrs.Candidate) domain.ResolutionRecord {
	return domain.ResolutionRecord{
		MatchedName:    cand.Taxon.UniqueName,
		Synonyms:       append([]string(nil), cand.Taxon.Synonyms...),
		TaxonID:        cand.Taxon.OTTID,
		Rank:           cand.Taxon.Rank,
		MatchQuery:     query,
		MatchTier:      tier,
		Approximate:    cand.Approximate,
		IsSynonymInput: cand.IsSynonym,
	}
}

func missRecord(query, tier string) domain.ResolutionRecord {
	return domain.ResolutionRecord{
		Synonyms:   []string{},
		MatchQuery: query,
		MatchTier:  tier,
	}
}
