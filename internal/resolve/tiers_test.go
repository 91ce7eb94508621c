package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/John-Robertt/TNRM/internal/domain"
	"github.com/John-Robertt/TNRM/internal/tnrs"
)

// scriptedMatcher 按调用顺序回放脚本（一次调用对应一个 tier 的一个批次）。
type scriptedMatcher struct {
	t       *testing.T
	calls   [][]string
	scripts []func(names []string) ([]tnrs.Result, error)
}

func (m *scriptedMatcher) MatchNames(_ context.Context, names []string) ([]tnrs.Result, error) {
	m.calls = append(m.calls, append([]string(nil), names...))
	if len(m.calls) > len(m.scripts) {
		m.t.Fatalf("多余的调用 #%d：%v", len(m.calls), names)
	}
	return m.scripts[len(m.calls)-1](names)
}

func hit(query, uniqueName string, id int64, rank string) tnrs.Result {
	return tnrs.Result{
		Query: query,
		Candidates: []tnrs.Candidate{{
			Taxon: tnrs.Taxon{UniqueName: uniqueName, OTTID: &id, Rank: rank},
		}},
	}
}

func miss(query string) tnrs.Result {
	return tnrs.Result{Query: query}
}

func missesFor(names []string) []tnrs.Result {
	out := make([]tnrs.Result, 0, len(names))
	for _, n := range names {
		out = append(out, miss(n))
	}
	return out
}

func TestRun_TierOrdering_CleanedAfterOriginalFails(t *testing.T) {
	names := []domain.Name{"Quercus alba L."}
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		// tier 1：原名零候选。
		func(qs []string) ([]tnrs.Result, error) { return missesFor(qs), nil },
		// tier 2：清洗串命中。
		func(qs []string) ([]tnrs.Result, error) {
			if len(qs) != 1 || qs[0] != "Quercus alba" {
				t.Fatalf("tier 2 期望查询 [Quercus alba]，实际 %v", qs)
			}
			return []tnrs.Result{hit("Quercus alba", "Quercus alba", 770315, "species")}, nil
		},
		// tier 3：属名——该名字已在 tier 2 匹配，但单词名 Quercus 不再出现。
	}}

	led := NewLedger()
	r := &Resolver{Matcher: m}
	if err := r.Run(context.Background(), names, led); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	rec, ok := led.Get("Quercus alba L.")
	if !ok || rec.MatchTier != domain.TierSpeciesCleaned {
		t.Fatalf("期望 species_cleaned，实际 %+v", rec)
	}
	if rec.MatchQuery != "Quercus alba" {
		t.Fatalf("MatchQuery 应是清洗串，实际 %q", rec.MatchQuery)
	}
	if len(m.calls) != 2 {
		t.Fatalf("tier 3 查询集为空应整体跳过，实际调用 %d 次", len(m.calls))
	}
}

func TestRun_GenusRankGate_SpeciesHitRejected(t *testing.T) {
	names := []domain.Name{"Carex obscura"}
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) { return missesFor(qs), nil }, // tier 1
		// tier 2 被跳过：Clean("Carex obscura") 没有变化（obscura 是小写）。
		// tier 3：属名命中，但首候选是种级——必须被门禁拒绝。
		func(qs []string) ([]tnrs.Result, error) {
			if len(qs) != 1 || qs[0] != "Carex" {
				t.Fatalf("tier 3 期望查询 [Carex]，实际 %v", qs)
			}
			return []tnrs.Result{hit("Carex", "Carex obscura", 999, "species")}, nil
		},
	}}

	led := NewLedger()
	r := &Resolver{Matcher: m}
	if err := r.Run(context.Background(), names, led); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	rec, _ := led.Get("Carex obscura")
	if rec.MatchTier != domain.TierNoMatchGenusFailed {
		t.Fatalf("rank 门禁失败应记 no_match_final_genus_failed，实际 %+v", rec)
	}
	if rec.Matched() {
		t.Fatalf("门禁拒绝后不应有 id：%+v", rec)
	}
}

func TestRun_GenusFanOut(t *testing.T) {
	// 两个名字共享同一属：属查询只发一次，命中后扇出到所有映射名字。
	names := []domain.Name{"Carex unknownia", "Carex mysteriosa"}
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) { return missesFor(qs), nil }, // tier 1
		// tier 2 跳过（清洗无变化）。
		func(qs []string) ([]tnrs.Result, error) {
			if len(qs) != 1 {
				t.Fatalf("同属名字必须去重为一个查询，实际 %v", qs)
			}
			return []tnrs.Result{hit("Carex", "Carex", 123, "genus")}, nil
		},
	}}

	led := NewLedger()
	r := &Resolver{Matcher: m}
	if err := r.Run(context.Background(), names, led); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	for _, n := range names {
		rec, _ := led.Get(n)
		if rec.MatchTier != domain.TierGenus || *rec.TaxonID != 123 {
			t.Fatalf("%s 期望 genus 匹配，实际 %+v", n, rec)
		}
	}
}

func TestRun_AllMatchedSkipsLaterTiers(t *testing.T) {
	names := []domain.Name{"Quercus alba"}
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) {
			return []tnrs.Result{hit("Quercus alba", "Quercus alba", 770315, "species")}, nil
		},
	}}

	led := NewLedger()
	r := &Resolver{Matcher: m}
	if err := r.Run(context.Background(), names, led); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("tier 1 全部命中时 tier 2/3 必须零调用，实际 %d 次", len(m.calls))
	}
}

func TestRun_BatchFailureAbortsRun(t *testing.T) {
	names := []domain.Name{"A a", "B b"}
	boom := errors.New("boom")
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) {
			return []tnrs.Result{hit("A a", "A a", 1, "species")}, nil
		},
		func(qs []string) ([]tnrs.Result, error) { return nil, boom },
	}}

	led := NewLedger()
	r := &Resolver{Matcher: m, BatchSize: 1}
	err := r.Run(context.Background(), names, led)

	var te *TierError
	if !errors.As(err, &te) {
		t.Fatalf("期望 TierError，实际 %v", err)
	}
	if te.Tier != domain.TierSpeciesOriginal || te.Batch != 2 || te.Batches != 2 {
		t.Fatalf("失败定位不符合预期：%+v", te)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("必须能追溯底层原因：%v", err)
	}

	// 先前批次已提交的条目保持不变。
	if !led.Matched("A a") {
		t.Fatalf("中止不得破坏已提交的 Ledger 条目")
	}
}

func TestRun_PauseBetweenBatchesOnly(t *testing.T) {
	names := []domain.Name{"A a", "B b", "C c"}
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) {
			return []tnrs.Result{hit(qs[0], qs[0], 1, "species")}, nil
		},
		func(qs []string) ([]tnrs.Result, error) {
			return []tnrs.Result{hit(qs[0], qs[0], 2, "species")}, nil
		},
		func(qs []string) ([]tnrs.Result, error) {
			return []tnrs.Result{hit(qs[0], qs[0], 3, "species")}, nil
		},
	}}

	var slept []time.Duration
	r := &Resolver{
		Matcher:   m,
		BatchSize: 1,
		Pause:     time.Second,
		Sleep:     func(d time.Duration) { slept = append(slept, d) },
	}
	if err := r.Run(context.Background(), names, NewLedger()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	// 3 个批次 => 2 次停顿（最后一批之后不停）。
	if len(slept) != 2 || slept[0] != time.Second {
		t.Fatalf("期望 2 次 1s 停顿，实际 %v", slept)
	}
}

func TestRun_DedupBoundsQueriesPerTier(t *testing.T) {
	// 去重名集大小 K=2：每个 tier 的查询串不超过 K 个。
	names := []domain.Name{"Quercus alba L.", "Quercus rubra L."}
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) { return missesFor(qs), nil },
		func(qs []string) ([]tnrs.Result, error) { return missesFor(qs), nil },
		func(qs []string) ([]tnrs.Result, error) { return missesFor(qs), nil },
	}}

	led := NewLedger()
	r := &Resolver{Matcher: m}
	if err := r.Run(context.Background(), names, led); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	for i, call := range m.calls {
		if len(call) > len(names) {
			t.Fatalf("调用 #%d 超过去重集大小：%v", i+1, call)
		}
	}
	// 两个名字同属 Quercus：tier 3 必须去重为一个查询。
	last := m.calls[len(m.calls)-1]
	if len(last) != 1 || last[0] != "Quercus" {
		t.Fatalf("tier 3 期望 [Quercus]，实际 %v", last)
	}

	// 属查询零候选 => genus 失败终态。
	for _, n := range names {
		rec, _ := led.Get(n)
		if rec.MatchTier != domain.TierNoMatchGenusFailed {
			t.Fatalf("%s 期望 genus 失败终态，实际 %+v", n, rec)
		}
	}
}

func TestRun_FinalizesUnmatchedToNoMatchFinal(t *testing.T) {
	// 单词名：清洗无变化、取不出属名 => tier 2/3 都没有它的查询。
	names := []domain.Name{"Fabaceae"}
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) { return missesFor(qs), nil },
	}}

	led := NewLedger()
	r := &Resolver{Matcher: m}
	if err := r.Run(context.Background(), names, led); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	rec, _ := led.Get("Fabaceae")
	if rec.MatchTier != domain.TierNoMatchFinal {
		t.Fatalf("期望 no_match_final，实际 %+v", rec)
	}
	if len(m.calls) != 1 {
		t.Fatalf("期望只有 tier 1 调用，实际 %d 次", len(m.calls))
	}
}
