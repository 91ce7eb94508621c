package run

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/TNRM/internal/config"
	"github.com/John-Robertt/TNRM/internal/dataset"
	"github.com/John-Robertt/TNRM/internal/domain"
	"github.com/John-Robertt/TNRM/internal/resolve"
	"github.com/John-Robertt/TNRM/internal/tnrs"
)

// scriptedMatcher 按调用顺序回放脚本（一次调用 = 一个批次）。
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

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "plots.csv")
	tbl := domain.Table{
		Columns: []string{"Plot", "Scientific Name"},
		Rows: [][]string{
			{"p1", "Quercus alba L."},
			{"p2", "Quercus alba L."},
			{"p3", "Fabaceae Indet."},
		},
	}
	if err := dataset.Write(path, tbl); err != nil {
		t.Fatalf("写输入失败：%v", err)
	}
	return path
}

// 端到端场景：原名全失败；"Quercus alba" 清洗后直接命中；
// "Fabaceae" 属查询命中科级。重复行共享同一条解析记录。
func scenarioScripts(t *testing.T) []func([]string) ([]tnrs.Result, error) {
	id1 := int64(770315)
	id2 := int64(560323)
	return []func([]string) ([]tnrs.Result, error){
		// tier 1：两个去重名，零候选。
		func(qs []string) ([]tnrs.Result, error) {
			if len(qs) != 2 {
				t.Fatalf("tier 1 期望 2 个查询（按去重集），实际 %v", qs)
			}
			return []tnrs.Result{{Query: qs[0]}, {Query: qs[1]}}, nil
		},
		// tier 2：清洗串 ["Quercus alba","Fabaceae"]，只有前者命中。
		func(qs []string) ([]tnrs.Result, error) {
			if len(qs) != 2 || qs[0] != "Quercus alba" || qs[1] != "Fabaceae" {
				t.Fatalf("tier 2 查询集不符合预期：%v", qs)
			}
			return []tnrs.Result{
				{Query: "Quercus alba", Candidates: []tnrs.Candidate{{
					Taxon: tnrs.Taxon{UniqueName: "Quercus alba", OTTID: &id1, Rank: "species"},
				}}},
				{Query: "Fabaceae"},
			}, nil
		},
		// tier 3：属查询 "Fabaceae" 命中科级（通过 rank 门禁）。
		func(qs []string) ([]tnrs.Result, error) {
			if len(qs) != 1 || qs[0] != "Fabaceae" {
				t.Fatalf("tier 3 期望 [Fabaceae]，实际 %v", qs)
			}
			return []tnrs.Result{{Query: "Fabaceae", Candidates: []tnrs.Candidate{{
				Taxon: tnrs.Taxon{UniqueName: "Fabaceae", OTTID: &id2, Rank: "family"},
			}}}}, nil
		},
	}
}

func TestExecute_DryRun_EndToEnd(t *testing.T) {
	root := t.TempDir()
	input := writeInput(t, root)
	m := &scriptedMatcher{t: t, scripts: scenarioScripts(t)}

	eff := config.EffectiveConfig{
		Input:     input,
		Column:    "Scientific Name",
		Output:    filepath.Join(root, "plots_resolved.csv"),
		Apply:     false,
		BatchSize: 200,
	}
	rr := Execute(context.Background(), eff, m)

	if rr.Failed() {
		t.Fatalf("不期望失败：%+v", rr.Failure)
	}
	if rr.Rows != 3 || rr.DistinctNames != 2 {
		t.Fatalf("计数不符合预期：%+v", rr)
	}

	// 汇总：species_cleaned=2（重复行各算一次），genus=1。
	want := []domain.TierCount{
		{Tier: domain.TierSpeciesCleaned, Count: 2},
		{Tier: domain.TierGenus, Count: 1},
	}
	if len(rr.Summary) != 2 || rr.Summary[0] != want[0] || rr.Summary[1] != want[1] {
		t.Fatalf("期望 %v，实际 %v", want, rr.Summary)
	}

	// dry-run 不落盘：无输出文件、无缓存目录。
	if _, err := os.Stat(eff.Output); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应写输出文件，Stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "cache")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建 cache/，Stat err=%v", err)
	}
}

func TestExecute_Apply_WritesOutputAndCache(t *testing.T) {
	root := t.TempDir()
	input := writeInput(t, root)
	m := &scriptedMatcher{t: t, scripts: scenarioScripts(t)}

	eff := config.EffectiveConfig{
		Input:     input,
		Column:    "Scientific Name",
		Output:    filepath.Join(root, "plots_resolved.csv"),
		Apply:     true,
		BatchSize: 200,
	}
	rr := Execute(context.Background(), eff, m)
	if rr.Failed() {
		t.Fatalf("不期望失败：%+v", rr.Failure)
	}

	out, err := dataset.Read(eff.Output)
	if err != nil {
		t.Fatalf("读输出失败：%v", err)
	}
	if len(out.Rows) != 3 {
		t.Fatalf("输出行数必须与输入一致：%d", len(out.Rows))
	}

	idx, ok := out.ColumnIndex(resolve.ColMatchTier)
	if !ok {
		t.Fatalf("输出缺少解析列：%v", out.Columns)
	}
	if out.Rows[0][idx] != domain.TierSpeciesCleaned || out.Rows[1][idx] != domain.TierSpeciesCleaned {
		t.Fatalf("重复行应共享 species_cleaned：%v", out.Rows)
	}
	if out.Rows[2][idx] != domain.TierGenus {
		t.Fatalf("Fabaceae Indet. 应是 genus：%v", out.Rows[2])
	}
	// 重复行的解析值完全一致。
	idIdx, _ := out.ColumnIndex(resolve.ColTaxonID)
	if out.Rows[0][idIdx] != out.Rows[1][idIdx] || out.Rows[0][idIdx] != "770315" {
		t.Fatalf("重复行 id 不一致：%v", out.Rows)
	}

	// 第二次 run：缓存全命中，零网络调用。
	m2 := &scriptedMatcher{t: t, scripts: nil}
	rr2 := Execute(context.Background(), eff, m2)
	if rr2.Failed() {
		t.Fatalf("不期望失败：%+v", rr2.Failure)
	}
	if rr2.CacheHits != 2 {
		t.Fatalf("期望 2 个缓存命中，实际 %d", rr2.CacheHits)
	}
	if len(m2.calls) != 0 {
		t.Fatalf("缓存全命中时必须零网络调用，实际 %d 次", len(m2.calls))
	}
}

func TestExecute_BatchFailureAbortsWithContext(t *testing.T) {
	root := t.TempDir()
	input := writeInput(t, root)
	m := &scriptedMatcher{t: t, scripts: []func([]string) ([]tnrs.Result, error){
		func(qs []string) ([]tnrs.Result, error) {
			return nil, &tnrs.Error{Stage: "status", Err: &tnrs.HTTPStatusError{StatusCode: 502}}
		},
	}}

	eff := config.EffectiveConfig{
		Input:     input,
		Column:    "Scientific Name",
		Output:    filepath.Join(root, "plots_resolved.csv"),
		Apply:     true,
		BatchSize: 200,
	}
	rr := Execute(context.Background(), eff, m)

	if !rr.Failed() || rr.Failure.Code != domain.ErrCodeTNRSFailed {
		t.Fatalf("期望 tnrs_failed，实际 %+v", rr.Failure)
	}
	if rr.Failure.Tier != domain.TierSpeciesOriginal || rr.Failure.Batch != 1 {
		t.Fatalf("失败必须定位到 tier/batch：%+v", rr.Failure)
	}
	// 中止的 run 不产出输出文件。
	if _, err := os.Stat(eff.Output); !os.IsNotExist(err) {
		t.Fatalf("失败的 run 不应写输出文件，Stat err=%v", err)
	}
}

func TestExecute_ConfigErrorsBeforeNetwork(t *testing.T) {
	root := t.TempDir()
	input := writeInput(t, root)
	m := &scriptedMatcher{t: t} // 任何调用都会 Fatalf

	eff := config.EffectiveConfig{
		Input:     input,
		Column:    "No Such Column",
		Output:    filepath.Join(root, "out.csv"),
		BatchSize: 200,
	}
	rr := Execute(context.Background(), eff, m)
	if !rr.Failed() || rr.Failure.Code != domain.ErrCodeColumnNotFound {
		t.Fatalf("期望 column_not_found，实际 %+v", rr.Failure)
	}
	if len(m.calls) != 0 {
		t.Fatalf("配置错误必须发生在任何网络调用之前")
	}

	// 全空列：no_names。
	empty := filepath.Join(root, "empty.csv")
	if err := dataset.Write(empty, domain.Table{
		Columns: []string{"Scientific Name"},
		Rows:    [][]string{{""}, {"nan"}},
	}); err != nil {
		t.Fatalf("写输入失败：%v", err)
	}
	eff.Input = empty
	eff.Column = "Scientific Name"
	rr = Execute(context.Background(), eff, m)
	if !rr.Failed() || rr.Failure.Code != domain.ErrCodeNoNames {
		t.Fatalf("期望 no_names，实际 %+v", rr.Failure)
	}
}
