package resolve

import (
	"github.com/John-Robertt/TNRM/internal/domain"
)

// Ledger 是 Name -> ResolutionRecord 的单调映射：一个名字一旦拿到
// 非空 TaxonID，后续任何 tier 都不得覆盖（首个成功匹配生效）。
//
// 生命周期：一次 run 创建一个 Ledger，由 Resolver 按 tier 串行驱动；
// tier N 只能看到 tier N-1 结束时的定格状态（调用方保证串行）。
type Ledger struct {
	records map[domain.Name]domain.ResolutionRecord
	order   []domain.Name // 插入序，保证遍历与输出稳定
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[domain.Name]domain.ResolutionRecord, 128)}
}

func (l *Ledger) Len() int { return len(l.order) }

// Get 返回某个名字当前的记录（值拷贝；修改必须经 Apply/Demote）。
func (l *Ledger) Get(n domain.Name) (domain.ResolutionRecord, bool) {
	r, ok := l.records[n]
	return r, ok
}

// Matched 表示某个名字是否已拿到稳定 id。
func (l *Ledger) Matched(n domain.Name) bool {
	r, ok := l.records[n]
	return ok && r.Matched()
}

// Unresolved 从 names 中筛出仍未匹配的名字（无记录或记录无 id），
// 保持输入顺序。
func (l *Ledger) Unresolved(names []domain.Name) []domain.Name {
	out := make([]domain.Name, 0, len(names))
	for _, n := range names {
		if !l.Matched(n) {
			out = append(out, n)
		}
	}
	return out
}

// Apply 写入/升级某个名字的记录。单调规则：已匹配的记录不可覆盖，
// 此时返回 false；其余情况覆盖旧记录（占位 -> 匹配属于正常升级）。
func (l *Ledger) Apply(n domain.Name, rec domain.ResolutionRecord) bool {
	if old, ok := l.records[n]; ok {
		if old.Matched() {
			return false
		}
	} else {
		l.order = append(l.order, n)
	}
	l.records[n] = rec
	return true
}

// Demote 把某个未匹配名字的 tier 改为给定终态（genus 失败/最终未匹配）。
// 记录不存在或已匹配时是 no-op（不得降级已匹配条目）。
func (l *Ledger) Demote(n domain.Name, tier string) {
	old, ok := l.records[n]
	if !ok || old.Matched() {
		return
	}
	old.MatchTier = tier
	l.records[n] = old
}

// Names 按插入序返回全部已有记录的名字。
func (l *Ledger) Names() []domain.Name {
	return append([]domain.Name(nil), l.order...)
}
