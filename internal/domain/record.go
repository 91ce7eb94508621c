package domain

// Match Level 枚举：三个匹配层级 + 四个终态/占位。
//
// 约束：
// - species_original / species_cleaned / genus 必须伴随非空 TaxonID
// - 其余层级的 TaxonID 必须为空（匹配层级与 id 的一致性不变量）
const (
	TierSpeciesOriginal = "species_original"
	TierSpeciesCleaned  = "species_cleaned"
	TierGenus           = "genus"

	TierNoMatchInitial     = "no_match_initial"
	TierNoMatchFinal       = "no_match_final"
	TierNoMatchGenusFailed = "no_match_final_genus_failed"
	TierProcessingError    = "processing_error"
)

// TierMatched 判断 tier 是否属于"已匹配"层级。
func TierMatched(tier string) bool {
	switch tier {
	case TierSpeciesOriginal, TierSpeciesCleaned, TierGenus:
		return true
	default:
		return false
	}
}

// ResolutionRecord 是某个 Name 当前最优的解析结果。
//
// MatchQuery 是真正发给服务端并产生该记录的查询串：可能等于原名，
// 也可能是清洗串或属名。
type ResolutionRecord struct {
	MatchedName    string   `json:"matched_name"`
	Synonyms       []string `json:"synonyms"`
	TaxonID        *int64   `json:"taxon_id"`
	Rank           string   `json:"rank"`
	MatchQuery     string   `json:"match_query"`
	MatchTier      string   `json:"match_tier"`
	Approximate    bool     `json:"is_approximate"`
	IsSynonymInput bool     `json:"is_synonym_input"`
}

// Matched 表示该记录是否已经拿到稳定 id（单调规则的判据）。
func (r ResolutionRecord) Matched() bool { return r.TaxonID != nil }
