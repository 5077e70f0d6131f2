package model

// CompanyView is a company joined with the headline fields of its score.
type CompanyView struct {
	Company
	ThesisFit      *int    `json:"thesis_fit"`
	MarketTiming   *int    `json:"market_timing"`
	ProductClarity *int    `json:"product_clarity"`
	TeamSignal     *int    `json:"team_signal"`
	OverallSignal  *int    `json:"overall_signal"`
	OneLineVerdict *string `json:"one_line_verdict"`
}

// ApplyScore copies the headline score fields onto the view.
func (v *CompanyView) ApplyScore(s *Score) {
	if s == nil {
		return
	}
	v.ThesisFit = &s.ThesisFit
	v.MarketTiming = &s.MarketTiming
	v.ProductClarity = &s.ProductClarity
	v.TeamSignal = &s.TeamSignal
	v.OverallSignal = &s.OverallSignal
	v.OneLineVerdict = &s.OneLineVerdict
}

// CompanyDetail is a single company with its full score, if any.
type CompanyDetail struct {
	Company     CompanyView `json:"company"`
	ScoreDetail *Score      `json:"score_detail"`
}

// NamedCount is one bucket of a group-by count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TopCompany is one entry of the top-scored list.
type TopCompany struct {
	Name          string `json:"name"`
	OverallSignal int    `json:"overall_signal"`
	Verdict       string `json:"verdict"`
}

// Stats summarizes the screening database for the dashboard.
type Stats struct {
	TotalCompanies    int          `json:"total_companies"`
	ScoredCompanies   int          `json:"scored_companies"`
	EnrichedCompanies int          `json:"enriched_companies"`
	AvgOverallSignal  float64      `json:"avg_overall_signal"`
	TopIndustries     []NamedCount `json:"top_industries"`
	TopCompanies      []TopCompany `json:"top_companies"`
	StageBreakdown    []NamedCount `json:"stage_breakdown"`
}
