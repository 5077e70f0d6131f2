package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Score bounds, inclusive.
const (
	MinSignal = 1
	MaxSignal = 10
)

// Score is the persisted thesis evaluation of one company.
type Score struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	ThesisFit      int             `json:"thesis_fit"`
	MarketTiming   int             `json:"market_timing"`
	ProductClarity int             `json:"product_clarity"`
	TeamSignal     int             `json:"team_signal"`
	OverallSignal  int             `json:"overall_signal"`
	OneLineVerdict string          `json:"one_line_verdict"`
	Reasoning      json.RawMessage `json:"reasoning"`
	ModelUsed      string          `json:"model_used"`
	ScoredAt       time.Time       `json:"scored_at"`
}

// ScoreResult is a validated model reply that has not been persisted yet.
type ScoreResult struct {
	ThesisFit      int             `json:"thesis_fit"`
	MarketTiming   int             `json:"market_timing"`
	ProductClarity int             `json:"product_clarity"`
	TeamSignal     int             `json:"team_signal"`
	OverallSignal  int             `json:"overall_signal"`
	OneLineVerdict string          `json:"one_line_verdict"`
	Reasoning      json.RawMessage `json:"reasoning"`
}

// ToScore binds the result to a company.
func (r *ScoreResult) ToScore(companyID int64, modelUsed string, at time.Time) *Score {
	reasoning := r.Reasoning
	if len(reasoning) == 0 {
		reasoning = json.RawMessage(`{}`)
	}
	return &Score{
		CompanyID:      companyID,
		ThesisFit:      r.ThesisFit,
		MarketTiming:   r.MarketTiming,
		ProductClarity: r.ProductClarity,
		TeamSignal:     r.TeamSignal,
		OverallSignal:  r.OverallSignal,
		OneLineVerdict: r.OneLineVerdict,
		Reasoning:      reasoning,
		ModelUsed:      modelUsed,
		ScoredAt:       at,
	}
}

// scoreAliases lists accepted keys per canonical field. Order matters: the
// first key present in the reply wins.
var scoreAliases = []struct {
	field string
	keys  []string
}{
	{"team_signal", []string{"team_signal", "team", "team_score"}},
	{"market_timing", []string{"market_timing", "market", "market_score"}},
	{"product_clarity", []string{"product_clarity", "product", "product_score"}},
	{"thesis_fit", []string{"thesis_fit", "thesis", "fit"}},
	{"overall_signal", []string{"overall_signal", "overall", "overall_score"}},
	{"one_line_verdict", []string{"one_line_verdict", "verdict", "summary"}},
}

// FieldError describes one invalid field of a model reply.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError is returned when a model reply cannot be turned into a
// ScoreResult.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "model: invalid score result: " + strings.Join(parts, "; ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// NormalizeScoreFields maps alias keys onto canonical field names. Keys that
// match no alias are dropped, except "reasoning" which is kept verbatim.
func NormalizeScoreFields(data map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(scoreAliases)+1)
	for _, a := range scoreAliases {
		for _, k := range a.keys {
			if v, ok := data[k]; ok {
				out[a.field] = v
				break
			}
		}
	}
	if v, ok := data["reasoning"]; ok {
		out["reasoning"] = v
	}
	return out
}

// ParseScoreResult normalizes a decoded reply object and validates it. Every
// invalid field is reported in the returned *ValidationError.
func ParseScoreResult(data map[string]json.RawMessage) (*ScoreResult, error) {
	norm := NormalizeScoreFields(data)
	verr := &ValidationError{}

	signal := func(field string) int {
		raw, ok := norm[field]
		if !ok {
			verr.Fields = append(verr.Fields, FieldError{Field: field, Reason: "missing"})
			return 0
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			verr.Fields = append(verr.Fields, FieldError{Field: field, Reason: "not valid json"})
			return 0
		}
		n, ok := toInt(v)
		if !ok {
			verr.Fields = append(verr.Fields, FieldError{Field: field, Reason: fmt.Sprintf("not an integer: %s", string(raw))})
			return 0
		}
		if n < MinSignal || n > MaxSignal {
			verr.Fields = append(verr.Fields, FieldError{Field: field, Reason: fmt.Sprintf("%d outside [%d,%d]", n, MinSignal, MaxSignal)})
			return 0
		}
		return int(n)
	}

	res := &ScoreResult{
		ThesisFit:      signal("thesis_fit"),
		MarketTiming:   signal("market_timing"),
		ProductClarity: signal("product_clarity"),
		TeamSignal:     signal("team_signal"),
		OverallSignal:  signal("overall_signal"),
	}

	if raw, ok := norm["one_line_verdict"]; !ok {
		verr.Fields = append(verr.Fields, FieldError{Field: "one_line_verdict", Reason: "missing"})
	} else if err := json.Unmarshal(raw, &res.OneLineVerdict); err != nil || string(raw) == "null" {
		verr.Fields = append(verr.Fields, FieldError{Field: "one_line_verdict", Reason: "not a string"})
	}

	if raw, ok := norm["reasoning"]; ok && string(raw) != "null" {
		res.Reasoning = append(json.RawMessage(nil), raw...)
	} else {
		res.Reasoning = json.RawMessage(`{}`)
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return res, nil
}
