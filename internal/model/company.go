package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Company is a screened startup, keyed by its externally assigned slug.
type Company struct {
	ID              int64      `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	Website         string     `json:"website,omitempty"`
	OneLiner        string     `json:"one_liner,omitempty"`
	LongDescription string     `json:"long_description,omitempty"`
	Industry        string     `json:"industry,omitempty"`
	Subindustry     string     `json:"subindustry,omitempty"`
	Status          string     `json:"status,omitempty"`
	Stage           string     `json:"stage,omitempty"`
	TeamSize        *int       `json:"team_size,omitempty"`
	Batch           string     `json:"batch,omitempty"`
	Tags            []string   `json:"tags"`
	Regions         []string   `json:"regions"`
	EnrichedText    *string    `json:"enriched_text,omitempty"`
	EnrichedAt      *time.Time `json:"enriched_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RawRecord is one undecoded element of the source payload.
type RawRecord = json.RawMessage

// rawCompany mirrors the source payload. Scalars are decoded leniently so
// that a single odd field does not hide the rest of the record.
type rawCompany struct {
	ID              flexInt    `json:"id"`
	Slug            *string    `json:"slug"`
	Name            *string    `json:"name"`
	Website         *string    `json:"website"`
	OneLiner        *string    `json:"one_liner"`
	LongDescription *string    `json:"long_description"`
	Industry        *string    `json:"industry"`
	Subindustry     *string    `json:"subindustry"`
	Status          *string    `json:"status"`
	Stage           *string    `json:"stage"`
	TeamSize        flexInt    `json:"team_size"`
	Batch           *string    `json:"batch"`
	Tags            stringList `json:"tags"`
	Regions         stringList `json:"regions"`
}

// NewCompanyFromRecord constructs a Company from one source record. Missing
// optional fields are left empty; a record without id, slug or name, or with
// a field of the wrong type, is rejected.
func NewCompanyFromRecord(raw RawRecord) (*Company, error) {
	var rc rawCompany
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, eris.Wrap(err, "model: decode company record")
	}

	if !rc.ID.Valid {
		return nil, eris.New("model: company record missing id")
	}
	slug := strings.TrimSpace(deref(rc.Slug))
	if slug == "" {
		return nil, eris.New("model: company record missing slug")
	}
	if rc.Name == nil {
		return nil, eris.Errorf("model: company record %s missing name", slug)
	}

	c := &Company{
		ID:              rc.ID.Value,
		Slug:            slug,
		Name:            *rc.Name,
		Website:         deref(rc.Website),
		OneLiner:        deref(rc.OneLiner),
		LongDescription: deref(rc.LongDescription),
		Industry:        deref(rc.Industry),
		Subindustry:     deref(rc.Subindustry),
		Status:          deref(rc.Status),
		Stage:           deref(rc.Stage),
		Batch:           deref(rc.Batch),
		Tags:            []string(rc.Tags),
		Regions:         []string(rc.Regions),
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Regions == nil {
		c.Regions = []string{}
	}
	if rc.TeamSize.Valid {
		n := int(rc.TeamSize.Value)
		c.TeamSize = &n
	}
	return c, nil
}

// RecordName extracts the "name" field of a raw record for logging, or
// "unknown" when the record cannot be read.
func RecordName(raw RawRecord) string {
	var probe struct {
		Name any `json:"name"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "unknown"
	}
	if s, ok := probe.Name.(string); ok && s != "" {
		return s
	}
	return "unknown"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// flexInt accepts a JSON integer, an integral float, or a numeric string.
type flexInt struct {
	Value int64
	Valid bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = flexInt{}
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n, ok := toInt(v)
	if !ok {
		return eris.Errorf("model: expected integer, got %s", string(b))
	}
	*f = flexInt{Value: n, Valid: true}
	return nil
}

// stringList accepts a JSON array of strings, null, or a string holding a
// JSON array. Unparseable strings decode to an empty list.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = stringList{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		var list []string
		if err := json.Unmarshal([]byte(inner), &list); err != nil {
			*s = stringList{}
			return nil
		}
		*s = list
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return eris.Wrap(err, "model: expected list of strings")
	}
	*s = list
	return nil
}

// toInt converts a decoded JSON value into an integer when it represents one
// exactly.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
