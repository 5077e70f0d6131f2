// Package prompt renders the investment-thesis prompt for a company.
package prompt

import (
	_ "embed"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venturesignal/internal/model"
)

//go:embed thesis.txt
var defaultThesis string

// Fallback values for missing company data.
const (
	FallbackName     = "Unknown"
	FallbackEnriched = "No website data available"
	FallbackOther    = "N/A"
)

// Placeholders lists every token a template may contain.
var Placeholders = []string{
	"name", "website", "one_liner", "long_description", "industry",
	"subindustry", "status", "stage", "team_size", "batch", "tags",
	"regions", "enriched_text",
}

var tokenRe = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Template is operator-controlled thesis text with {placeholder} tokens.
type Template struct {
	Name    string
	Version string
	text    string
}

// Parse validates text as a template. Tokens shaped like a placeholder but not
// in Placeholders are rejected so that none can survive substitution.
func Parse(text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, eris.New("prompt: template is empty")
	}
	known := make(map[string]bool, len(Placeholders))
	for _, p := range Placeholders {
		known[p] = true
	}
	var unknown []string
	for _, m := range tokenRe.FindAllStringSubmatch(text, -1) {
		if !known[m[1]] {
			unknown = append(unknown, m[0])
		}
	}
	if len(unknown) > 0 {
		return nil, eris.Errorf("prompt: unknown placeholders %s", strings.Join(unknown, ", "))
	}
	return &Template{text: text}, nil
}

// Default returns the embedded thesis template.
func Default() *Template {
	t, err := Parse(defaultThesis)
	if err != nil {
		panic(err)
	}
	t.Name = "default"
	return t
}

// Text returns the raw template text.
func (t *Template) Text() string {
	return t.text
}

// Build substitutes the company's fields into the template. Output is a pure
// function of the template and the company.
func (t *Template) Build(c *model.Company) string {
	r := strings.NewReplacer(
		"{name}", orDefault(c.Name, FallbackName),
		"{website}", orDefault(c.Website, FallbackOther),
		"{one_liner}", orDefault(c.OneLiner, FallbackOther),
		"{long_description}", orDefault(c.LongDescription, FallbackOther),
		"{industry}", orDefault(c.Industry, FallbackOther),
		"{subindustry}", orDefault(c.Subindustry, FallbackOther),
		"{status}", orDefault(c.Status, FallbackOther),
		"{stage}", orDefault(c.Stage, FallbackOther),
		"{team_size}", teamSize(c.TeamSize),
		"{batch}", orDefault(c.Batch, FallbackOther),
		"{tags}", orDefault(strings.Join(c.Tags, ", "), FallbackOther),
		"{regions}", orDefault(strings.Join(c.Regions, ", "), FallbackOther),
		"{enriched_text}", enriched(c.EnrichedText),
	)
	return r.Replace(t.text)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func teamSize(n *int) string {
	if n == nil || *n == 0 {
		return FallbackOther
	}
	return strconv.Itoa(*n)
}

func enriched(s *string) string {
	if s == nil || *s == "" {
		return FallbackEnriched
	}
	return *s
}
