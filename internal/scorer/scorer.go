// Package scorer turns a company into a validated thesis scorecard by
// prompting a generative model and normalizing its JSON reply.
package scorer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venturesignal/internal/model"
	"github.com/sells-group/venturesignal/internal/prompt"
)

const fence = "```"

// Scorer scores companies against the current thesis template.
type Scorer struct {
	completer Completer
	templates *prompt.Source
}

// New creates a Scorer.
func New(completer Completer, templates *prompt.Source) *Scorer {
	return &Scorer{completer: completer, templates: templates}
}

// Model returns the model identifier recorded on persisted scores.
func (s *Scorer) Model() string {
	return s.completer.Model()
}

// Templates exposes the template source so callers can reload it.
func (s *Scorer) Templates() *prompt.Source {
	return s.templates
}

// Score prompts the model for c and returns the normalized result.
func (s *Scorer) Score(ctx context.Context, c *model.Company) (*model.ScoreResult, error) {
	p := s.templates.Current().Build(c)

	resp, err := s.completer.Complete(ctx, p)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: score %s", c.Slug)
	}

	res, err := ParseReply(resp.Text)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: score %s", c.Slug)
	}
	return res, nil
}

// ParseReply strips an optional code fence from a model reply, decodes the
// JSON object inside and validates it.
func ParseReply(text string) (*model.ScoreResult, error) {
	body, err := StripFence(text)
	if err != nil {
		return nil, err
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, eris.Wrap(err, "scorer: reply is not a JSON object")
	}
	if data == nil {
		return nil, eris.New("scorer: reply is not a JSON object")
	}
	return model.ParseScoreResult(data)
}

// StripFence removes a leading markdown fence line and a trailing fence
// marker. A reply that opens a fence without a newline is malformed.
func StripFence(text string) (string, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, fence) {
		return text, nil
	}
	idx := strings.IndexByte(text, '\n')
	if idx < 0 {
		return "", eris.New("scorer: malformed code fence")
	}
	text = text[idx+1:]
	text = strings.TrimSuffix(strings.TrimRight(text, " \t\r\n"), fence)
	return strings.TrimSpace(text), nil
}
