package scorer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venturesignal/pkg/anthropic"
	"github.com/sells-group/venturesignal/pkg/openai"
)

// DefaultMaxTokens caps a single scoring reply.
const DefaultMaxTokens = 1024

// Completion is the text reply of a single prompt.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Completer sends a single user prompt to a generative model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
	// Model is the configured model identifier recorded on every score.
	Model() string
}

// AnthropicCompleter adapts the Anthropic Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter creates a Completer backed by client.
func NewAnthropicCompleter(client anthropic.Client, model string, maxTokens int) *AnthropicCompleter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicCompleter{client: client, model: model, maxTokens: int64(maxTokens)}
}

func (a *AnthropicCompleter) Model() string { return a.model }

func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	reply, err := a.client.Prompt(ctx, anthropic.PromptRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Prompt:    prompt,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: anthropic completion")
	}
	if reply.Text == "" {
		return nil, eris.New("scorer: anthropic completion has no text")
	}
	reply.Usage.Log(a.model, "score")
	if reply.Truncated() {
		zap.L().Warn("scorer: anthropic reply hit max_tokens",
			zap.String("model", a.model),
			zap.Int64("max_tokens", a.maxTokens),
		)
	}

	return &Completion{
		Text:         reply.Text,
		Model:        reply.Model,
		InputTokens:  reply.Usage.Input,
		OutputTokens: reply.Usage.Output,
	}, nil
}

// OpenAICompleter adapts the OpenAI Chat Completions API.
type OpenAICompleter struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompleter creates a Completer backed by client.
func NewOpenAICompleter(client openai.Client, model string, maxTokens int) *OpenAICompleter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAICompleter{client: client, model: model, maxTokens: maxTokens}
}

func (o *OpenAICompleter) Model() string { return o.model }

func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	resp, err := o.client.CreateChat(ctx, openai.ChatRequest{
		Model:     o.model,
		Prompt:    prompt,
		MaxTokens: o.maxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: openai completion")
	}
	zap.L().Debug("scorer: openai usage",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
	)
	return &Completion{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  int64(resp.PromptTokens),
		OutputTokens: int64(resp.CompletionTokens),
	}, nil
}
