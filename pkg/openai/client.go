// Package openai wraps github.com/sashabaranov/go-openai behind a small
// chat-completion interface used as an alternative scoring provider.
package openai

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	goopenai "github.com/sashabaranov/go-openai"
)

// Client defines the OpenAI API operations used by the scorer.
type Client interface {
	CreateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single-turn chat completion request.
type ChatRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
	// JSONMode asks the API to constrain the reply to a JSON object.
	JSONMode bool
}

// ChatResponse carries the first choice of a completion.
type ChatResponse struct {
	ID               string
	Model            string
	Text             string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

type sdkClient struct {
	client *goopenai.Client
}

// NewClient creates an OpenAI client. An empty baseURL uses the public API.
func NewClient(apiKey, baseURL string) Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &sdkClient{client: goopenai.NewClientWithConfig(cfg)}
}

// usesCompletionTokens reports whether the model is a reasoning model that
// rejects max_tokens in favor of max_completion_tokens.
func usesCompletionTokens(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func (c *sdkClient) CreateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt})

	params := goopenai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.JSONMode {
		params.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if usesCompletionTokens(req.Model) {
		params.MaxCompletionTokens = req.MaxTokens
	} else {
		params.MaxTokens = req.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: completion returned no choices")
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		ID:               resp.ID,
		Model:            resp.Model,
		Text:             choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
