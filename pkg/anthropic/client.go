// Package anthropic wraps the official Anthropic SDK behind the single-turn
// Messages call the thesis scorer makes.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StopMaxTokens is the stop reason of a reply cut off by the token cap.
const StopMaxTokens = "max_tokens"

// Client sends one prompt and returns the reply.
type Client interface {
	Prompt(ctx context.Context, req PromptRequest) (*Reply, error)
}

// PromptRequest is a single user turn with an optional system prompt.
type PromptRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Prompt      string
	Temperature *float64
}

// Reply is the assistant's answer to a PromptRequest.
type Reply struct {
	ID         string
	Model      string
	Text       string // first text block
	StopReason string
	Usage      Usage
}

// Truncated reports whether the reply hit the token cap.
func (r *Reply) Truncated() bool {
	return r.StopReason == StopMaxTokens
}

// Usage counts the tokens billed for one call.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// price is USD per million tokens for a model family.
type price struct {
	prefix  string
	in, out float64
}

// Longest prefixes first; the first match wins.
var prices = []price{
	{"claude-opus-4-5", 5.00, 25.00},
	{"claude-opus", 15.00, 75.00},
	{"claude-sonnet", 3.00, 15.00},
	{"claude-haiku-4-5", 1.00, 5.00},
	{"claude-3-5-haiku", 0.80, 4.00},
}

// Cost estimates the USD cost of u for model. Unknown models cost 0.
func (u Usage) Cost(model string) float64 {
	for _, p := range prices {
		if !strings.HasPrefix(model, p.prefix) {
			continue
		}
		const mtok = 1e6
		return float64(u.Input)/mtok*p.in +
			float64(u.Output)/mtok*p.out +
			float64(u.CacheWrite)/mtok*p.in*1.25 +
			float64(u.CacheRead)/mtok*p.in*0.1
	}
	return 0
}

// Log records the usage and its estimated cost against a pipeline stage.
func (u Usage) Log(model, stage string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int64("input_tokens", u.Input),
		zap.Int64("output_tokens", u.Output),
		zap.Int64("cache_write_tokens", u.CacheWrite),
		zap.Int64("cache_read_tokens", u.CacheRead),
		zap.Float64("estimated_cost_usd", u.Cost(model)),
	)
}

// StatusCode returns the HTTP status of an API error in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a Client backed by the SDK. opts (base URL, retries)
// apply after the API key.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &sdkClient{client: sdk.NewClient(all...)}
}

func (c *sdkClient) Prompt(ctx context.Context, req PromptRequest) (*Reply, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if code := StatusCode(err); code != 0 {
			return nil, eris.Wrapf(err, "anthropic: messages (status %d)", code)
		}
		return nil, eris.Wrap(err, "anthropic: messages")
	}
	return toReply(msg), nil
}

func toReply(msg *sdk.Message) *Reply {
	r := &Reply{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			Input:      msg.Usage.InputTokens,
			Output:     msg.Usage.OutputTokens,
			CacheWrite: msg.Usage.CacheCreationInputTokens,
			CacheRead:  msg.Usage.CacheReadInputTokens,
		},
	}
	for _, b := range msg.Content {
		if b.Type == "text" {
			r.Text = b.Text
			break
		}
	}
	return r
}
