//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venturesignal/internal/config"
	"github.com/sells-group/venturesignal/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "vs.db")},
		Source:    config.SourceConfig{BaseURL: "http://127.0.0.1:1", Path: "/b2b.json", TimeoutSecs: 1},
		Anthropic: config.AnthropicConfig{Key: "sk-ant-test", Model: "claude-test", MaxTokens: 256},
		OpenAI:    config.OpenAIConfig{Key: "sk-openai-test", Model: "gpt-test", MaxTokens: 256},
		Scoring:   config.ScoringConfig{Provider: "anthropic", BatchSize: 20},
		Scrape:    config.ScrapeConfig{TimeoutSecs: 1, MaxBodyChars: 2000},
		Pipeline:  config.PipelineConfig{RateLimitRPS: 2},
		Server:    config.ServerConfig{Port: 8080},
	}
}

func TestInitPipeline_Ingest(t *testing.T) {
	cfg = testConfig(t)

	env, err := initPipeline(context.Background(), "ingest")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Metrics)

	families, err := env.Registry.Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "no series are emitted before any stage runs")
}

func TestInitPipeline_ValidationError(t *testing.T) {
	cfg = testConfig(t)
	cfg.Anthropic.Key = ""

	env, err := initPipeline(context.Background(), "score")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	// Enrichment never needs a model key.
	env, err = initPipeline(context.Background(), "enrich")
	require.NoError(t, err)
	env.Close()
}

func TestInitPipeline_Serve(t *testing.T) {
	cfg = testConfig(t)
	cfg.Scoring.Provider = "openai"

	env, err := initPipeline(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, env.Pipeline)
}

func TestInitScorer_Providers(t *testing.T) {
	cfg = testConfig(t)

	sc, err := initScorer()
	require.NoError(t, err)
	assert.Equal(t, "claude-test", sc.Model())
	assert.Equal(t, "default", sc.Templates().Current().Name)

	cfg.Scoring.Provider = "openai"
	sc, err = initScorer()
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", sc.Model())

	cfg.Scoring.Provider = "cohere"
	_, err = initScorer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scoring provider")
}

func TestInitScorer_MissingThesis(t *testing.T) {
	cfg = testConfig(t)
	cfg.Scoring.ThesisPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := initScorer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load thesis")
}

func TestInitPipeline_ConfiguredBatchSize(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_1",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{{"type": "text", "text": `{"thesis_fit": 8, "market_timing": 7,
"product_clarity": 6, "team_signal": 5, "overall_signal": 7, "one_line_verdict": "ok",
"reasoning": {"thesis_fit": "fits"}}`}},
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 10},
		})
	}))
	defer ts.Close()

	cfg = testConfig(t)
	cfg.Anthropic.BaseURL = ts.URL
	cfg.Scoring.BatchSize = 2

	ctx := context.Background()
	env, err := initPipeline(ctx, "score")
	require.NoError(t, err)
	defer env.Close()

	tx, err := env.Store.Begin(ctx)
	require.NoError(t, err)
	for i, slug := range []string{"a", "b", "c"} {
		require.NoError(t, tx.UpsertCompany(ctx, &model.Company{ID: int64(i + 1), Slug: slug, Name: slug}))
	}
	require.NoError(t, tx.Commit(ctx))

	// A zero batch size falls back to scoring.batch_size.
	n, err := runOperation(ctx, env.Pipeline, model.OperationScore, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), requests.Load())
}
