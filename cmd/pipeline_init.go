package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venturesignal/internal/fetcher"
	"github.com/sells-group/venturesignal/internal/monitoring"
	"github.com/sells-group/venturesignal/internal/pipeline"
	"github.com/sells-group/venturesignal/internal/prompt"
	"github.com/sells-group/venturesignal/internal/scorer"
	"github.com/sells-group/venturesignal/internal/scrape"
	"github.com/sells-group/venturesignal/internal/store"
	anthropicpkg "github.com/sells-group/venturesignal/pkg/anthropic"
	openaipkg "github.com/sells-group/venturesignal/pkg/openai"
)

// pipelineEnv holds the store, the pipeline and the metrics registry needed
// by the ingest/enrich/score/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for mode, opens and migrates the store,
// and builds the Pipeline. The scorer is only constructed for modes that
// score. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	source := fetcher.NewSourceFetcher(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Scrape.UserAgent,
			Timeout:   time.Duration(cfg.Source.TimeoutSecs) * time.Second,
		}),
		cfg.Source.BaseURL,
		cfg.Source.Path,
	)

	scraper := scrape.New(scrape.Options{
		UserAgent:         cfg.Scrape.UserAgent,
		Timeout:           time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
		MaxBodyChars:      cfg.Scrape.MaxBodyChars,
		RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
	})

	// Interface-typed so ingest/enrich modes pass a true nil.
	var (
		companyScorer pipeline.CompanyScorer
		templates     pipeline.TemplateReloader
	)
	if mode == "score" || mode == "serve" {
		sc, err := initScorer()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		companyScorer = sc
		templates = sc.Templates()
	}

	p := pipeline.New(st, source, scraper, companyScorer, templates, metrics, pipeline.Config{
		Concurrency: cfg.Pipeline.RateLimitRPS,
		BatchSize:   cfg.Scoring.BatchSize,
	})

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Metrics:  metrics,
		Registry: reg,
	}, nil
}

// initScorer loads the thesis template and builds a scorer for the
// configured provider.
func initScorer() (*scorer.Scorer, error) {
	templates, err := prompt.NewSource(cfg.Scoring.ThesisPath)
	if err != nil {
		return nil, eris.Wrap(err, "load thesis")
	}

	var completer scorer.Completer
	switch cfg.Scoring.Provider {
	case "openai":
		client := openaipkg.NewClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL)
		completer = scorer.NewOpenAICompleter(client, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens)
	case "anthropic", "":
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)
		completer = scorer.NewAnthropicCompleter(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	default:
		return nil, eris.Errorf("unsupported scoring provider: %s", cfg.Scoring.Provider)
	}

	zap.L().Info("scorer ready",
		zap.String("provider", cfg.Scoring.Provider),
		zap.String("model", completer.Model()),
		zap.String("thesis", templates.Current().Name),
	)
	return scorer.New(completer, templates), nil
}
