// Package pipeline drives the ingest, enrich and score stages: it pulls
// candidates from the store, fans external calls out under a concurrency
// bound, and writes each batch's successes in a single commit.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venturesignal/internal/model"
	"github.com/sells-group/venturesignal/internal/monitoring"
	"github.com/sells-group/venturesignal/internal/scrape"
	"github.com/sells-group/venturesignal/internal/store"
)

// DefaultConcurrency bounds in-flight scrape and scoring calls.
const DefaultConcurrency = 2

// DefaultBatchSize is the number of companies scored per sub-batch.
const DefaultBatchSize = 20

// RecordSource yields the raw candidate records for ingest.
type RecordSource interface {
	FetchRecords(ctx context.Context) ([]model.RawRecord, error)
}

// PageScraper reduces a company website to text.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Page, error)
}

// CompanyScorer scores one company against the thesis.
type CompanyScorer interface {
	Score(ctx context.Context, c *model.Company) (*model.ScoreResult, error)
	Model() string
}

// TemplateReloader re-reads the operator-controlled thesis template.
type TemplateReloader interface {
	Reload() error
}

// Config tunes the pipeline.
type Config struct {
	// Concurrency bounds in-flight external calls per stage.
	Concurrency int
	// BatchSize is used when a caller passes a non-positive batch size.
	BatchSize int
}

// Pipeline orchestrates the screening stages over a Store.
type Pipeline struct {
	store     store.Store
	source    RecordSource
	scraper   PageScraper
	scorer    CompanyScorer
	templates TemplateReloader
	metrics   *monitoring.Metrics
	cfg       Config
	now       func() time.Time
}

// New creates a Pipeline. A nil metrics value gets an unregistered set.
func New(
	st store.Store,
	source RecordSource,
	scraper PageScraper,
	scorer CompanyScorer,
	templates TemplateReloader,
	metrics *monitoring.Metrics,
	cfg Config,
) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics(nil)
	}
	return &Pipeline{
		store:     st,
		source:    source,
		scraper:   scraper,
		scorer:    scorer,
		templates: templates,
		metrics:   metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ingest fetches every source record and upserts it by slug in one
// transaction. Records that cannot be turned into a company are logged and
// skipped. It returns the number of companies written.
func (p *Pipeline) Ingest(ctx context.Context) (int, error) {
	run, log := p.startRun(ctx, model.OperationIngest)

	raws, err := p.source.FetchRecords(ctx)
	if err != nil {
		err = eris.Wrap(err, "pipeline: ingest")
		p.finishRun(ctx, run, 0, 0, err)
		return 0, err
	}

	companies := make([]*model.Company, 0, len(raws))
	for _, raw := range raws {
		c, cerr := model.NewCompanyFromRecord(raw)
		if cerr != nil {
			p.metrics.Failed.WithLabelValues(string(model.OperationIngest)).Inc()
			log.Warn("pipeline: skipping malformed record",
				zap.String("company", model.RecordName(raw)),
				zap.Error(cerr),
			)
			continue
		}
		companies = append(companies, c)
	}

	n, err := p.commit(ctx, func(tx store.Tx) (int, error) {
		for _, c := range companies {
			if err := tx.UpsertCompany(ctx, c); err != nil {
				return 0, err
			}
		}
		return len(companies), nil
	})
	if err != nil {
		err = eris.Wrap(err, "pipeline: ingest")
		p.finishRun(ctx, run, len(raws), 0, err)
		return 0, err
	}

	p.metrics.Processed.WithLabelValues(string(model.OperationIngest)).Add(float64(n))
	log.Info("pipeline: ingest complete",
		zap.Int("records", len(raws)),
		zap.Int("ingested", n),
	)
	p.finishRun(ctx, run, len(raws), n, nil)
	return n, nil
}

// Enrich scrapes the website of every company not yet enriched and stores
// the reduced text. Scrape failures leave the company unenriched. All
// successes are committed together after every scrape resolved.
func (p *Pipeline) Enrich(ctx context.Context) (int, error) {
	run, log := p.startRun(ctx, model.OperationEnrich)

	companies, err := p.store.ListUnenriched(ctx)
	if err != nil {
		err = eris.Wrap(err, "pipeline: enrich")
		p.finishRun(ctx, run, 0, 0, err)
		return 0, err
	}
	if len(companies) == 0 {
		log.Info("pipeline: nothing to enrich")
		p.finishRun(ctx, run, 0, 0, nil)
		return 0, nil
	}

	stage := string(model.OperationEnrich)
	outcomes := Throttled(ctx, p.cfg.Concurrency, companies,
		func(ctx context.Context, c model.Company) (string, error) {
			page, err := p.scraper.Scrape(ctx, c.Website)
			if err != nil {
				return "", err
			}
			return page.Text(), nil
		},
		WithInFlightGauge(p.metrics.InFlight.WithLabelValues(stage)),
	)

	n, err := p.commit(ctx, func(tx store.Tx) (int, error) {
		at := p.now()
		count := 0
		for i, o := range outcomes {
			c := companies[i]
			if o.Err != nil {
				p.metrics.Failed.WithLabelValues(stage).Inc()
				log.Warn("pipeline: scrape failed",
					zap.String("company", c.Name),
					zap.String("url", c.Website),
					zap.Error(o.Err),
				)
				continue
			}
			if err := tx.SetEnrichment(ctx, c.ID, o.Value, at); err != nil {
				return 0, err
			}
			count++
		}
		return count, nil
	})
	if err != nil {
		err = eris.Wrap(err, "pipeline: enrich")
		p.finishRun(ctx, run, len(companies), 0, err)
		return 0, err
	}

	p.metrics.Processed.WithLabelValues(stage).Add(float64(n))
	log.Info("pipeline: enrich complete",
		zap.Int("candidates", len(companies)),
		zap.Int("enriched", n),
	)
	p.finishRun(ctx, run, len(companies), n, nil)
	return n, nil
}

// Score scores up to batchSize companies that have no score yet and commits
// the successes together.
func (p *Pipeline) Score(ctx context.Context, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = p.cfg.BatchSize
	}
	run, log := p.startRun(ctx, model.OperationScore)

	companies, err := p.store.ListUnscored(ctx, batchSize)
	if err != nil {
		err = eris.Wrap(err, "pipeline: score")
		p.finishRun(ctx, run, 0, 0, err)
		return 0, err
	}
	if len(companies) == 0 {
		log.Info("pipeline: nothing to score")
		p.finishRun(ctx, run, 0, 0, nil)
		return 0, nil
	}

	n, err := p.scoreBatch(ctx, log, model.OperationScore, companies)
	if err != nil {
		err = eris.Wrap(err, "pipeline: score")
		p.finishRun(ctx, run, len(companies), 0, err)
		return 0, err
	}

	log.Info("pipeline: score complete",
		zap.Int("candidates", len(companies)),
		zap.Int("scored", n),
	)
	p.finishRun(ctx, run, len(companies), n, nil)
	return n, nil
}

// RescoreAll reloads the thesis template, deletes every score and rescores
// every company in chunks of batchSize, committing after each chunk. The
// deletion is committed before any rescoring starts.
func (p *Pipeline) RescoreAll(ctx context.Context, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = p.cfg.BatchSize
	}
	run, log := p.startRun(ctx, model.OperationRescore)

	fail := func(candidates, processed int, err error) (int, error) {
		err = eris.Wrap(err, "pipeline: rescore")
		p.finishRun(ctx, run, candidates, processed, err)
		return processed, err
	}

	if p.templates != nil {
		if err := p.templates.Reload(); err != nil {
			return fail(0, 0, err)
		}
	}

	deleted, err := p.store.DeleteAllScores(ctx)
	if err != nil {
		return fail(0, 0, err)
	}
	log.Info("pipeline: cleared scores", zap.Int64("deleted", deleted))

	companies, err := p.store.ListAllCompanies(ctx)
	if err != nil {
		return fail(0, 0, err)
	}

	total := 0
	for start := 0; start < len(companies); start += batchSize {
		end := min(start+batchSize, len(companies))
		n, err := p.scoreBatch(ctx, log, model.OperationRescore, companies[start:end])
		if err != nil {
			return fail(len(companies), total, err)
		}
		total += n
		log.Info("pipeline: rescore chunk committed",
			zap.Int("chunk_start", start),
			zap.Int("chunk_size", end-start),
			zap.Int("scored", n),
			zap.Int("total", total),
		)
	}

	log.Info("pipeline: rescore complete",
		zap.Int("candidates", len(companies)),
		zap.Int("scored", total),
	)
	p.finishRun(ctx, run, len(companies), total, nil)
	return total, nil
}

// scoreBatch scores companies under the concurrency bound and commits the
// successful results in one transaction.
func (p *Pipeline) scoreBatch(ctx context.Context, log *zap.Logger, op model.Operation, companies []model.Company) (int, error) {
	stage := string(op)
	outcomes := Throttled(ctx, p.cfg.Concurrency, companies,
		func(ctx context.Context, c model.Company) (*model.ScoreResult, error) {
			return p.scorer.Score(ctx, &c)
		},
		WithInFlightGauge(p.metrics.InFlight.WithLabelValues(stage)),
	)

	n, err := p.commit(ctx, func(tx store.Tx) (int, error) {
		at := p.now()
		modelUsed := p.scorer.Model()
		count := 0
		for i, o := range outcomes {
			c := companies[i]
			if o.Err != nil {
				p.metrics.Failed.WithLabelValues(stage).Inc()
				log.Error("pipeline: scoring failed",
					zap.String("company", c.Name),
					zap.String("slug", c.Slug),
					zap.Error(o.Err),
				)
				continue
			}
			if err := tx.UpsertScore(ctx, o.Value.ToScore(c.ID, modelUsed, at)); err != nil {
				return 0, err
			}
			count++
		}
		return count, nil
	})
	if err != nil {
		return 0, err
	}
	p.metrics.Processed.WithLabelValues(stage).Add(float64(n))
	return n, nil
}

// commit runs fn inside a transaction and commits it. Any error rolls back.
func (p *Pipeline) commit(ctx context.Context, fn func(tx store.Tx) (int, error)) (int, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := fn(tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// startRun records the start of an operation. Run-log failures are logged
// and otherwise ignored.
func (p *Pipeline) startRun(ctx context.Context, op model.Operation) (*model.Run, *zap.Logger) {
	log := zap.L().With(zap.String("operation", string(op)))
	run, err := p.store.CreateRun(ctx, op)
	if err != nil {
		log.Warn("pipeline: failed to record run start", zap.Error(err))
		return &model.Run{Operation: op, StartedAt: p.now()}, log
	}
	return run, log.With(zap.String("run_id", run.ID))
}

func (p *Pipeline) finishRun(ctx context.Context, run *model.Run, candidates, processed int, runErr error) {
	run.Candidates = candidates
	run.Processed = processed
	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	}
	finished := p.now()
	run.FinishedAt = &finished
	p.metrics.RunDuration.WithLabelValues(string(run.Operation), string(run.Status)).
		Observe(finished.Sub(run.StartedAt).Seconds())

	if run.ID == "" {
		return
	}
	if err := p.store.CompleteRun(ctx, run); err != nil {
		zap.L().Warn("pipeline: failed to record run result",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
}
