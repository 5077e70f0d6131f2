package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venturesignal/internal/model"
	"github.com/sells-group/venturesignal/internal/monitoring"
	"github.com/sells-group/venturesignal/internal/scrape"
	"github.com/sells-group/venturesignal/internal/store"
)

func TestPipeline_Ingest(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	src := new(MockSource)
	src.On("FetchRecords", mock.Anything).Return([]model.RawRecord{
		model.RawRecord(`{"id": 10, "slug": "acme", "name": "Acme", "website": "acme.dev", "tags": ["AI"]}`),
		model.RawRecord(`{"id": 11, "name": "No Slug"}`),
		model.RawRecord(`{"id": 12, "slug": "beta", "name": "Beta", "team_size": 4}`),
	}, nil).Once()

	p := New(st, src, nil, nil, nil, metrics, Config{})
	n, err := p.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failed.WithLabelValues("ingest")))

	all, err := st.ListAllCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(10), all[0].ID)
	assert.Equal(t, []string{"AI"}, all[0].Tags)

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, 3, runs[0].Candidates)
	assert.Equal(t, 2, runs[0].Processed)
	src.AssertExpectations(t)
}

func TestPipeline_Ingest_UpdatesWithoutTouchingEnrichment(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCompanies(t, st, company(10, "acme", "acme.dev"))

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetEnrichment(ctx, 10, "Title: Acme", time.Now()))
	require.NoError(t, tx.Commit(ctx))

	src := new(MockSource)
	src.On("FetchRecords", mock.Anything).Return([]model.RawRecord{
		model.RawRecord(`{"id": 999, "slug": "acme", "name": "Acme Renamed", "tags": ["Fintech", "B2B"]}`),
	}, nil)

	n, err := New(st, src, nil, nil, nil, nil, Config{}).Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetCompany(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", got.Company.Name)
	assert.Equal(t, []string{"Fintech", "B2B"}, got.Company.Tags)
	require.NotNil(t, got.Company.EnrichedText)
	assert.Equal(t, "Title: Acme", *got.Company.EnrichedText)
	assert.NotNil(t, got.Company.EnrichedAt)

	_, err = st.GetCompany(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPipeline_Ingest_FetchFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	src := new(MockSource)
	src.On("FetchRecords", mock.Anything).Return(nil, errors.New("source down"))

	n, err := New(st, src, nil, nil, nil, nil, Config{}).Ingest(ctx)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "source down")

	all, err := st.ListAllCompanies(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	runs, err := st.ListRuns(ctx, store.RunFilter{Operation: model.OperationIngest})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "source down")
}

func TestPipeline_Enrich(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCompanies(t, st,
		company(1, "a", "a.dev"),
		company(2, "b", "https://b.dev"),
		company(3, "c", "c.dev"),
		company(4, "nosite", ""),
	)

	scr := new(MockScraper)
	scr.On("Scrape", mock.Anything, "a.dev").Return(&scrape.Page{Title: "A", Body: "alpha"}, nil).Once()
	scr.On("Scrape", mock.Anything, "https://b.dev").Return(nil, errors.New("timeout")).Once()
	scr.On("Scrape", mock.Anything, "c.dev").Return(nil, scrape.ErrNoContent).Once()

	p := New(st, nil, scr, nil, nil, nil, Config{Concurrency: 2})
	n, err := p.Enrich(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	scr.AssertExpectations(t)

	got, err := st.GetCompany(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.Company.EnrichedText)
	assert.Equal(t, "Title: A\nBody: alpha", *got.Company.EnrichedText)

	pending, err := st.ListUnenriched(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].Slug)
	assert.Equal(t, "c", pending[1].Slug)

	// A second run retries only the failures.
	scr.On("Scrape", mock.Anything, "https://b.dev").Return(&scrape.Page{Description: "B"}, nil).Once()
	scr.On("Scrape", mock.Anything, "c.dev").Return(nil, scrape.ErrNoContent).Once()
	n, err = p.Enrich(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// a.dev was enriched by the first run and is never scraped again.
	aCalls := 0
	for _, c := range scr.Calls {
		if c.Method == "Scrape" && c.Arguments.String(1) == "a.dev" {
			aCalls++
		}
	}
	assert.Equal(t, 1, aCalls)
	scr.AssertNumberOfCalls(t, "Scrape", 5)
	scr.AssertExpectations(t)
}

func TestPipeline_Enrich_NothingToDo(t *testing.T) {
	st := newTestStore(t)
	scr := new(MockScraper)

	n, err := New(st, nil, scr, nil, nil, nil, Config{}).Enrich(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	scr.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestPipeline_Score(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCompanies(t, st, company(1, "a", ""), company(2, "b", ""), company(3, "c", ""))

	sc := new(MockScorer)
	sc.On("Score", mock.Anything, "a").Return(result(8), nil).Once()
	sc.On("Score", mock.Anything, "b").Return(nil, &model.ValidationError{Fields: []model.FieldError{{Field: "thesis_fit", Reason: "missing"}}}).Once()

	p := New(st, nil, nil, sc, nil, nil, Config{})
	n, err := p.Score(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sc.AssertExpectations(t)

	got, err := st.GetCompany(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.ScoreDetail)
	assert.Equal(t, 8, got.ScoreDetail.OverallSignal)
	assert.Equal(t, "test-model", got.ScoreDetail.ModelUsed)

	left, err := st.ListUnscored(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "b", left[0].Slug)
	assert.Equal(t, "c", left[1].Slug)
}

func TestPipeline_Score_DefaultBatchSize(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCompanies(t, st, company(1, "a", ""), company(2, "b", ""), company(3, "c", ""))

	sc := new(MockScorer)
	sc.On("Score", mock.Anything, mock.Anything).Return(result(5), nil)

	n, err := New(st, nil, nil, sc, nil, nil, Config{BatchSize: 2}).Score(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	sc.AssertNumberOfCalls(t, "Score", 2)
}

// slowScorer counts concurrent calls.
type slowScorer struct {
	probe boundProbe
	calls atomic.Int32
}

func (s *slowScorer) Score(_ context.Context, _ *model.Company) (*model.ScoreResult, error) {
	s.probe.enter()
	defer s.probe.leave()
	s.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return result(6), nil
}

func (s *slowScorer) Model() string { return "slow" }

func TestPipeline_Score_ConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	for i := int64(1); i <= 12; i++ {
		seedCompanies(t, st, company(i, fmt.Sprintf("co-%d", i), ""))
	}

	sc := &slowScorer{}
	n, err := New(st, nil, nil, sc, nil, nil, Config{Concurrency: 3}).Score(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, int32(12), sc.calls.Load())
	assert.LessOrEqual(t, sc.probe.peak.Load(), int32(3))

	count, err := st.CountScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}

func TestPipeline_RescoreAll(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCompanies(t, st,
		company(1, "a", ""), company(2, "b", ""), company(3, "c", ""),
		company(4, "d", ""), company(5, "e", ""),
	)

	first := new(MockScorer)
	first.On("Score", mock.Anything, mock.Anything).Return(result(3), nil)
	n, err := New(st, nil, nil, first, nil, nil, Config{}).Score(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	reloader := new(MockReloader)
	reloader.On("Reload").Return(nil).Once()

	sc := new(MockScorer)
	sc.On("Score", mock.Anything, "c").Return(nil, errors.New("model overloaded"))
	sc.On("Score", mock.Anything, mock.Anything).Return(result(9), nil)

	n, err = New(st, nil, nil, sc, reloader, nil, Config{}).RescoreAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	reloader.AssertExpectations(t)
	sc.AssertNumberOfCalls(t, "Score", 5)

	count, err := st.CountScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// The failed company lost its old score.
	got, err := st.GetCompany(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, got.ScoreDetail)

	got, err = st.GetCompany(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got.ScoreDetail)
	assert.Equal(t, 9, got.ScoreDetail.OverallSignal)
}

func TestPipeline_RescoreAll_ReloadFailureKeepsScores(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedCompanies(t, st, company(1, "a", ""))

	sc := new(MockScorer)
	sc.On("Score", mock.Anything, "a").Return(result(4), nil).Once()
	_, err := New(st, nil, nil, sc, nil, nil, Config{}).Score(ctx, 1)
	require.NoError(t, err)

	reloader := new(MockReloader)
	reloader.On("Reload").Return(errors.New("bad template"))

	_, err = New(st, nil, nil, sc, reloader, nil, Config{}).RescoreAll(ctx, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad template")

	count, err := st.CountScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPipeline_RescoreAll_Empty(t *testing.T) {
	st := newTestStore(t)
	sc := new(MockScorer)

	n, err := New(st, nil, nil, sc, nil, nil, Config{}).RescoreAll(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, n)
	sc.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)
}
