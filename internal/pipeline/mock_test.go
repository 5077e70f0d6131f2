package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venturesignal/internal/model"
	"github.com/sells-group/venturesignal/internal/scrape"
	"github.com/sells-group/venturesignal/internal/store"
)

// MockSource implements RecordSource for testing.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) FetchRecords(ctx context.Context) ([]model.RawRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RawRecord), args.Error(1)
}

// MockScraper implements PageScraper for testing.
type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, url string) (*scrape.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.Page), args.Error(1)
}

// MockScorer implements CompanyScorer for testing.
type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) Score(ctx context.Context, c *model.Company) (*model.ScoreResult, error) {
	args := m.Called(ctx, c.Slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScoreResult), args.Error(1)
}

func (m *MockScorer) Model() string {
	return "test-model"
}

// MockReloader implements TemplateReloader for testing.
type MockReloader struct {
	mock.Mock
}

func (m *MockReloader) Reload() error {
	return m.Called().Error(0)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCompanies(t *testing.T, st store.Store, companies ...*model.Company) {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	for _, c := range companies {
		require.NoError(t, tx.UpsertCompany(ctx, c))
	}
	require.NoError(t, tx.Commit(ctx))
}

func company(id int64, slug, website string) *model.Company {
	return &model.Company{ID: id, Slug: slug, Name: "Co " + slug, Website: website, Tags: []string{}, Regions: []string{}}
}

func result(overall int) *model.ScoreResult {
	return &model.ScoreResult{
		ThesisFit: 5, MarketTiming: 5, ProductClarity: 5, TeamSignal: 5,
		OverallSignal: overall, OneLineVerdict: "ok", Reasoning: []byte(`{}`),
	}
}
