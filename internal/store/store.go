package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venturesignal/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Default page sizes.
const (
	DefaultCompanyLimit = 50
	DefaultRunLimit     = 50
)

// CompanyFilter narrows the company listing.
type CompanyFilter struct {
	Stage    string `json:"stage,omitempty"`
	Industry string `json:"industry,omitempty"`
	Batch    string `json:"batch,omitempty"`
	MinScore *int   `json:"min_score,omitempty"`
	Search   string `json:"search,omitempty"` // substring of name or one-liner, case-insensitive
	Page     int    `json:"page,omitempty"`   // 1-based
	Limit    int    `json:"limit,omitempty"`
}

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Operation model.Operation `json:"operation,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

// Tx is a unit of work. Nothing written through it is visible to other
// readers until Commit.
type Tx interface {
	// UpsertCompany inserts the company keyed by slug, or overwrites the
	// business fields of the existing row. Enrichment columns are never
	// touched and the id of an existing row never changes.
	UpsertCompany(ctx context.Context, c *model.Company) error
	SetEnrichment(ctx context.Context, companyID int64, text string, at time.Time) error
	// UpsertScore inserts the score keyed by company id or overwrites it in
	// place.
	UpsertScore(ctx context.Context, s *model.Score) error
	Commit(ctx context.Context) error
	// Rollback discards uncommitted writes. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}

// Store defines the persistence interface for the screening pipeline.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// Pipeline reads
	ListUnenriched(ctx context.Context) ([]model.Company, error)
	ListUnscored(ctx context.Context, limit int) ([]model.Company, error)
	ListAllCompanies(ctx context.Context) ([]model.Company, error)
	DeleteAllScores(ctx context.Context) (int64, error)
	CountScores(ctx context.Context) (int, error)

	// Dashboard reads
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.CompanyView, error)
	GetCompany(ctx context.Context, id int64) (*model.CompanyDetail, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// Runs
	CreateRun(ctx context.Context, op model.Operation) (*model.Run, error)
	CompleteRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
