package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/venturesignal/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	queries
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, queries: queries{q: sqlQuerier{db}, d: sqliteDialect}}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               INTEGER PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	website          TEXT NOT NULL DEFAULT '',
	one_liner        TEXT NOT NULL DEFAULT '',
	long_description TEXT NOT NULL DEFAULT '',
	industry         TEXT NOT NULL DEFAULT '',
	subindustry      TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	stage            TEXT NOT NULL DEFAULT '',
	team_size        INTEGER,
	batch            TEXT NOT NULL DEFAULT '',
	tags             TEXT NOT NULL DEFAULT '[]',
	regions          TEXT NOT NULL DEFAULT '[]',
	enriched_text    TEXT,
	enriched_at      DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scores (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id       INTEGER NOT NULL UNIQUE REFERENCES companies(id) ON DELETE CASCADE,
	thesis_fit       INTEGER NOT NULL,
	market_timing    INTEGER NOT NULL,
	product_clarity  INTEGER NOT NULL,
	team_signal      INTEGER NOT NULL,
	overall_signal   INTEGER NOT NULL,
	one_line_verdict TEXT NOT NULL DEFAULT '',
	reasoning        TEXT NOT NULL DEFAULT '{}',
	model_used       TEXT NOT NULL DEFAULT '',
	scored_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	operation   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	candidates  INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_companies_enriched_at ON companies(enriched_at);
CREATE INDEX IF NOT EXISTS idx_scores_overall_signal ON scores(overall_signal);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	return &sqliteTx{tx: tx, queries: queries{q: sqlQuerier{tx}, d: sqliteDialect}}, nil
}

func (s *SQLiteStore) ListUnenriched(ctx context.Context) ([]model.Company, error) {
	return s.listUnenriched(ctx)
}

func (s *SQLiteStore) ListUnscored(ctx context.Context, limit int) ([]model.Company, error) {
	return s.listUnscored(ctx, limit)
}

func (s *SQLiteStore) ListAllCompanies(ctx context.Context) ([]model.Company, error) {
	return s.listAllCompanies(ctx)
}

func (s *SQLiteStore) DeleteAllScores(ctx context.Context) (int64, error) {
	return s.deleteAllScores(ctx)
}

func (s *SQLiteStore) CountScores(ctx context.Context) (int, error) {
	return s.countScores(ctx)
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.CompanyView, error) {
	return s.listCompanyViews(ctx, filter)
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.CompanyDetail, error) {
	return s.getCompany(ctx, id)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	return s.stats(ctx)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, op model.Operation) (*model.Run, error) {
	return s.createRun(ctx, op)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.Run) error {
	return s.completeRun(ctx, run)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	return s.listRuns(ctx, filter)
}

type sqliteTx struct {
	tx *sql.Tx
	queries
}

func (t *sqliteTx) UpsertCompany(ctx context.Context, c *model.Company) error {
	return t.upsertCompany(ctx, c)
}

func (t *sqliteTx) SetEnrichment(ctx context.Context, companyID int64, text string, at time.Time) error {
	return t.setEnrichment(ctx, companyID, text, at)
}

func (t *sqliteTx) UpsertScore(ctx context.Context, sc *model.Score) error {
	return t.upsertScore(ctx, sc)
}

func (t *sqliteTx) Commit(_ context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit")
}

func (t *sqliteTx) Rollback(_ context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return eris.Wrap(err, "sqlite: rollback")
}

// sqlConn is implemented by *sql.DB and *sql.Tx.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlQuerier struct {
	conn sqlConn
}

func (q sqlQuerier) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q sqlQuerier) query(ctx context.Context, query string, args ...any) (rowScanner, error) {
	rows, err := q.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (q sqlQuerier) queryRow(ctx context.Context, query string, args ...any) scannable {
	return q.conn.QueryRowContext(ctx, query, args...)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	r.Rows.Close() //nolint:errcheck
}
