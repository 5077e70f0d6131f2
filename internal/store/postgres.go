package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/venturesignal/internal/db"
	"github.com/sells-group/venturesignal/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	queries
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		closeFn: closeFn,
		queries: queries{q: pgxQuerier{pool}, d: postgresDialect},
	}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               BIGINT PRIMARY KEY,
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
	tags             JSONB NOT NULL DEFAULT '[]',
	regions          JSONB NOT NULL DEFAULT '[]',
	enriched_text    TEXT,
	enriched_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scores (
	id               BIGSERIAL PRIMARY KEY,
	company_id       BIGINT NOT NULL UNIQUE REFERENCES companies(id) ON DELETE CASCADE,
	thesis_fit       INTEGER NOT NULL CHECK (thesis_fit BETWEEN 1 AND 10),
	market_timing    INTEGER NOT NULL CHECK (market_timing BETWEEN 1 AND 10),
	product_clarity  INTEGER NOT NULL CHECK (product_clarity BETWEEN 1 AND 10),
	team_signal      INTEGER NOT NULL CHECK (team_signal BETWEEN 1 AND 10),
	overall_signal   INTEGER NOT NULL CHECK (overall_signal BETWEEN 1 AND 10),
	one_line_verdict TEXT NOT NULL DEFAULT '',
	reasoning        JSONB NOT NULL DEFAULT '{}',
	model_used       TEXT NOT NULL DEFAULT '',
	scored_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	operation   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	candidates  INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_companies_enriched_at ON companies(enriched_at);
CREATE INDEX IF NOT EXISTS idx_scores_overall_signal ON scores(overall_signal);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	return &postgresTx{tx: tx, queries: queries{q: pgxQuerier{tx}, d: postgresDialect}}, nil
}

func (s *PostgresStore) ListUnenriched(ctx context.Context) ([]model.Company, error) {
	return s.listUnenriched(ctx)
}

func (s *PostgresStore) ListUnscored(ctx context.Context, limit int) ([]model.Company, error) {
	return s.listUnscored(ctx, limit)
}

func (s *PostgresStore) ListAllCompanies(ctx context.Context) ([]model.Company, error) {
	return s.listAllCompanies(ctx)
}

func (s *PostgresStore) DeleteAllScores(ctx context.Context) (int64, error) {
	return s.deleteAllScores(ctx)
}

func (s *PostgresStore) CountScores(ctx context.Context) (int, error) {
	return s.countScores(ctx)
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.CompanyView, error) {
	return s.listCompanyViews(ctx, filter)
}

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.CompanyDetail, error) {
	return s.getCompany(ctx, id)
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	return s.stats(ctx)
}

func (s *PostgresStore) CreateRun(ctx context.Context, op model.Operation) (*model.Run, error) {
	return s.createRun(ctx, op)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.Run) error {
	return s.completeRun(ctx, run)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	return s.listRuns(ctx, filter)
}

type postgresTx struct {
	tx pgx.Tx
	queries
}

func (t *postgresTx) UpsertCompany(ctx context.Context, c *model.Company) error {
	return t.upsertCompany(ctx, c)
}

func (t *postgresTx) SetEnrichment(ctx context.Context, companyID int64, text string, at time.Time) error {
	return t.setEnrichment(ctx, companyID, text, at)
}

func (t *postgresTx) UpsertScore(ctx context.Context, sc *model.Score) error {
	return t.upsertScore(ctx, sc)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit")
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return eris.Wrap(err, "postgres: rollback")
}

// pgxConn is implemented by db.Pool and pgx.Tx.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxQuerier struct {
	conn pgxConn
}

func (q pgxQuerier) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := q.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q pgxQuerier) query(ctx context.Context, query string, args ...any) (rowScanner, error) {
	return q.conn.Query(ctx, query, args...)
}

func (q pgxQuerier) queryRow(ctx context.Context, query string, args ...any) scannable {
	return q.conn.QueryRow(ctx, query, args...)
}
