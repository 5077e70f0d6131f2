package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/venturesignal/internal/db"
	"github.com/sells-group/venturesignal/internal/model"
)

// dialect captures what differs between the SQL backends once the query
// shape is fixed.
type dialect struct {
	name        string
	placeholder sq.PlaceholderFormat
	like        func(col, pattern string) sq.Sqlizer
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		placeholder: sq.Question,
		like:        func(col, pattern string) sq.Sqlizer { return sq.Like{col: pattern} },
	}
	postgresDialect = dialect{
		name:        "postgres",
		placeholder: sq.Dollar,
		like:        func(col, pattern string) sq.Sqlizer { return sq.ILike{col: pattern} },
	}
)

func (d dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

// querier is the execution surface shared by pools, connections and
// transactions of both backends.
type querier interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rowScanner, error)
	queryRow(ctx context.Context, query string, args ...any) scannable
}

type scannable interface {
	Scan(dest ...any) error
}

type rowScanner interface {
	scannable
	Next() bool
	Err() error
	Close()
}

// queries implements the SQL of the store once, parameterized by dialect.
type queries struct {
	q querier
	d dialect
}

var companyWriteColumns = []string{
	"id", "slug", "name", "website", "one_liner", "long_description",
	"industry", "subindustry", "status", "stage", "team_size", "batch",
	"tags", "regions", "created_at", "updated_at",
}

var companyUpsert = db.UpsertConfig{
	Columns:      companyWriteColumns,
	ConflictKeys: []string{"slug"},
	UpdateCols: []string{
		"name", "website", "one_liner", "long_description",
		"industry", "subindustry", "status", "stage", "team_size", "batch",
		"tags", "regions", "updated_at",
	},
}

var scoreWriteColumns = []string{
	"company_id", "thesis_fit", "market_timing", "product_clarity",
	"team_signal", "overall_signal", "one_line_verdict", "reasoning",
	"model_used", "scored_at",
}

var scoreUpsert = db.UpsertConfig{
	Columns:      scoreWriteColumns,
	ConflictKeys: []string{"company_id"},
}

var companyReadColumns = []string{
	"c.id", "c.slug", "c.name", "c.website", "c.one_liner", "c.long_description",
	"c.industry", "c.subindustry", "c.status", "c.stage", "c.team_size", "c.batch",
	"c.tags", "c.regions", "c.enriched_text", "c.enriched_at", "c.created_at", "c.updated_at",
}

var viewScoreColumns = []string{
	"s.thesis_fit", "s.market_timing", "s.product_clarity",
	"s.team_signal", "s.overall_signal", "s.one_line_verdict",
}

var detailScoreColumns = []string{"s.id", "s.reasoning", "s.model_used", "s.scored_at"}

var runColumns = []string{
	"id", "operation", "status", "candidates", "processed", "error", "started_at", "finished_at",
}

func (x queries) upsertCompany(ctx context.Context, c *model.Company) error {
	tags, err := encodeList(c.Tags)
	if err != nil {
		return eris.Wrapf(err, "store: encode tags for %s", c.Slug)
	}
	regions, err := encodeList(c.Regions)
	if err != nil {
		return eris.Wrapf(err, "store: encode regions for %s", c.Slug)
	}
	suffix, err := db.OnConflictClause(companyUpsert)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query, args, err := x.d.builder().
		Insert("companies").
		Columns(companyWriteColumns...).
		Values(
			c.ID, c.Slug, c.Name, c.Website, c.OneLiner, c.LongDescription,
			c.Industry, c.Subindustry, c.Status, c.Stage, c.TeamSize, c.Batch,
			tags, regions, now, now,
		).
		Suffix(suffix).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "store: build company upsert")
	}
	if _, err := x.q.exec(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "store: upsert company %s", c.Slug)
	}
	return nil
}

func (x queries) setEnrichment(ctx context.Context, companyID int64, text string, at time.Time) error {
	query, args, err := x.d.builder().
		Update("companies").
		Set("enriched_text", text).
		Set("enriched_at", at.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": companyID}).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "store: build enrichment update")
	}
	n, err := x.q.exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "store: set enrichment for company %d", companyID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: company %d", companyID)
	}
	return nil
}

func (x queries) upsertScore(ctx context.Context, s *model.Score) error {
	reasoning := string(s.Reasoning)
	if reasoning == "" {
		reasoning = "{}"
	}
	scoredAt := s.ScoredAt
	if scoredAt.IsZero() {
		scoredAt = time.Now()
	}
	suffix, err := db.OnConflictClause(scoreUpsert)
	if err != nil {
		return err
	}

	query, args, err := x.d.builder().
		Insert("scores").
		Columns(scoreWriteColumns...).
		Values(
			s.CompanyID, s.ThesisFit, s.MarketTiming, s.ProductClarity,
			s.TeamSignal, s.OverallSignal, s.OneLineVerdict, reasoning,
			s.ModelUsed, scoredAt.UTC(),
		).
		Suffix(suffix).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "store: build score upsert")
	}
	if _, err := x.q.exec(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "store: upsert score for company %d", s.CompanyID)
	}
	return nil
}

func (x queries) listCompanies(ctx context.Context, b sq.SelectBuilder) ([]model.Company, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build company query")
	}
	rows, err := x.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list companies")
	}
	defer rows.Close()

	out := []model.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "store: list companies iterate")
}

func (x queries) selectCompanies() sq.SelectBuilder {
	return x.d.builder().Select(companyReadColumns...).From("companies c")
}

func (x queries) listUnenriched(ctx context.Context) ([]model.Company, error) {
	return x.listCompanies(ctx, x.selectCompanies().
		Where(sq.Eq{"c.enriched_at": nil}).
		Where(sq.NotEq{"c.website": ""}).
		OrderBy("c.id"))
}

func (x queries) listUnscored(ctx context.Context, limit int) ([]model.Company, error) {
	b := x.selectCompanies().
		LeftJoin("scores s ON s.company_id = c.id").
		Where(sq.Eq{"s.id": nil}).
		OrderBy("c.id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return x.listCompanies(ctx, b)
}

func (x queries) listAllCompanies(ctx context.Context) ([]model.Company, error) {
	return x.listCompanies(ctx, x.selectCompanies().OrderBy("c.id"))
}

func (x queries) deleteAllScores(ctx context.Context) (int64, error) {
	query, args, err := x.d.builder().Delete("scores").ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "store: build score delete")
	}
	n, err := x.q.exec(ctx, query, args...)
	return n, eris.Wrap(err, "store: delete scores")
}

func (x queries) count(ctx context.Context, b sq.SelectBuilder, what string) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, eris.Wrapf(err, "store: build %s count", what)
	}
	var n int
	if err := x.q.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "store: count %s", what)
	}
	return n, nil
}

func (x queries) countScores(ctx context.Context) (int, error) {
	return x.count(ctx, x.d.builder().Select("COUNT(*)").From("scores"), "scores")
}

func (x queries) listCompanyViews(ctx context.Context, f CompanyFilter) ([]model.CompanyView, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultCompanyLimit
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	b := x.d.builder().
		Select(append(append([]string{}, companyReadColumns...), viewScoreColumns...)...).
		From("companies c").
		LeftJoin("scores s ON s.company_id = c.id")
	if f.Stage != "" {
		b = b.Where(sq.Eq{"c.stage": f.Stage})
	}
	if f.Industry != "" {
		b = b.Where(sq.Eq{"c.industry": f.Industry})
	}
	if f.Batch != "" {
		b = b.Where(sq.Eq{"c.batch": f.Batch})
	}
	if f.MinScore != nil {
		b = b.Where(sq.GtOrEq{"s.overall_signal": *f.MinScore})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		b = b.Where(sq.Or{x.d.like("c.name", pattern), x.d.like("c.one_liner", pattern)})
	}
	b = b.OrderBy("s.overall_signal DESC NULLS LAST", "c.id").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit))

	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build company listing")
	}
	rows, err := x.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list company views")
	}
	defer rows.Close()

	out := []model.CompanyView{}
	for rows.Next() {
		var v model.CompanyView
		var tags, regions []byte
		dest := append(companyDest(&v.Company, &tags, &regions),
			&v.ThesisFit, &v.MarketTiming, &v.ProductClarity,
			&v.TeamSignal, &v.OverallSignal, &v.OneLineVerdict,
		)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "store: scan company view")
		}
		v.Tags = decodeList(tags)
		v.Regions = decodeList(regions)
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "store: list company views iterate")
}

func (x queries) getCompany(ctx context.Context, id int64) (*model.CompanyDetail, error) {
	cols := append(append(append([]string{}, companyReadColumns...), viewScoreColumns...), detailScoreColumns...)
	query, args, err := x.d.builder().
		Select(cols...).
		From("companies c").
		LeftJoin("scores s ON s.company_id = c.id").
		Where(sq.Eq{"c.id": id}).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build company lookup")
	}

	var v model.CompanyView
	var tags, regions, reasoning []byte
	var scoreID *int64
	var modelUsed *string
	var scoredAt *time.Time
	dest := append(companyDest(&v.Company, &tags, &regions),
		&v.ThesisFit, &v.MarketTiming, &v.ProductClarity,
		&v.TeamSignal, &v.OverallSignal, &v.OneLineVerdict,
		&scoreID, &reasoning, &modelUsed, &scoredAt,
	)
	if err := x.q.queryRow(ctx, query, args...).Scan(dest...); err != nil {
		if isNoRows(err) {
			return nil, eris.Wrapf(ErrNotFound, "store: company %d", id)
		}
		return nil, eris.Wrapf(err, "store: get company %d", id)
	}
	v.Tags = decodeList(tags)
	v.Regions = decodeList(regions)

	detail := &model.CompanyDetail{Company: v}
	if scoreID != nil {
		s := &model.Score{
			ID:        *scoreID,
			CompanyID: v.ID,
			Reasoning: json.RawMessage(reasoning),
		}
		if len(s.Reasoning) == 0 {
			s.Reasoning = json.RawMessage(`{}`)
		}
		deref(v.ThesisFit, &s.ThesisFit)
		deref(v.MarketTiming, &s.MarketTiming)
		deref(v.ProductClarity, &s.ProductClarity)
		deref(v.TeamSignal, &s.TeamSignal)
		deref(v.OverallSignal, &s.OverallSignal)
		deref(v.OneLineVerdict, &s.OneLineVerdict)
		deref(modelUsed, &s.ModelUsed)
		deref(scoredAt, &s.ScoredAt)
		detail.ScoreDetail = s
	}
	return detail, nil
}

func (x queries) stats(ctx context.Context) (*model.Stats, error) {
	b := x.d.builder()
	st := &model.Stats{}
	var err error

	if st.TotalCompanies, err = x.count(ctx, b.Select("COUNT(*)").From("companies"), "companies"); err != nil {
		return nil, err
	}
	if st.ScoredCompanies, err = x.countScores(ctx); err != nil {
		return nil, err
	}
	if st.EnrichedCompanies, err = x.count(ctx,
		b.Select("COUNT(*)").From("companies").Where(sq.NotEq{"enriched_at": nil}),
		"enriched companies"); err != nil {
		return nil, err
	}

	query, args, err := b.Select("CAST(AVG(overall_signal) AS DOUBLE PRECISION)").From("scores").ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build average")
	}
	var avg *float64
	if err := x.q.queryRow(ctx, query, args...).Scan(&avg); err != nil {
		return nil, eris.Wrap(err, "store: average overall signal")
	}
	if avg != nil {
		st.AvgOverallSignal = math.Round(*avg*10) / 10
	}

	if st.TopIndustries, err = x.groupCount(ctx, "industry", 10); err != nil {
		return nil, err
	}
	if st.StageBreakdown, err = x.groupCount(ctx, "stage", 0); err != nil {
		return nil, err
	}

	query, args, err = b.Select("c.name", "s.overall_signal", "s.one_line_verdict").
		From("companies c").
		Join("scores s ON s.company_id = c.id").
		OrderBy("s.overall_signal DESC", "c.id").
		Limit(10).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build top companies")
	}
	rows, err := x.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: top companies")
	}
	defer rows.Close()
	st.TopCompanies = []model.TopCompany{}
	for rows.Next() {
		var tc model.TopCompany
		if err := rows.Scan(&tc.Name, &tc.OverallSignal, &tc.Verdict); err != nil {
			return nil, eris.Wrap(err, "store: scan top company")
		}
		st.TopCompanies = append(st.TopCompanies, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: top companies iterate")
	}
	return st, nil
}

// groupCount counts companies per value of col, largest first. A limit of
// zero returns every group. Blank values are reported as "Unknown".
func (x queries) groupCount(ctx context.Context, col string, limit int) ([]model.NamedCount, error) {
	b := x.d.builder().
		Select(col, "COUNT(*)").
		From("companies").
		GroupBy(col).
		OrderBy("COUNT(*) DESC", col)
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "store: build %s breakdown", col)
	}
	rows, err := x.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: %s breakdown", col)
	}
	defer rows.Close()

	out := []model.NamedCount{}
	for rows.Next() {
		var name *string
		var nc model.NamedCount
		if err := rows.Scan(&name, &nc.Count); err != nil {
			return nil, eris.Wrapf(err, "store: scan %s breakdown", col)
		}
		nc.Name = "Unknown"
		if name != nil && *name != "" {
			nc.Name = *name
		}
		out = append(out, nc)
	}
	return out, eris.Wrapf(rows.Err(), "store: %s breakdown iterate", col)
}

func (x queries) createRun(ctx context.Context, op model.Operation) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Operation: op,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	query, args, err := x.d.builder().
		Insert("pipeline_runs").
		Columns("id", "operation", "status", "candidates", "processed", "error", "started_at").
		Values(run.ID, string(run.Operation), string(run.Status), 0, 0, "", run.StartedAt).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build run insert")
	}
	if _, err := x.q.exec(ctx, query, args...); err != nil {
		return nil, eris.Wrapf(err, "store: insert %s run", op)
	}
	return run, nil
}

func (x queries) completeRun(ctx context.Context, run *model.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	query, args, err := x.d.builder().
		Update("pipeline_runs").
		Set("status", string(run.Status)).
		Set("candidates", run.Candidates).
		Set("processed", run.Processed).
		Set("error", run.Error).
		Set("finished_at", run.FinishedAt.UTC()).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "store: build run update")
	}
	n, err := x.q.exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "store: complete run %s", run.ID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: run %s", run.ID)
	}
	return nil
}

func (x queries) listRuns(ctx context.Context, f RunFilter) ([]model.Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	b := x.d.builder().Select(runColumns...).From("pipeline_runs")
	if f.Operation != "" {
		b = b.Where(sq.Eq{"operation": string(f.Operation)})
	}
	query, args, err := b.OrderBy("started_at DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "store: build run listing")
	}
	rows, err := x.q.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	out := []model.Run{}
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Operation, &r.Status, &r.Candidates, &r.Processed,
			&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: list runs iterate")
}

// helpers

func companyDest(c *model.Company, tags, regions *[]byte) []any {
	return []any{
		&c.ID, &c.Slug, &c.Name, &c.Website, &c.OneLiner, &c.LongDescription,
		&c.Industry, &c.Subindustry, &c.Status, &c.Stage, &c.TeamSize, &c.Batch,
		tags, regions, &c.EnrichedText, &c.EnrichedAt, &c.CreatedAt, &c.UpdatedAt,
	}
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var tags, regions []byte
	if err := row.Scan(companyDest(&c, &tags, &regions)...); err != nil {
		return nil, eris.Wrap(err, "store: scan company")
	}
	c.Tags = decodeList(tags)
	c.Regions = decodeList(regions)
	return &c, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

// decodeList reads a stored JSON string array. Empty or unreadable values
// decode to an empty list.
func decodeList(b []byte) []string {
	out := []string{}
	if len(b) == 0 {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func deref[T any](p *T, dst *T) {
	if p != nil {
		*dst = *p
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
