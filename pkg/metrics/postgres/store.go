package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/healthcompass/pkg/metrics"
)

var (
	_ metrics.Store  = (*Store)(nil)
	_ metrics.Pinger = (*Store)(nil)
)

// aggregateSQL maps each supported aggregate to its SQL function. Only these
// strings are ever interpolated into a statement.
var aggregateSQL = map[metrics.Aggregate]string{
	metrics.AggregateMin:   "MIN",
	metrics.AggregateMax:   "MAX",
	metrics.AggregateAvg:   "AVG",
	metrics.AggregateCount: "COUNT",
}

// Store is a PostgreSQL-backed [metrics.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn, verifies the
// connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping implements [metrics.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Insert implements [metrics.Store].
func (s *Store) Insert(ctx context.Context, rec metrics.Record) (int64, error) {
	const q = `
		INSERT INTO metrics
		    (metric_type, value, unit, date, time, subtype, notes, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if rec.MetricType == "" {
		return 0, fmt.Errorf("postgres store: insert: %w", metrics.ErrMissingMetricType)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var id int64
	err := s.pool.QueryRow(ctx, q,
		rec.MetricType,
		rec.Value,
		rec.Unit,
		rec.Date,
		rec.Time,
		rec.Subtype,
		rec.Notes,
		ts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres store: insert: %w", err)
	}
	return id, nil
}

// Query implements [metrics.Store].
func (s *Store) Query(ctx context.Context, q metrics.Query) ([]metrics.Row, error) {
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query: %w", err)
	}
	if q.Aggregate != metrics.AggregateNone {
		return collectAggregates(rows)
	}
	return collectRecords(rows)
}

// buildQuery assembles the SELECT statement for q. Filters are added only
// for the bounds that are set.
func buildQuery(q metrics.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"metric_type = " + next(q.MetricType)}
	if q.DateStart != "" {
		conditions = append(conditions, "date >= "+next(q.DateStart))
	}
	if q.DateEnd != "" {
		conditions = append(conditions, "date <= "+next(q.DateEnd))
	}
	where := "WHERE  " + strings.Join(conditions, "\n  AND  ")

	if fn, ok := aggregateSQL[q.Aggregate]; ok {
		return "SELECT " + fn + "(value)::float8, unit\n" +
			"FROM   metrics\n" +
			where + "\n" +
			"GROUP  BY unit\n" +
			"ORDER  BY unit", args, nil
	}

	return "SELECT value, unit, date, time, subtype\n" +
		"FROM   metrics\n" +
		where + "\n" +
		"ORDER  BY date, time, id", args, nil
}

func collectRecords(rows pgx.Rows) ([]metrics.Row, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (metrics.Row, error) {
		var r metrics.Row
		err := row.Scan(&r.Value, &r.Unit, &r.Date, &r.Time, &r.Subtype)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if out == nil {
		out = []metrics.Row{}
	}
	return out, nil
}

func collectAggregates(rows pgx.Rows) ([]metrics.Row, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (metrics.Row, error) {
		var r metrics.Row
		err := row.Scan(&r.Value, &r.Unit)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan aggregates: %w", err)
	}
	if out == nil {
		out = []metrics.Row{}
	}
	return out, nil
}
