// Package postgres provides a PostgreSQL-backed [metrics.Store] built on a
// pgx/v5 connection pool.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	id, _ := store.Insert(ctx, metrics.Record{MetricType: "weight", Value: 75, Unit: "kg"})
//	rows, _ := store.Query(ctx, metrics.Query{MetricType: "weight", Aggregate: metrics.AggregateAvg})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Dates and times are stored as ISO text so that lexical order is
// chronological and range filters compare directly.
const ddlMetrics = `
CREATE TABLE IF NOT EXISTS metrics (
    id           BIGSERIAL         PRIMARY KEY,
    metric_type  TEXT              NOT NULL,
    value        DOUBLE PRECISION  NOT NULL,
    unit         TEXT              NOT NULL DEFAULT '',
    date         TEXT              NOT NULL,
    time         TEXT              NOT NULL DEFAULT '',
    subtype      TEXT              NOT NULL DEFAULT '',
    notes        TEXT              NOT NULL DEFAULT '',
    recorded_at  TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_metrics_type_date
    ON metrics (metric_type, date, time);
`

// Migrate creates the metrics table and its indexes. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlMetrics); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
