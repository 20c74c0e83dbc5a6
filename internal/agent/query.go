package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/healthcompass/internal/normalize"
	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/pkg/metrics"
)

// metricQuerier answers QUERY_METRICS plans with either the matching records
// or one aggregate value per unit.
type metricQuerier struct {
	store   metrics.Store
	metrics *observe.Metrics
}

// Handle implements [Handler].
func (q *metricQuerier) Handle(ctx context.Context, req Request) (string, error) {
	e := req.Plan.Entities
	if strings.TrimSpace(e.MetricType) == "" {
		return MsgQueryNoType, nil
	}

	query := metrics.Query{
		MetricType: normalize.CanonicalMetricType(e.MetricType),
		Aggregate:  metrics.Aggregate(strings.ToLower(strings.TrimSpace(e.Aggregate))),
	}
	query.DateStart, query.DateEnd = normalize.OrderRange(
		normalize.ResolveDate(strings.TrimSpace(e.DateStart), req.Now),
		normalize.ResolveDate(strings.TrimSpace(e.DateEnd), req.Now),
	)

	start := time.Now()
	rows, err := q.store.Query(ctx, query)
	q.metrics.StorageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", "query")))
	if err != nil {
		return "", apologize(MsgQueryFailed, fmt.Errorf("agent: query %s: %w", query.MetricType, err))
	}

	if len(rows) == 0 {
		return fmt.Sprintf(MsgQueryNoRows, query.MetricType), nil
	}
	return formatRows(query, rows), nil
}

// formatRows renders rows as a header line followed by one bullet per row.
// Aggregates are shown with two decimals, record values as stored.
func formatRows(q metrics.Query, rows []metrics.Row) string {
	var b strings.Builder
	if q.Aggregate != metrics.AggregateNone {
		fmt.Fprintf(&b, "The %s for %q is:", q.Aggregate, q.MetricType)
		for _, r := range rows {
			fmt.Fprintf(&b, "\n- %.2f%s", r.Value, unitSuffix(r.Unit))
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Here are your records for %q:", q.MetricType)
	for _, r := range rows {
		when := r.Time
		if when == "" {
			when = "N/A"
		}
		fmt.Fprintf(&b, "\n- %s at %s", r.Date, when)
		if r.Subtype != "" {
			fmt.Fprintf(&b, " (%s)", r.Subtype)
		}
		fmt.Fprintf(&b, ": %s%s", strconv.FormatFloat(r.Value, 'f', -1, 64), unitSuffix(r.Unit))
	}
	return b.String()
}
