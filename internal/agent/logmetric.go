package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/healthcompass/internal/normalize"
	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/pkg/metrics"
)

// metricLogger answers LOG_METRIC plans by persisting one record, or two for
// a composite reading such as a blood pressure of "120/80".
type metricLogger struct {
	store   metrics.Store
	metrics *observe.Metrics
}

// Handle implements [Handler].
func (l *metricLogger) Handle(ctx context.Context, req Request) (string, error) {
	e := req.Plan.Entities
	value := strings.TrimSpace(e.Value)
	if strings.TrimSpace(e.MetricType) == "" || value == "" {
		return MsgLogIncomplete, nil
	}

	metricType := normalize.CanonicalMetricType(e.MetricType)
	unit := strings.TrimSpace(e.Unit)
	if unit == "" {
		unit = normalize.DefaultUnit(metricType)
	}
	date := normalize.ResolveDate(strings.TrimSpace(e.Date), req.Now)
	if date == "" {
		date = req.Now.Format(normalize.DateLayout)
	}

	base := metrics.Record{
		MetricType: metricType,
		Unit:       unit,
		Date:       date,
		Time:       normalize.ResolveTime(strings.TrimSpace(e.Time), req.Now),
		Subtype:    strings.TrimSpace(e.Subtype),
		Notes:      strings.TrimSpace(e.Notes),
		Timestamp:  req.Now,
	}

	if strings.Contains(value, normalize.DefaultSeparator) {
		return l.logComposite(ctx, base, value)
	}

	v, ok := parseValue(value)
	if !ok {
		return fmt.Sprintf(MsgLogBadValue, value), nil
	}
	rec := base
	rec.Value = v

	id, err := l.insert(ctx, rec)
	if err != nil {
		return "", apologize(MsgLogFailed, fmt.Errorf("agent: log %s: %w", metricType, err))
	}
	return fmt.Sprintf("Thank you for providing the information. I have logged your %s with a value of %s%s (record #%d).",
		displayName(metricType), value, unitSuffix(unit), id), nil
}

// logComposite splits value into its two halves and stores them as separate
// records. The writes are concurrent and independent: one failing does not
// cancel or undo the other.
func (l *metricLogger) logComposite(ctx context.Context, base metrics.Record, value string) (string, error) {
	parts, ok := normalize.SplitComposite(value, normalize.DefaultSeparator)
	if !ok {
		return fmt.Sprintf(MsgLogBadValue, value), nil
	}
	first, second, ok := normalize.CompositeSubtypes(base.MetricType)
	if !ok {
		return fmt.Sprintf(MsgLogComposite, value, displayName(base.MetricType)), nil
	}

	subtypes := [2]string{first, second}
	var recs [2]metrics.Record
	for i, p := range parts {
		v, ok := parseValue(p)
		if !ok {
			return fmt.Sprintf(MsgLogBadValue, value), nil
		}
		recs[i] = base
		recs[i].Value = v
		recs[i].Subtype = subtypes[i]
	}

	var (
		g    errgroup.Group
		ids  [2]int64
		errs [2]error
	)
	for i := range recs {
		g.Go(func() error {
			ids[i], errs[i] = l.insert(ctx, recs[i])
			return errs[i]
		})
	}
	if err := g.Wait(); err == nil {
		return fmt.Sprintf("Thank you for providing the information. I have logged your %s reading of %s%s (%s %s, %s %s; records #%d and #%d).",
			displayName(base.MetricType), value, unitSuffix(base.Unit),
			first, parts[0], second, parts[1], ids[0], ids[1]), nil
	}

	if errs[0] != nil && errs[1] != nil {
		return "", apologize(MsgLogFailed, fmt.Errorf("agent: log %s: %w", base.MetricType, errors.Join(errs[0], errs[1])))
	}

	stored, failed := 0, 1
	if errs[0] != nil {
		stored, failed = 1, 0
	}
	observe.Logger(ctx).Warn("composite reading partially stored",
		"metric_type", base.MetricType,
		"stored", subtypes[stored],
		"failed", subtypes[failed],
		"err", errs[failed],
	)
	return fmt.Sprintf("I logged your %s %s value of %s%s (record #%d), but saving the %s value of %s failed. Please log it again.",
		displayName(base.MetricType), subtypes[stored], parts[stored], unitSuffix(base.Unit), ids[stored],
		subtypes[failed], parts[failed]), nil
}

func (l *metricLogger) insert(ctx context.Context, rec metrics.Record) (int64, error) {
	start := time.Now()
	id, err := l.store.Insert(ctx, rec)
	l.metrics.StorageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", "insert")))
	return id, err
}

// parseValue parses a finite decimal number.
func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// displayName renders a canonical metric type for humans: "heart_rate"
// becomes "heart rate".
func displayName(metricType string) string {
	return strings.ReplaceAll(metricType, "_", " ")
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
