// Package memstore provides an in-process [metrics.Store]. It is used when no
// database is configured and as a fast store in tests. Records live only as
// long as the process.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/healthcompass/pkg/metrics"
)

var (
	_ metrics.Store  = (*Store)(nil)
	_ metrics.Pinger = (*Store)(nil)
)

// Store keeps records in memory. The zero value is ready to use.
type Store struct {
	mu      sync.RWMutex
	records []metrics.Record
	nextID  int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Insert implements [metrics.Store].
func (s *Store) Insert(ctx context.Context, rec metrics.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("memstore: insert: %w", err)
	}
	if rec.MetricType == "" {
		return 0, fmt.Errorf("memstore: insert: %w", metrics.ErrMissingMetricType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// Query implements [metrics.Store].
func (s *Store) Query(ctx context.Context, q metrics.Query) ([]metrics.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memstore: query: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("memstore: query: %w", err)
	}

	s.mu.RLock()
	var matched []metrics.Record
	for _, r := range s.records {
		if r.MetricType != q.MetricType {
			continue
		}
		if q.DateStart != "" && r.Date < q.DateStart {
			continue
		}
		if q.DateEnd != "" && r.Date > q.DateEnd {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	if q.Aggregate != metrics.AggregateNone {
		return aggregate(matched, q.Aggregate), nil
	}

	slices.SortStableFunc(matched, func(a, b metrics.Record) int {
		return cmp.Or(
			cmp.Compare(a.Date, b.Date),
			cmp.Compare(a.Time, b.Time),
			cmp.Compare(a.ID, b.ID),
		)
	})
	rows := make([]metrics.Row, 0, len(matched))
	for _, r := range matched {
		rows = append(rows, metrics.Row{
			Value:   r.Value,
			Unit:    r.Unit,
			Date:    r.Date,
			Time:    r.Time,
			Subtype: r.Subtype,
		})
	}
	return rows, nil
}

// Ping implements [metrics.Pinger]. An in-memory store is always ready.
func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of every stored record in insertion order.
func (s *Store) Records() []metrics.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// aggregate computes one row per distinct unit, ordered by unit.
func aggregate(recs []metrics.Record, agg metrics.Aggregate) []metrics.Row {
	type acc struct {
		min, max, sum float64
		n             int
	}
	byUnit := make(map[string]*acc)
	for _, r := range recs {
		a, ok := byUnit[r.Unit]
		if !ok {
			a = &acc{min: r.Value, max: r.Value}
			byUnit[r.Unit] = a
		}
		a.min = min(a.min, r.Value)
		a.max = max(a.max, r.Value)
		a.sum += r.Value
		a.n++
	}

	units := make([]string, 0, len(byUnit))
	for u := range byUnit {
		units = append(units, u)
	}
	slices.Sort(units)

	rows := make([]metrics.Row, 0, len(units))
	for _, u := range units {
		a := byUnit[u]
		var v float64
		switch agg {
		case metrics.AggregateMin:
			v = a.min
		case metrics.AggregateMax:
			v = a.max
		case metrics.AggregateAvg:
			v = a.sum / float64(a.n)
		case metrics.AggregateCount:
			v = float64(a.n)
		}
		rows = append(rows, metrics.Row{Value: v, Unit: u})
	}
	return rows
}
