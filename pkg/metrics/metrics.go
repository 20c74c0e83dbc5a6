// Package metrics defines the storage contract for logged health
// measurements.
//
// A [Store] persists [Record] values and answers [Query] requests either as
// individual records or as one aggregate row per unit. Implementations live
// in sub-packages: postgres (pgx/v5), memstore (in-process) and mock (test
// double).
//
// Every implementation must be safe for concurrent use.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by [Query.Validate] and by stores that validate
// their input.
var (
	ErrUnsupportedAggregate = errors.New("metrics: unsupported aggregate")
	ErrMissingMetricType    = errors.New("metrics: metric type is required")
)

// Aggregate names a summary function. The zero value requests individual
// records.
type Aggregate string

// Supported aggregates.
const (
	AggregateNone  Aggregate = ""
	AggregateMin   Aggregate = "min"
	AggregateMax   Aggregate = "max"
	AggregateAvg   Aggregate = "avg"
	AggregateCount Aggregate = "count"
)

// Valid reports whether a is one of the supported aggregates or none.
func (a Aggregate) Valid() bool {
	switch a {
	case AggregateNone, AggregateMin, AggregateMax, AggregateAvg, AggregateCount:
		return true
	}
	return false
}

// Record is a single logged measurement.
type Record struct {
	// ID is assigned by the store on insert.
	ID int64

	// MetricType is the canonical metric name, e.g. "blood_pressure".
	MetricType string

	// Value is the numeric reading.
	Value float64

	// Unit is the unit of Value, e.g. "mmHg". May be empty.
	Unit string

	// Date is the measurement date as YYYY-MM-DD.
	Date string

	// Time is the measurement clock time as HH:MM:SS.
	Time string

	// Subtype distinguishes parts of a composite reading ("systolic") or
	// adds context ("fasting"). May be empty.
	Subtype string

	// Notes is free text supplied by the user.
	Notes string

	// Timestamp is when the record was written. Stores fill it in when zero.
	Timestamp time.Time
}

// Query selects records of one metric type, optionally bounded by date and
// optionally summarised.
type Query struct {
	// MetricType is required.
	MetricType string

	// Aggregate, when set, returns one row per distinct unit.
	Aggregate Aggregate

	// DateStart and DateEnd are inclusive YYYY-MM-DD bounds. Empty means
	// unbounded.
	DateStart string
	DateEnd   string
}

// Validate checks that q can be executed.
func (q Query) Validate() error {
	var errs []error
	if q.MetricType == "" {
		errs = append(errs, ErrMissingMetricType)
	}
	if !q.Aggregate.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnsupportedAggregate, q.Aggregate))
	}
	return errors.Join(errs...)
}

// Row is one result of a [Query]. For aggregate queries only Value and Unit
// are set.
type Row struct {
	Value   float64
	Unit    string
	Date    string
	Time    string
	Subtype string
}

// Store persists and queries metric records.
type Store interface {
	// Insert persists rec and returns its generated identifier.
	Insert(ctx context.Context, rec Record) (int64, error)

	// Query returns matching rows. Record rows are ordered by date, time and
	// insertion order; aggregate rows by unit. A query with no matches
	// returns an empty slice and no error.
	Query(ctx context.Context, q Query) ([]Row, error)
}

// Pinger is implemented by stores that can report their readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
