// Package mock provides a call-recording test double for [metrics.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use.
//
//	store := &mock.Store{}
//	store.QueryResult = []metrics.Row{{Value: 72, Unit: "bpm"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("Insert"); got != 2 {
//	    t.Errorf("expected 2 Insert calls, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/healthcompass/pkg/metrics"
)

var (
	_ metrics.Store  = (*Store)(nil)
	_ metrics.Pinger = (*Store)(nil)
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [metrics.Store].
type Store struct {
	mu     sync.Mutex
	calls  []Call
	nextID int64

	// InsertErr is returned by [Store.Insert] when non-nil.
	InsertErr error

	// InsertFunc, when set, replaces the default Insert behaviour. It is
	// called without the mock's lock held.
	InsertFunc func(ctx context.Context, rec metrics.Record) (int64, error)

	// QueryResult is returned by [Store.Query].
	// When nil, Query returns an empty non-nil slice.
	QueryResult []metrics.Row

	// QueryErr is returned by [Store.Query] when non-nil.
	QueryErr error

	// PingErr is returned by [Store.Ping].
	PingErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Inserted returns every record passed to Insert, in call order.
func (m *Store) Inserted() []metrics.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []metrics.Record
	for _, c := range m.calls {
		if c.Method == "Insert" {
			out = append(out, c.Args[0].(metrics.Record))
		}
	}
	return out
}

// Reset clears all recorded calls without altering response configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Insert implements [metrics.Store]. Without InsertFunc it returns
// sequential ids starting at 1, or InsertErr.
func (m *Store) Insert(ctx context.Context, rec metrics.Record) (int64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "Insert", Args: []any{rec}})
	fn := m.InsertFunc
	if fn == nil {
		defer m.mu.Unlock()
		if m.InsertErr != nil {
			return 0, m.InsertErr
		}
		m.nextID++
		return m.nextID, nil
	}
	m.mu.Unlock()
	return fn(ctx, rec)
}

// Query implements [metrics.Store].
func (m *Store) Query(_ context.Context, q metrics.Query) ([]metrics.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Query", Args: []any{q}})
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	out := make([]metrics.Row, len(m.QueryResult))
	copy(out, m.QueryResult)
	return out, nil
}

// Ping implements [metrics.Pinger].
func (m *Store) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Ping"})
	return m.PingErr
}
