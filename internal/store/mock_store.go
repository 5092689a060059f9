// ABOUTME: Mock CallStore implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory CallStore implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	calls map[string]*CallRecord // keyed by call ID

	// SaveErr, when set, is returned by every SaveCall.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		calls: make(map[string]*CallRecord),
	}
}

// SaveCall stores a call record.
func (m *MockStore) SaveCall(ctx context.Context, rec *CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}

	// Make a copy to avoid external modification
	c := *rec
	m.calls[c.ID] = &c
	return nil
}

// GetCall retrieves a call by ID.
func (m *MockStore) GetCall(ctx context.Context, id string) (*CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.calls[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *c
	return &result, nil
}

// ListCalls returns matching calls, newest first.
func (m *MockStore) ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*CallRecord
	for _, c := range m.calls {
		if filter.matches(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetCallStats aggregates matching calls.
func (m *MockStore) GetCallStats(ctx context.Context, filter CallFilter) (*CallStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &CallStats{
		ByOperation: []OperationStats{},
		ByErrorKind: map[string]int64{},
	}
	byOp := make(map[string]*OperationStats)
	totals := make(map[string]time.Duration)

	for _, c := range m.calls {
		if !filter.matches(c) {
			continue
		}
		op, ok := byOp[c.Operation]
		if !ok {
			op = &OperationStats{Operation: c.Operation}
			byOp[c.Operation] = op
		}
		op.Calls++
		totals[c.Operation] += c.Duration
		if ms := durationMs(c.Duration); ms > op.MaxDurationMs {
			op.MaxDurationMs = ms
		}
		stats.TotalCalls++
		if !c.Success {
			op.Failures++
			stats.TotalFailures++
		}
		if c.ErrorKind != "" {
			stats.ByErrorKind[c.ErrorKind]++
		}
	}

	for name, op := range byOp {
		op.AvgDurationMs = durationMs(totals[name]) / float64(op.Calls)
		stats.ByOperation = append(stats.ByOperation, *op)
	}
	sort.Slice(stats.ByOperation, func(i, j int) bool {
		a, b := stats.ByOperation[i], stats.ByOperation[j]
		if a.Calls != b.Calls {
			return a.Calls > b.Calls
		}
		return a.Operation < b.Operation
	})
	return stats, nil
}

// PruneCalls deletes calls that started before the cutoff.
func (m *MockStore) PruneCalls(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, c := range m.calls {
		if c.StartedAt.Before(before) {
			delete(m.calls, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func (f CallFilter) matches(c *CallRecord) bool {
	if f.SessionID != nil && c.SessionID != *f.SessionID {
		return false
	}
	if f.Operation != nil && c.Operation != *f.Operation {
		return false
	}
	if f.Since != nil && c.StartedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !c.StartedAt.Before(*f.Until) {
		return false
	}
	return true
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Ensure MockStore implements CallStore interface.
var _ CallStore = (*MockStore)(nil)
