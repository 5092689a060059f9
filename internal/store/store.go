// ABOUTME: Store interface and data types for adt-gateway persistence
// ABOUTME: Defines the call ledger record, filters, and aggregate statistics

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// CallRecord is one routed tool request and its outcome.
type CallRecord struct {
	ID        string
	SessionID string
	Operation string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	ErrorKind string // empty on success
}

// CallFilter narrows ListCalls and GetCallStats. Nil fields match everything.
type CallFilter struct {
	SessionID *string
	Operation *string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// OperationStats aggregates calls for one operation.
type OperationStats struct {
	Operation     string  `json:"operation"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}

// CallStats aggregates the ledger.
type CallStats struct {
	TotalCalls    int64            `json:"total_calls"`
	TotalFailures int64            `json:"total_failures"`
	ByOperation   []OperationStats `json:"by_operation"`
	ByErrorKind   map[string]int64 `json:"by_error_kind"`
}

// CallStore persists request observations.
type CallStore interface {
	SaveCall(ctx context.Context, rec *CallRecord) error
	GetCall(ctx context.Context, id string) (*CallRecord, error)
	ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, error)
	GetCallStats(ctx context.Context, filter CallFilter) (*CallStats, error)
	PruneCalls(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
