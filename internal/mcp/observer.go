// ABOUTME: Observation sinks for routed calls: Prometheus metrics and the SQLite call ledger
// ABOUTME: Each sink is independent; the router logs and ignores their failures

package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/2389/adt-gateway/internal/metrics"
	"github.com/2389/adt-gateway/internal/store"
)

// ledgerWriteTimeout bounds one ledger insert.
const ledgerWriteTimeout = 2 * time.Second

// Observation describes one routed call.
type Observation struct {
	SessionID string
	Operation string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	ErrorKind Kind
}

// Observer records observations.
type Observer interface {
	Observe(ctx context.Context, obs Observation) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, obs Observation) error

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, obs Observation) error {
	return f(ctx, obs)
}

// MetricsObserver records call counters and durations.
func MetricsObserver(reg *metrics.Registry) Observer {
	return ObserverFunc(func(_ context.Context, obs Observation) error {
		reg.ObserveCall(obs.Operation, obs.Success, string(obs.ErrorKind), obs.Duration)
		return nil
	})
}

// LedgerObserver persists each observation as a call record. The write
// survives cancellation of the session that made the call.
func LedgerObserver(s store.CallStore) Observer {
	return ObserverFunc(func(ctx context.Context, obs Observation) error {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
		defer cancel()
		return s.SaveCall(wctx, &store.CallRecord{
			ID:        uuid.New().String(),
			SessionID: obs.SessionID,
			Operation: obs.Operation,
			StartedAt: obs.StartedAt,
			Duration:  obs.Duration,
			Success:   obs.Success,
			ErrorKind: string(obs.ErrorKind),
		})
	})
}
