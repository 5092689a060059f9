// ABOUTME: One streaming client session: identity, job queue, output events, backend lifecycle
// ABOUTME: Jobs run one at a time in accept order on a dedicated worker goroutine

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/adt-gateway/internal/lifecycle"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrQueueFull       = errors.New("session queue full")
	ErrDraining        = errors.New("session manager draining")
)

// Job is one unit of work executed on the session worker. ctx is cancelled
// when the session closes.
type Job func(ctx context.Context, s *Session)

// Event is one message for the session's output stream.
type Event struct {
	Name string
	Data []byte
}

// Session is created when a client opens a stream and destroyed when it closes.
type Session struct {
	id        string
	createdAt time.Time
	lifecycle *lifecycle.Manager
	logger    *slog.Logger

	jobs   chan Job
	events chan Event

	ctx        context.Context
	cancel     context.CancelFunc
	workerDone chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func newSession(id string, lc *lifecycle.Manager, queueSize, eventBuffer int, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		createdAt:  time.Now().UTC(),
		lifecycle:  lc,
		logger:     logger,
		jobs:       make(chan Job, queueSize),
		events:     make(chan Event, eventBuffer),
		ctx:        ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}
	go s.work()
	return s
}

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Lifecycle returns the session's backend lifecycle manager.
func (s *Session) Lifecycle() *lifecycle.Manager { return s.lifecycle }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Events returns the output stream. Only the stream writer should receive from it.
func (s *Session) Events() <-chan Event { return s.events }

// Pending returns the number of queued jobs not yet started.
func (s *Session) Pending() int { return len(s.jobs) }

// Submit enqueues a job without blocking.
func (s *Session) Submit(job Job) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Emit delivers an event to the output stream, blocking until the stream
// writer accepts it or the session closes.
func (s *Session) Emit(e Event) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	select {
	case s.events <- e:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

func (s *Session) work() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobs:
			s.run(job)
		}
	}
}

func (s *Session) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session job panicked", "panic", r)
		}
	}()
	if s.ctx.Err() != nil {
		return
	}
	job(s.ctx, s)
}

// close cancels in-flight work, waits for the worker, and releases the backend client.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		<-s.workerDone
		s.lifecycle.Close()
		s.logger.Debug("session closed")
	})
}
