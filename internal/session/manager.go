// ABOUTME: Registry of active sessions keyed by random UUID
// ABOUTME: Set membership decides whether a session id is routable

package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/adt-gateway/internal/lifecycle"
)

// Defaults for per-session buffers.
const (
	DefaultQueueSize   = 32
	DefaultEventBuffer = 64
)

// Options configures a Manager.
type Options struct {
	// Lifecycle is the template each session's lifecycle manager is built from.
	Lifecycle   lifecycle.Options
	QueueSize   int
	EventBuffer int
	Logger      *slog.Logger
}

// Info is a point-in-time description of a session.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	State     string    `json:"state"`
	URL       string    `json:"url,omitempty"`
	User      string    `json:"user,omitempty"`
	Pending   int       `json:"pending"`
}

// Manager tracks active sessions. It is safe for concurrent use.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	draining bool
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:     opts,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*Session),
	}
}

// Open creates and registers a new session in the Unauthenticated state.
// After Drain it returns ErrDraining.
func (m *Manager) Open() (*Session, error) {
	m.mu.RLock()
	draining := m.draining
	m.mu.RUnlock()
	if draining {
		return nil, ErrDraining
	}

	id := uuid.New().String()
	logger := m.logger.With("session_id", id)

	lcOpts := m.opts.Lifecycle
	lcOpts.Logger = logger
	lc, err := lifecycle.New(lcOpts)
	if err != nil {
		return nil, fmt.Errorf("creating session lifecycle: %w", err)
	}

	s := newSession(id, lc, m.opts.QueueSize, m.opts.EventBuffer, logger)

	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		s.close()
		return nil, ErrDraining
	}
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session opened", "session_id", id, "active_sessions", count)
	return s, nil
}

// Get returns a routable session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close removes a session and releases it. Unknown or already closed ids are a no-op.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	m.logger.Info("session closed", "session_id", id, "active_sessions", count)
}

// CloseAll closes every session. Used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.close()
		}(s)
	}
	wg.Wait()

	if len(all) > 0 {
		m.logger.Info("all sessions closed", "count", len(all))
	}
}

// Drain stops Open from admitting sessions and closes the active ones.
func (m *Manager) Drain() {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
	m.CloseAll()
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List describes active sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		creds := s.lifecycle.Credentials()
		out = append(out, Info{
			ID:        s.id,
			CreatedAt: s.createdAt,
			State:     s.lifecycle.State().String(),
			URL:       creds.URL,
			User:      creds.User,
			Pending:   s.Pending(),
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
