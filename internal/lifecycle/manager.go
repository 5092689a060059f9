// ABOUTME: Per-session backend client lifecycle: Unauthenticated and Authenticated states
// ABOUTME: Swaps client, credentials, and handler registry as one atomic binding on login

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/builtins"
	"github.com/2389/adt-gateway/internal/packs"
	"github.com/2389/adt-gateway/internal/probe"
)

// ErrAuthenticationFailed means the login handshake was rejected or the
// credentials were incomplete. The manager stays Unauthenticated.
var ErrAuthenticationFailed = errors.New("authentication failed")

// State is the lifecycle state of a session's backend connection.
type State int

const (
	// Unauthenticated is the initial state; backend calls fail with adt.ErrNotAuthenticated.
	Unauthenticated State = iota
	// Authenticated holds a live client that passed the handshake.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Handle is the backend client capability the manager owns.
type Handle interface {
	builtins.Backend
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	// Close forgets local session state and releases connections.
	Close()
}

// ClientFactory constructs a backend client handle. It must not contact the backend.
type ClientFactory func(opts adt.Options) (Handle, error)

// DefaultFactory builds real ADT clients.
func DefaultFactory(opts adt.Options) (Handle, error) {
	c, err := adt.New(opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures a Manager.
type Options struct {
	// Defaults are the process-wide credentials a login merges its overrides over.
	Defaults adt.Credentials
	Factory  ClientFactory
	// Paths supplies the discovered login path, if any.
	Paths *probe.PathCache
	// RequestTimeout bounds each backend request of the built client.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// binding is immutable once stored.
type binding struct {
	state    State
	handle   Handle
	creds    adt.Credentials
	registry *packs.Registry
}

// Manager owns one session's backend client. Transitions are serialized;
// readers always see a complete binding.
type Manager struct {
	defaults adt.Credentials
	factory  ClientFactory
	paths    *probe.PathCache
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[binding]
	unbound *binding
}

// unboundBackend answers every call while no login has succeeded.
type unboundBackend struct{}

func (unboundBackend) Do(context.Context, *adt.Request) (*adt.Response, error) {
	return nil, adt.ErrNotAuthenticated
}

// New creates a manager in the Unauthenticated state.
func New(opts Options) (*Manager, error) {
	m := &Manager{
		defaults: opts.Defaults,
		factory:  opts.Factory,
		paths:    opts.Paths,
		timeout:  opts.RequestTimeout,
		logger:   opts.Logger,
	}
	if m.factory == nil {
		m.factory = DefaultFactory
	}
	if m.paths == nil {
		m.paths = &probe.PathCache{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "lifecycle")

	reg, err := m.buildRegistry(unboundBackend{})
	if err != nil {
		return nil, err
	}
	m.unbound = &binding{state: Unauthenticated, creds: m.defaults, registry: reg}
	m.current.Store(m.unbound)
	return m, nil
}

func (m *Manager) buildRegistry(b builtins.Backend) (*packs.Registry, error) {
	reg, err := packs.NewRegistry(m.logger, builtins.All(b, m)...)
	if err != nil {
		return nil, fmt.Errorf("building operation registry: %w", err)
	}
	return reg, nil
}

// State returns the current state.
func (m *Manager) State() State {
	return m.current.Load().state
}

// Registry returns the operation registry bound to the current client.
func (m *Manager) Registry() *packs.Registry {
	return m.current.Load().registry
}

// Credentials returns the credentials of the current binding.
func (m *Manager) Credentials() adt.Credentials {
	return m.current.Load().creds
}

// Effective merges overrides over the process defaults, explicit fields winning.
func (m *Manager) Effective(overrides adt.Credentials) adt.Credentials {
	return m.defaults.Merge(overrides)
}

// Login replaces the current client with one built from the effective
// credentials and performs the handshake. The previous client is dropped
// locally; requests already running on it are left to finish.
func (m *Manager) Login(ctx context.Context, overrides adt.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds := m.Effective(overrides)
	m.discard()

	if err := creds.Validate(); err != nil {
		if errors.Is(err, adt.ErrConnection) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	loginPath, _ := m.paths.Get()
	handle, err := m.factory(adt.Options{
		Credentials: creds,
		LoginPath:   loginPath,
		Timeout:     m.timeout,
		Logger:      m.logger,
	})
	if err != nil {
		return fmt.Errorf("constructing backend client: %w", err)
	}

	reg, err := m.buildRegistry(handle)
	if err != nil {
		return err
	}

	if err := handle.Login(ctx); err != nil {
		handle.Close()
		m.logger.Warn("backend login failed", "url", creds.URL, "user", creds.User, "error", err)
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	m.current.Store(&binding{
		state:    Authenticated,
		handle:   handle,
		creds:    creds,
		registry: reg,
	})
	m.logger.Info("session authenticated",
		"url", creds.URL,
		"user", creds.User,
		"client", creds.Client,
		"login_path", loginPath,
	)
	return nil
}

// Logout ends the backend session. From Unauthenticated it succeeds without
// contacting the backend.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()
	if cur.state == Unauthenticated {
		return nil
	}

	m.current.Store(m.unbound)
	err := cur.handle.Logout(ctx)
	cur.handle.Close()
	if err != nil {
		return fmt.Errorf("backend logout: %w", err)
	}
	m.logger.Info("session logged out", "user", cur.creds.User)
	return nil
}

// DropSession forgets the client and its cookies without contacting the backend.
func (m *Manager) DropSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discard()
}

// Close releases local state on session teardown.
func (m *Manager) Close() {
	m.DropSession()
}

// discard moves to Unauthenticated. Caller holds mu.
func (m *Manager) discard() {
	cur := m.current.Swap(m.unbound)
	if cur.handle != nil {
		cur.handle.Close()
	}
}
