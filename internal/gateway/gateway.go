// ABOUTME: Gateway orchestrator that wires sessions, routing, the ledger, and the HTTP server
// ABOUTME: Manages startup, retention pruning, health endpoints, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/auth"
	"github.com/2389/adt-gateway/internal/config"
	"github.com/2389/adt-gateway/internal/lifecycle"
	"github.com/2389/adt-gateway/internal/mcp"
	"github.com/2389/adt-gateway/internal/metrics"
	"github.com/2389/adt-gateway/internal/probe"
	"github.com/2389/adt-gateway/internal/session"
	"github.com/2389/adt-gateway/internal/store"
)

// maxPruneInterval caps how long expired call records may linger.
const maxPruneInterval = time.Hour

// Gateway orchestrates the adt-gateway server components.
type Gateway struct {
	config     *config.Config
	sessions   *session.Manager
	store      store.CallStore // nil when the ledger is disabled
	metrics    *metrics.Registry
	router     *mcp.Router
	mcpServer  *mcp.Server
	httpServer *http.Server
	logger     *slog.Logger

	draining atomic.Bool
}

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	version  string
	factory  lifecycle.ClientFactory
	defaults *adt.Credentials
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithClientFactory replaces the backend client constructor.
func WithClientFactory(f lifecycle.ClientFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithDefaults sets the credential defaults instead of reading the environment.
func WithDefaults(c adt.Credentials) Option {
	return func(o *options) { o.defaults = &c }
}

// meteredProber counts probe outcomes.
type meteredProber struct {
	prober  *probe.Prober
	metrics *metrics.Registry
}

func (m meteredProber) Probe(ctx context.Context, t probe.Target) probe.Result {
	res := m.prober.Probe(ctx, t)
	m.metrics.ObserveProbe(string(res.Diagnosis), res.Found)
	return res
}

// initStore opens the call ledger, or returns nil when no path is configured.
func initStore(cfg *config.Config, logger *slog.Logger) (store.CallStore, error) {
	if cfg.Database.Path == "" {
		logger.Warn("call ledger disabled - no database.path configured")
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildMiddleware returns the token guard, or nil when no secret is configured.
func buildMiddleware(cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth disabled - no jwt_secret configured")
		return nil, nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info("HTTP auth middleware enabled")
	return auth.HTTPAuthMiddleware(verifier, logger), nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	defaults, err := resolveDefaults(o.defaults)
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config: cfg,
		store:  s,
		logger: logger.With("component", "gateway"),
	}

	paths := &probe.PathCache{}
	gw.sessions = session.NewManager(session.Options{
		Lifecycle: lifecycle.Options{
			Defaults:       defaults,
			Factory:        o.factory,
			Paths:          paths,
			RequestTimeout: cfg.Backend.RequestTimeout,
			Logger:         logger,
		},
		QueueSize:   cfg.Sessions.QueueSize,
		EventBuffer: cfg.Sessions.EventBuffer,
		Logger:      logger,
	})

	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New(gw.sessions.Len)
	}

	routerCfg := mcp.RouterConfig{
		Sessions:  gw.sessions,
		Observers: []mcp.Observer{mcp.MetricsObserver(gw.metrics)},
		Logger:    logger,
	}
	if s != nil {
		routerCfg.Observers = append(routerCfg.Observers, mcp.LedgerObserver(s))
	}
	if cfg.Probe.Enabled {
		prober := probe.New(probe.Options{
			Candidates:     cfg.Probe.Candidates,
			Methods:        cfg.Probe.Methods,
			AttemptTimeout: cfg.Probe.AttemptTimeout,
			Cache:          paths,
			Logger:         logger,
		})
		routerCfg.Prober = meteredProber{prober: prober, metrics: gw.metrics}
	}

	gw.router, err = mcp.NewRouter(routerCfg)
	if err != nil {
		gw.closeStore()
		return nil, fmt.Errorf("creating router: %w", err)
	}

	middleware, err := buildMiddleware(cfg, logger)
	if err != nil {
		gw.closeStore()
		return nil, err
	}

	gw.mcpServer, err = mcp.NewServer(mcp.Config{
		Router:     gw.router,
		Sessions:   gw.sessions,
		Metrics:    gw.metrics,
		Logger:     logger,
		Middleware: middleware,
		KeepAlive:  cfg.Server.KeepAliveInterval,
		Version:    o.version,
	})
	if err != nil {
		gw.closeStore()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	mux := http.NewServeMux()

	// Health and metrics endpoints - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)
	if gw.metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, gw.metrics.Handler())
	}

	gw.registerAPIRoutes(mux, middleware)
	gw.mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("backend defaults",
		"url", defaults.URL,
		"user", defaults.User,
		"client", defaults.Client,
		"probe_enabled", cfg.Probe.Enabled,
		"ledger_enabled", s != nil,
	)
	return gw, nil
}

func resolveDefaults(explicit *adt.Credentials) (adt.Credentials, error) {
	if explicit != nil {
		return *explicit, nil
	}
	return adt.CredentialsFromEnv()
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Sessions returns the session manager.
func (g *Gateway) Sessions() *session.Manager {
	return g.sessions
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the gateway on an existing listener until the context is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go g.pruneLoop(pruneCtx)

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context since the caller's is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// pruneLoop deletes call records older than the retention window.
func (g *Gateway) pruneLoop(ctx context.Context) {
	retention := g.config.Database.Retention
	if g.store == nil || retention <= 0 {
		return
	}
	interval := min(retention, maxPruneInterval)

	g.prune(ctx, retention)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.prune(ctx, retention)
		}
	}
}

func (g *Gateway) prune(ctx context.Context, retention time.Duration) {
	n, err := g.store.PruneCalls(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Warn("pruning call ledger failed", "error", err)
		}
		return
	}
	if n > 0 {
		g.logger.Info("pruned call ledger", "deleted", n, "retention", retention)
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) closeStore() {
	if g.store != nil {
		_ = g.store.Close()
	}
}

// Shutdown stops accepting requests, closes every session, and releases the ledger.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if !g.draining.CompareAndSwap(false, true) {
		return nil
	}
	g.logger.Info("shutting down gateway", "sessions", g.sessions.Len())

	var errs []error
	// Streams never finish on their own, so end the sessions before waiting on
	// handlers. Drain also refuses streams that arrive during the shutdown.
	g.sessions.Drain()
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK unless the gateway is draining or the ledger is unreachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	if g.store != nil {
		if _, err := g.store.ListCalls(r.Context(), store.CallFilter{Limit: 1}); err != nil {
			g.logger.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("call ledger unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.Len())
}
