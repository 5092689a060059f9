// ABOUTME: Tests for Gateway construction, lifecycle, health endpoints, and ledger pruning
// ABOUTME: Runs the full HTTP stack with an in-memory ledger and no backend

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/auth"
	"github.com/2389/adt-gateway/internal/config"
	"github.com/2389/adt-gateway/internal/store"
)

var testDefaults = adt.Credentials{URL: "https://sap.example/", User: "dev", Password: "secret", Client: "100"}

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := ln.Addr().String()
	ln.Close()

	cfg := config.Default()
	cfg.Server.HTTPAddr = httpAddr
	cfg.Server.KeepAliveInterval = 50 * time.Millisecond
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Database.Path = store.MemoryPath
	cfg.Probe.Enabled = false
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	gw, err := New(cfg, testLogger(), WithDefaults(testDefaults), WithVersion("test"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg)

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.sessions == nil {
		t.Error("sessions should not be nil")
	}
	if gw.store == nil {
		t.Error("store should not be nil")
	}
	if gw.metrics == nil {
		t.Error("metrics should not be nil")
	}
	if gw.router == nil || gw.mcpServer == nil {
		t.Error("router and MCP server should not be nil")
	}
}

func TestGatewayNewOptionalComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = ""
	cfg.Metrics.Enabled = false
	gw := newTestGateway(t, cfg)

	if gw.store != nil {
		t.Error("store should be nil with an empty database path")
	}
	if gw.metrics != nil {
		t.Error("metrics should be nil when disabled")
	}

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGatewayNewRejectsWeakSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"

	_, err := New(cfg, testLogger(), WithDefaults(testDefaults))
	if !errors.Is(err, auth.ErrWeakSecret) {
		t.Errorf("New() error = %v, want ErrWeakSecret", err)
	}
}

func TestGatewayNewReadsEnvironmentDefaults(t *testing.T) {
	t.Setenv("SAP_URL", "https://env.example")
	t.Setenv("SAP_USER", "envuser")

	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	sess, err := gw.Sessions().Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	creds := sess.Lifecycle().Credentials()
	if creds.URL != "https://env.example" || creds.User != "envuser" {
		t.Errorf("session defaults = %s/%s, want env values", creds.URL, creds.User)
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	waitForServer(t, cfg.Server.HTTPAddr)

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}

	if err := gw.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() = %v, want nil", err)
	}
}

func TestGatewayShutdownEndsOpenStreams(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()
	waitForServer(t, cfg.Server.HTTPAddr)

	stream := openStream(t, "http://"+cfg.Server.HTTPAddr)
	if ev := stream.next(t); ev.name != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", ev.name)
	}

	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shutdown in time")
	}
	if elapsed := time.Since(start); elapsed >= cfg.Server.ShutdownTimeout {
		t.Errorf("shutdown took %v, streams should end before the timeout", elapsed)
	}
	if n := gw.Sessions().Len(); n != 0 {
		t.Errorf("sessions after shutdown = %d, want 0", n)
	}
}

func TestGatewayShutdownRefusesNewStreams(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	if err := gw.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("stream status after shutdown = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if n := gw.Sessions().Len(); n != 0 {
		t.Errorf("sessions after shutdown = %d, want 0", n)
	}
}

func TestGatewayRunListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = ln.Addr().String()
	gw := newTestGateway(t, cfg)

	if err := gw.Run(context.Background()); err == nil {
		t.Error("Run() should fail when the address is taken")
	}
}

func TestHealthEndpoint(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("health body = %q, want OK", rec.Body.String())
	}
}

func TestReadyEndpoint(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "0 sessions") {
		t.Errorf("ready body = %q, want session count", rec.Body.String())
	}

	if err := gw.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status after shutdown = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "adt_gateway_sessions_active") {
		t.Error("metrics output should include the active sessions gauge")
	}
}

func TestPruneRemovesExpiredCalls(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Retention = 24 * time.Hour
	gw := newTestGateway(t, cfg)
	ctx := context.Background()

	now := time.Now()
	for id, started := range map[string]time.Time{
		"old":    now.Add(-48 * time.Hour),
		"recent": now.Add(-time.Hour),
	} {
		err := gw.store.SaveCall(ctx, &store.CallRecord{
			ID:        id,
			SessionID: "s1",
			Operation: "searchObject",
			StartedAt: started,
			Duration:  time.Millisecond,
			Success:   true,
		})
		if err != nil {
			t.Fatalf("SaveCall(%s) failed: %v", id, err)
		}
	}

	gw.prune(ctx, cfg.Database.Retention)

	if _, err := gw.store.GetCall(ctx, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old call should be pruned, got err = %v", err)
	}
	if _, err := gw.store.GetCall(ctx, "recent"); err != nil {
		t.Errorf("recent call should survive: %v", err)
	}
}

func TestPruneLoopStopsWithoutRetention(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	done := make(chan struct{})
	go func() {
		gw.pruneLoop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("pruneLoop should return immediately when retention is zero")
	}
}

func TestAppendCloseError(t *testing.T) {
	errs := appendCloseError(nil, "store close", nil)
	if len(errs) != 0 {
		t.Fatalf("nil error should not be appended, got %v", errs)
	}

	sentinel := errors.New("boom")
	errs = appendCloseError(errs, "store close", sentinel)
	if len(errs) != 1 || !errors.Is(errs[0], sentinel) {
		t.Fatalf("errs = %v, want one wrapped error", errs)
	}
	if !strings.HasPrefix(errs[0].Error(), "store close: ") {
		t.Errorf("error = %q, want label prefix", errs[0])
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s did not start", addr)
}
