// ABOUTME: Routes tool calls for a session to its current registry and normalizes the outcome
// ABOUTME: Handles healthcheck and the probe before login, and records an observation per call

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/lifecycle"
	"github.com/2389/adt-gateway/internal/packs"
	"github.com/2389/adt-gateway/internal/probe"
	"github.com/2389/adt-gateway/internal/session"
)

// Operation names the router answers itself or treats specially.
const (
	HealthcheckTool = "healthcheck"
	LoginTool       = "login"
)

// Kind classifies a failed call.
type Kind string

// Error kinds. Every failure leaving the router carries one of these.
const (
	KindSessionNotFound      Kind = "SessionNotFound"
	KindUnknownOperation     Kind = "UnknownOperation"
	KindInvalidArguments     Kind = "InvalidArguments"
	KindAuthenticationFailed Kind = "AuthenticationFailed"
	KindBackendError         Kind = "BackendError"
	KindSerializationError   Kind = "SerializationError"
)

// ErrorEnvelope is the structured form of a failed call.
type ErrorEnvelope struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *ErrorEnvelope) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Envelope is the outcome of one routed call, correlated by ID.
type Envelope struct {
	ID     json.RawMessage    `json:"id"`
	Result *MCPCallToolResult `json:"result,omitempty"`
	Error  *ErrorEnvelope     `json:"error,omitempty"`
}

// Call is one tool invocation on a session.
type Call struct {
	ID        json.RawMessage
	Name      string
	Arguments json.RawMessage
}

// Prober discovers a reachable backend path before login.
type Prober interface {
	Probe(ctx context.Context, t probe.Target) probe.Result
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Sessions *session.Manager
	// Prober runs before each login. Nil disables probing.
	Prober    Prober
	Observers []Observer
	Logger    *slog.Logger
}

// Router maps calls to the handler groups of the calling session.
type Router struct {
	sessions  *session.Manager
	prober    Prober
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
	encode    func(any) ([]byte, error)

	healthcheck packs.Descriptor
}

// timestampLayout formats healthcheck times with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schema, _ := packs.SchemaFor[struct{}]()
	return &Router{
		sessions:  cfg.Sessions,
		prober:    cfg.Prober,
		observers: cfg.Observers,
		logger:    logger.With("component", "router"),
		now:       time.Now,
		encode:    json.Marshal,
		healthcheck: packs.Descriptor{
			Name:        HealthcheckTool,
			Description: "Check if the server is running",
			InputSchema: schema,
		},
	}, nil
}

// List returns the session's tool descriptors followed by healthcheck.
func (r *Router) List(sessionID string) ([]packs.Descriptor, error) {
	sess, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return append(sess.Lifecycle().Registry().List(), r.healthcheck), nil
}

// Route executes a call and always returns an envelope; no error escapes
// unclassified.
func (r *Router) Route(ctx context.Context, sessionID string, call Call) Envelope {
	start := r.now()
	env := r.route(ctx, sessionID, call)

	obs := Observation{
		SessionID: sessionID,
		Operation: call.Name,
		StartedAt: start,
		Duration:  r.now().Sub(start),
		Success:   env.Error == nil,
	}
	if env.Error != nil {
		obs.ErrorKind = env.Error.Kind
		r.logger.Warn("tool call failed",
			"session_id", sessionID,
			"tool_name", call.Name,
			"kind", env.Error.Kind,
			"error", env.Error.Message,
			"duration", obs.Duration,
		)
	} else {
		r.logger.Debug("tool call complete",
			"session_id", sessionID,
			"tool_name", call.Name,
			"duration", obs.Duration,
		)
	}
	r.observe(ctx, obs)
	return env
}

func (r *Router) route(ctx context.Context, sessionID string, call Call) Envelope {
	env := Envelope{ID: call.ID}

	sess, ok := r.sessions.Get(sessionID)
	if !ok {
		env.Error = &ErrorEnvelope{Kind: KindSessionNotFound, Message: fmt.Sprintf("session %s not found", sessionID)}
		return env
	}

	var payload any
	var err error
	switch call.Name {
	case HealthcheckTool:
		payload = map[string]string{
			"status":    "healthy",
			"timestamp": r.now().UTC().Format(timestampLayout),
		}
	case LoginTool:
		payload, err = r.login(ctx, sess, call.Arguments)
	default:
		payload, err = sess.Lifecycle().Registry().Dispatch(ctx, call.Name, call.Arguments)
	}
	if err != nil {
		env.Error = classify(err)
		return env
	}

	text, err := r.encode(payload)
	if err != nil {
		r.logger.Error("encoding tool result", "tool_name", call.Name, "error", err)
		env.Error = &ErrorEnvelope{Kind: KindSerializationError, Message: "internal error"}
		return env
	}
	env.Result = &MCPCallToolResult{Content: []MCPContent{{Type: "text", Text: string(text)}}}
	return env
}

// login probes the effective address, then dispatches to the auth pack,
// whose login rebuilds the session's client.
func (r *Router) login(ctx context.Context, sess *session.Session, args json.RawMessage) (any, error) {
	overrides, err := packs.DecodeArgs[adt.Credentials](args)
	if err != nil {
		return nil, err
	}

	effective := sess.Lifecycle().Effective(overrides)
	if r.prober != nil && effective.Validate() == nil {
		transport := adt.NewTransport(effective)
		res := r.prober.Probe(ctx, probe.Target{
			BaseURL:   effective.BaseURL(),
			Client:    effective.Client,
			Transport: transport,
		})
		transport.CloseIdleConnections()
		r.logger.Info("pre-login probe", "session_id", sess.ID(), "summary", res.Summary())
	}

	return sess.Lifecycle().Registry().Dispatch(ctx, LoginTool, args)
}

// classify maps package sentinel errors to an error kind.
func classify(err error) *ErrorEnvelope {
	kind := KindBackendError
	var be *adt.Error
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		kind = KindSessionNotFound
	case errors.Is(err, packs.ErrUnknownOperation):
		kind = KindUnknownOperation
	case errors.Is(err, packs.ErrInvalidArguments):
		kind = KindInvalidArguments
	case errors.Is(err, lifecycle.ErrAuthenticationFailed),
		errors.Is(err, adt.ErrAuthentication),
		errors.Is(err, adt.ErrNotAuthenticated),
		errors.Is(err, adt.ErrMissingCredentials):
		kind = KindAuthenticationFailed
	case errors.As(err, &be) && be.Status == http.StatusUnauthorized:
		kind = KindAuthenticationFailed
	}
	return &ErrorEnvelope{Kind: kind, Message: err.Error()}
}

// observe hands the observation to every observer. Observer failures never
// affect the call.
func (r *Router) observe(ctx context.Context, obs Observation) {
	for _, o := range r.observers {
		r.safeObserve(ctx, o, obs)
	}
}

func (r *Router) safeObserve(ctx context.Context, o Observer, obs Observation) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("observer panicked", "tool_name", obs.Operation, "panic", p)
		}
	}()
	if err := o.Observe(ctx, obs); err != nil {
		r.logger.Warn("recording observation failed", "tool_name", obs.Operation, "error", err)
	}
}
