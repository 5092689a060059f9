// ABOUTME: MCP server over the SSE transport: GET /sse streams responses, POST /messages accepts requests
// ABOUTME: Requests are queued on the session worker and answered asynchronously on the stream

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/2389/adt-gateway/internal/auth"
	"github.com/2389/adt-gateway/internal/metrics"
	"github.com/2389/adt-gateway/internal/session"
)

// Endpoint paths.
const (
	SSEPath      = "/sse"
	MessagesPath = "/messages"
)

// SessionIDParam names the session query parameter of the message endpoint.
const SessionIDParam = "sessionId"

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
}

// latestProtocolVersion is the version we advertise when the client asks for
// one we do not support.
const latestProtocolVersion = "2025-03-26"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// DefaultKeepAlive is the interval between keepalive comments on idle streams.
const DefaultKeepAlive = 15 * time.Second

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603

	// JSONRPCSessionNotFound is in the server-defined range.
	JSONRPCSessionNotFound = -32001
)

// MCP-specific types

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Config holds configuration for the MCP server.
type Config struct {
	Router   *Router
	Sessions *session.Manager
	Metrics  *metrics.Registry
	Logger   *slog.Logger
	// Middleware wraps both endpoints, typically the token guard.
	Middleware func(http.Handler) http.Handler
	KeepAlive  time.Duration
	Version    string
}

// Server implements the MCP SSE transport.
type Server struct {
	router     *Router
	sessions   *session.Manager
	metrics    *metrics.Registry
	logger     *slog.Logger
	middleware func(http.Handler) http.Handler
	keepAlive  time.Duration
	version    string
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		router:     cfg.Router,
		sessions:   cfg.Sessions,
		metrics:    cfg.Metrics,
		logger:     logger.With("component", "mcp"),
		middleware: cfg.Middleware,
		keepAlive:  keepAlive,
		version:    version,
	}, nil
}

// RegisterRoutes registers the stream and message endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	wrap := func(h http.HandlerFunc) http.Handler {
		if s.middleware == nil {
			return h
		}
		return s.middleware(h)
	}
	mux.Handle("GET "+SSEPath, wrap(s.handleSSE))
	mux.Handle("POST "+MessagesPath, wrap(s.handleMessage))
}

// handleSSE opens a session and streams its events until the client
// disconnects or the session is closed.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
			http.Error(w, "Not Acceptable: stream requires text/event-stream", http.StatusNotAcceptable)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess, err := s.sessions.Open()
	if errors.Is(err, session.ErrDraining) {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		s.logger.Error("opening session", "error", err)
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}
	defer s.sessions.Close(sess.ID())
	s.metrics.SessionOpened()

	logger := s.logger.With("session_id", sess.ID())
	if ac := auth.FromContext(r.Context()); ac != nil {
		logger = logger.With("subject", ac.Subject)
	}
	logger.Info("SSE stream opened", "remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "endpoint", []byte(s.endpointURL(r, sess.ID()))); err != nil {
		logger.Debug("writing endpoint event", "error", err)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("SSE stream closed by client")
			return
		case <-sess.Done():
			logger.Info("SSE stream closed by server")
			return
		case ev := <-sess.Events():
			if err := writeEvent(w, ev.Name, ev.Data); err != nil {
				logger.Debug("writing event", "event", ev.Name, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// endpointURL is where the client posts its requests. A token that arrived
// as a query parameter is carried over, since such clients cannot set headers.
func (s *Server) endpointURL(r *http.Request, sessionID string) string {
	q := url.Values{}
	q.Set(SessionIDParam, sessionID)
	if tok := r.URL.Query().Get(auth.TokenQueryParam); tok != "" {
		q.Set(auth.TokenQueryParam, tok)
	}
	return MessagesPath + "?" + q.Encode()
}

// writeEvent writes one SSE event. Multi-line data is split across data fields.
func writeEvent(w io.Writer, name string, data []byte) error {
	var b strings.Builder
	if name != "" {
		b.WriteString("event: ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// handleMessage validates a JSON-RPC request and queues it on the session.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get(SessionIDParam)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing sessionId", http.StatusBadRequest)
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		http.Error(w, "Unsupported Media Type: content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		http.Error(w, "Not Found: unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		http.Error(w, "Bad Request: failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Bad Request: invalid JSON", http.StatusBadRequest)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		http.Error(w, "Bad Request: invalid JSON-RPC request", http.StatusBadRequest)
		return
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "session_id", sessionID, "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "session_id", sessionID, "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	err = sess.Submit(func(ctx context.Context, sess *session.Session) {
		resp := s.dispatch(ctx, sess.ID(), req)
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encoding JSON-RPC response", "session_id", sess.ID(), "method", req.Method, "error", err)
			data, _ = json.Marshal(errorResponse(req.ID, JSONRPCInternalError, "internal error", nil))
		}
		if err := sess.Emit(session.Event{Name: "message", Data: data}); err != nil {
			s.logger.Debug("dropping response for closed session", "session_id", sess.ID(), "method", req.Method)
		}
	})
	switch {
	case errors.Is(err, session.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Service Unavailable: session queue full", http.StatusServiceUnavailable)
		return
	case errors.Is(err, session.ErrSessionClosed):
		http.Error(w, "Not Found: session closed", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.logger.Debug("MCP request queued", "session_id", sessionID, "method", req.Method)
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

// dispatch answers one JSON-RPC request on the session worker.
func (s *Server) dispatch(ctx context.Context, sessionID string, req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return s.handleToolsList(sessionID, req)
	case "tools/call":
		return s.handleToolsCall(ctx, sessionID, req)
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleInitialize answers the MCP initialize handshake with the negotiated version.
func (s *Server) handleInitialize(req JSONRPCRequest) JSONRPCResponse {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	return resultResponse(req.ID, map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "adt-gateway",
			"version": s.version,
		},
	})
}

// handleToolsList handles tools/list requests.
func (s *Server) handleToolsList(sessionID string, req JSONRPCRequest) JSONRPCResponse {
	descs, err := s.router.List(sessionID)
	if err != nil {
		return kindError(req.ID, classify(err))
	}

	result := MCPListToolsResult{Tools: make([]MCPToolInfo, len(descs))}
	for i, d := range descs {
		result.Tools[i] = MCPToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}
	return resultResponse(req.ID, result)
}

// handleToolsCall handles tools/call requests.
func (s *Server) handleToolsCall(ctx context.Context, sessionID string, req JSONRPCRequest) JSONRPCResponse {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", nil)
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required", nil)
	}

	env := s.router.Route(ctx, sessionID, Call{ID: req.ID, Name: params.Name, Arguments: params.Arguments})
	if env.Error != nil {
		return kindError(req.ID, env.Error)
	}
	return resultResponse(req.ID, env.Result)
}

// codeForKind maps an error kind to a JSON-RPC error code.
func codeForKind(k Kind) int {
	switch k {
	case KindSessionNotFound:
		return JSONRPCSessionNotFound
	case KindUnknownOperation:
		return JSONRPCMethodNotFound
	case KindInvalidArguments:
		return JSONRPCInvalidParams
	default:
		return JSONRPCInternalError
	}
}

func kindError(id json.RawMessage, e *ErrorEnvelope) JSONRPCResponse {
	return errorResponse(id, codeForKind(e.Kind), e.Message, map[string]string{"kind": string(e.Kind)})
}

func resultResponse(id json.RawMessage, result any) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string, data any) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

