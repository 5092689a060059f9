// ABOUTME: Operator HTTP API exposing active sessions and call ledger queries as JSON
// ABOUTME: Provides GET /api/sessions, /api/calls, and /api/calls/stats

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/adt-gateway/internal/auth"
	"github.com/2389/adt-gateway/internal/session"
	"github.com/2389/adt-gateway/internal/store"
)

// maxListLimit bounds GET /api/calls.
const maxListLimit = 1000

// SessionsResponse is the JSON response for GET /api/sessions.
type SessionsResponse struct {
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

// CallResponse is one ledger entry in GET /api/calls.
type CallResponse struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Operation  string    `json:"operation"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
}

// registerAPIRoutes registers the operator API. With a token guard the
// routes also require the admin role.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	wrap := func(h http.HandlerFunc) http.Handler { return h }
	if guard != nil {
		admin := auth.RequireAdminHTTP()
		wrap = func(h http.HandlerFunc) http.Handler { return guard(admin(h)) }
	}
	mux.Handle("GET /api/sessions", wrap(g.handleListSessions))
	mux.Handle("GET /api/calls", wrap(g.handleListCalls))
	mux.Handle("GET /api/calls/stats", wrap(g.handleCallStats))
}

// handleListSessions handles GET /api/sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := g.sessions.List()
	g.writeJSON(w, http.StatusOK, SessionsResponse{Count: len(infos), Sessions: infos})
}

// handleListCalls handles GET /api/calls, newest first.
// Supports ?session_id, ?operation, ?since, ?until, and ?limit.
func (g *Gateway) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "call ledger disabled")
		return
	}
	filter, err := parseCallFilter(r, time.Now())
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := g.store.ListCalls(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing calls", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}

	out := make([]CallResponse, 0, len(calls))
	for _, c := range calls {
		out = append(out, CallResponse{
			ID:         c.ID,
			SessionID:  c.SessionID,
			Operation:  c.Operation,
			StartedAt:  c.StartedAt,
			DurationMs: float64(c.Duration) / float64(time.Millisecond),
			Success:    c.Success,
			ErrorKind:  c.ErrorKind,
		})
	}
	g.writeJSON(w, http.StatusOK, out)
}

// handleCallStats handles GET /api/calls/stats with the same filters as /api/calls.
func (g *Gateway) handleCallStats(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "call ledger disabled")
		return
	}
	filter, err := parseCallFilter(r, time.Now())
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := g.store.GetCallStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("computing call stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	g.writeJSON(w, http.StatusOK, stats)
}

// parseCallFilter reads ledger filters from the query string. since and until
// accept RFC 3339 timestamps or a duration counted back from now.
func parseCallFilter(r *http.Request, now time.Time) (store.CallFilter, error) {
	q := r.URL.Query()
	var f store.CallFilter

	if v := q.Get("session_id"); v != "" {
		f.SessionID = &v
	}
	if v := q.Get("operation"); v != "" {
		f.Operation = &v
	}

	var err error
	if f.Since, err = parseTimeParam("since", q.Get("since"), now); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam("until", q.Get("until"), now); err != nil {
		return f, err
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func parseTimeParam(name, v string, now time.Time) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("%s must be an RFC 3339 time or a duration", name)
	}
	t := now.Add(-d)
	return &t, nil
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
