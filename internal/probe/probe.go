// ABOUTME: Connectivity prober that finds a reachable ADT entry path behind restrictive proxies
// ABOUTME: Runs a candidate path x method battery, then a control probe for diagnosis

package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAttemptTimeout bounds a single probe attempt.
const DefaultAttemptTimeout = 3 * time.Second

// ControlPath is a sub-path no ADT system serves. Its status tells an
// intermediary that blocks everything apart from a backend that answers 404.
const ControlPath = "/sap/bc/adt/gateway-control-probe-does-not-exist"

// DefaultCandidates are tried in order.
var DefaultCandidates = []string{
	"/sap/public/ping",
	"/sap/bc/ping",
	"/sap/bc/adt/discovery",
	"/sap/bc/adt/compatibility/graph",
	"/sap/bc/adt/core/discovery",
	"/sap/bc/adt/repository/informationsystem/search",
	"/sap/bc/adt/oo/classes",
	"/sap/bc/adt/programs/programs",
}

// DefaultMethods are tried for each candidate, in order.
var DefaultMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodHead,
	http.MethodOptions,
}

// Diagnosis classifies the control probe outcome.
type Diagnosis string

const (
	// DiagnosisIntermediaryBlocking means the control path was refused like the candidates.
	DiagnosisIntermediaryBlocking Diagnosis = "intermediary_blocking"
	// DiagnosisBackendReachable means the backend itself answered the control path with 404.
	DiagnosisBackendReachable Diagnosis = "backend_reachable"
	// DiagnosisInconclusive covers every other control outcome, including network errors.
	DiagnosisInconclusive Diagnosis = "inconclusive"
)

// Attempt records one candidate request.
type Attempt struct {
	Path     string        `json:"path"`
	Method   string        `json:"method"`
	Status   int           `json:"status,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Usable   bool          `json:"usable"`
}

// Result is the outcome of a full probe run.
type Result struct {
	Path          string    `json:"path,omitempty"`
	Method        string    `json:"method,omitempty"`
	Found         bool      `json:"found"`
	Attempts      []Attempt `json:"attempts"`
	ControlStatus int       `json:"control_status,omitempty"`
	ControlErr    string    `json:"control_error,omitempty"`
	Diagnosis     Diagnosis `json:"diagnosis"`
}

// Summary returns a one-line human-readable description of the result.
func (r Result) Summary() string {
	var b strings.Builder
	if r.Found {
		fmt.Fprintf(&b, "usable path %s via %s after %d attempt(s)", r.Path, r.Method, len(r.Attempts))
	} else {
		fmt.Fprintf(&b, "no usable path after %d attempt(s)", len(r.Attempts))
	}
	switch r.Diagnosis {
	case DiagnosisIntermediaryBlocking:
		fmt.Fprintf(&b, "; control probe returned %d, an intermediary is blocking requests", r.ControlStatus)
	case DiagnosisBackendReachable:
		b.WriteString("; control probe returned 404, the backend is reachable and rejects specific paths")
	default:
		b.WriteString("; control probe was inconclusive")
	}
	return b.String()
}

// Target identifies the backend to probe.
type Target struct {
	BaseURL string
	// Client is the SAP client (tenant) number, sent as sap-client when set.
	Client string
	// Transport carries the proxy and TLS settings of the login that follows.
	Transport http.RoundTripper
}

// Options configures a Prober.
type Options struct {
	Candidates     []string
	Methods        []string
	AttemptTimeout time.Duration
	Cache          *PathCache
	Logger         *slog.Logger
}

// Prober runs connectivity probes. It is safe for concurrent use.
type Prober struct {
	candidates     []string
	methods        []string
	attemptTimeout time.Duration
	cache          *PathCache
	logger         *slog.Logger
}

// New creates a prober, applying defaults for unset options.
func New(opts Options) *Prober {
	p := &Prober{
		candidates:     opts.Candidates,
		methods:        opts.Methods,
		attemptTimeout: opts.AttemptTimeout,
		cache:          opts.Cache,
		logger:         opts.Logger,
	}
	if len(p.candidates) == 0 {
		p.candidates = DefaultCandidates
	}
	if len(p.methods) == 0 {
		p.methods = DefaultMethods
	}
	if p.attemptTimeout <= 0 {
		p.attemptTimeout = DefaultAttemptTimeout
	}
	if p.cache == nil {
		p.cache = &PathCache{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "probe")
	return p
}

// Cache returns the path cache this prober writes to.
func (p *Prober) Cache() *PathCache {
	return p.cache
}

// Probe tries each candidate with each method until one answers 200, 401 or
// 403. The first usable path is written to the cache. A control probe always
// follows the battery. Individual failures are recorded in the result and
// never returned as errors.
func (p *Prober) Probe(ctx context.Context, t Target) Result {
	base := strings.TrimRight(t.BaseURL, "/")
	httpClient := &http.Client{
		Transport: t.Transport,
		// A redirect usually points at a logon page, so the raw answer counts.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	p.logger.Info("=== Connectivity probe ===", "base_url", base, "candidates", len(p.candidates))

	var res Result
battery:
	for _, path := range p.candidates {
		for _, method := range p.methods {
			if ctx.Err() != nil {
				break battery
			}
			a := p.attempt(ctx, httpClient, method, base, path, t.Client)
			res.Attempts = append(res.Attempts, a)
			p.logger.Debug("probe attempt",
				"method", a.Method,
				"path", a.Path,
				"status", a.Status,
				"error", a.Err,
				"duration", a.Duration,
			)
			if a.Usable {
				res.Found = true
				res.Path = path
				res.Method = method
				break battery
			}
		}
	}

	if res.Found {
		p.cache.Set(res.Path)
	}

	control := p.attempt(ctx, httpClient, http.MethodGet, base, ControlPath, t.Client)
	res.ControlStatus = control.Status
	res.ControlErr = control.Err
	res.Diagnosis = diagnose(control)

	p.logger.Info("connectivity probe finished",
		"found", res.Found,
		"path", res.Path,
		"attempts", len(res.Attempts),
		"control_status", res.ControlStatus,
		"diagnosis", res.Diagnosis,
	)
	return res
}

func (p *Prober) attempt(ctx context.Context, c *http.Client, method, base, path, sapClient string) Attempt {
	a := Attempt{Path: path, Method: method}
	start := time.Now()

	u, err := url.Parse(base + path)
	if err != nil {
		a.Err = err.Error()
		a.Duration = time.Since(start)
		return a
	}
	if sapClient != "" {
		q := u.Query()
		q.Set("sap-client", sapClient)
		u.RawQuery = q.Encode()
	}

	actx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, method, u.String(), nil)
	if err != nil {
		a.Err = err.Error()
		a.Duration = time.Since(start)
		return a
	}

	resp, err := c.Do(req)
	if err != nil {
		a.Err = err.Error()
		a.Duration = time.Since(start)
		return a
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	a.Status = resp.StatusCode
	a.Usable = usable(resp.StatusCode)
	a.Duration = time.Since(start)
	return a
}

// usable treats 401 and 403 as reachable. A 403 may still mean the path is
// forbidden for this user, so the login that follows decides.
func usable(status int) bool {
	switch status {
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func diagnose(control Attempt) Diagnosis {
	if control.Err != "" {
		return DiagnosisInconclusive
	}
	switch control.Status {
	case http.StatusForbidden, http.StatusMethodNotAllowed:
		return DiagnosisIntermediaryBlocking
	case http.StatusNotFound:
		return DiagnosisBackendReachable
	}
	return DiagnosisInconclusive
}
