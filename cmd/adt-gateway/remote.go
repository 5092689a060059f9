// ABOUTME: CLI commands that query a running gateway or mint tokens and probe backends
// ABOUTME: Implements health, sessions, stats, token, and probe

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/auth"
	"github.com/2389/adt-gateway/internal/gateway"
	"github.com/2389/adt-gateway/internal/probe"
	"github.com/2389/adt-gateway/internal/store"
)

// TokenEnvVar supplies the access token for the remote commands.
const TokenEnvVar = "ADT_GATEWAY_TOKEN"

// RemoteOptions is embedded by commands that call a running gateway.
type RemoteOptions struct {
	ConfigOptions
	Addr  string `short:"a" long:"addr" description:"Gateway address (default server.http_addr)"`
	Token string `short:"t" long:"token" description:"Access token (default $ADT_GATEWAY_TOKEN or the token saved by init)"`
}

// remote is a resolved gateway endpoint.
type remote struct {
	baseURL string
	token   string
}

func (o RemoteOptions) resolve() (*remote, error) {
	cfg, configPath, _, err := o.load()
	if err != nil {
		return nil, err
	}
	addr := cfg.Server.HTTPAddr
	if o.Addr != "" {
		addr = o.Addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	token := o.Token
	if token == "" {
		token = os.Getenv(TokenEnvVar)
	}
	if token == "" {
		if data, err := os.ReadFile(tokenFilePath(configPath)); err == nil {
			token = strings.TrimSpace(string(data))
		}
	}
	return &remote{baseURL: strings.TrimRight(addr, "/"), token: token}, nil
}

// get fetches path and returns the body of a 200 response.
func (r *remote) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiErrorMessage(body))
	}
	return body, nil
}

// apiErrorMessage extracts {"error": ...} bodies, falling back to the raw text.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

type healthOptions struct {
	RemoteOptions
	Ready bool `short:"r" long:"ready" description:"Check readiness instead of liveness"`
}

func runHealth(ctx context.Context, args []string) error {
	var opts healthOptions
	if err := parseFlags("health", &opts, args); err != nil {
		return err
	}
	r, err := opts.resolve()
	if err != nil {
		return err
	}

	path := "/health"
	if opts.Ready {
		path = "/health/ready"
	}
	body, err := r.get(ctx, path)
	if err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	if opts.Ready {
		fmt.Println(strings.TrimSpace(string(body)))
		return nil
	}
	fmt.Println("healthy")
	return nil
}

type sessionsOptions struct {
	RemoteOptions
	JSON bool `long:"json" description:"Print the raw JSON response"`
}

func runSessions(ctx context.Context, args []string) error {
	var opts sessionsOptions
	if err := parseFlags("sessions", &opts, args); err != nil {
		return err
	}
	r, err := opts.resolve()
	if err != nil {
		return err
	}

	body, err := r.get(ctx, "/api/sessions")
	if err != nil {
		return err
	}
	if opts.JSON {
		fmt.Println(strings.TrimSpace(string(body)))
		return nil
	}

	var resp gateway.SessionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding sessions: %w", err)
	}
	if resp.Count == 0 {
		fmt.Println("no active sessions")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tUSER\tURL\tPENDING\tAGE")
	for _, s := range resp.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.State, dash(s.User), dash(s.URL), s.Pending, time.Since(s.CreatedAt).Round(time.Second))
	}
	return tw.Flush()
}

type statsOptions struct {
	RemoteOptions
	Since     string `long:"since" default:"24h" description:"Window start: RFC 3339 time or duration ago"`
	Session   string `long:"session" description:"Only calls from this session"`
	Operation string `long:"operation" description:"Only calls to this operation"`
	JSON      bool   `long:"json" description:"Print the raw JSON response"`
}

func runStats(ctx context.Context, args []string) error {
	var opts statsOptions
	if err := parseFlags("stats", &opts, args); err != nil {
		return err
	}
	r, err := opts.resolve()
	if err != nil {
		return err
	}

	q := url.Values{}
	if opts.Since != "" {
		q.Set("since", opts.Since)
	}
	if opts.Session != "" {
		q.Set("session_id", opts.Session)
	}
	if opts.Operation != "" {
		q.Set("operation", opts.Operation)
	}
	body, err := r.get(ctx, "/api/calls/stats?"+q.Encode())
	if err != nil {
		return err
	}
	if opts.JSON {
		fmt.Println(strings.TrimSpace(string(body)))
		return nil
	}

	var stats store.CallStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("decoding stats: %w", err)
	}
	printStats(os.Stdout, &stats)
	return nil
}

func printStats(w io.Writer, stats *store.CallStats) {
	fmt.Fprintf(w, "calls: %d  failures: %d\n\n", stats.TotalCalls, stats.TotalFailures)
	if len(stats.ByOperation) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tCALLS\tFAILURES\tAVG MS\tMAX MS")
	for _, op := range stats.ByOperation {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%.1f\n", op.Operation, op.Calls, op.Failures, op.AvgDurationMs, op.MaxDurationMs)
	}
	_ = tw.Flush()

	if len(stats.ByErrorKind) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ERROR KIND\tCOUNT")
		for _, kind := range slices.Sorted(maps.Keys(stats.ByErrorKind)) {
			fmt.Fprintf(tw, "%s\t%d\n", kind, stats.ByErrorKind[kind])
		}
		_ = tw.Flush()
	}
}

type tokenOptions struct {
	ConfigOptions
	Subject string        `short:"s" long:"subject" required:"true" description:"Client name carried in the token"`
	TTL     time.Duration `long:"ttl" default:"720h" description:"Token lifetime"`
	Admin   bool          `long:"admin" description:"Grant the admin role for the /api endpoints"`
}

func runToken(args []string) error {
	var opts tokenOptions
	if err := parseFlags("token", &opts, args); err != nil {
		return err
	}
	if opts.TTL <= 0 {
		return errors.New("--ttl must be positive")
	}

	cfg, configPath, _, err := opts.load()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s (run adt-gateway init)", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	var roles []string
	if opts.Admin {
		roles = []string{auth.RoleAdmin}
	}
	token, err := verifier.Generate(opts.Subject, roles, opts.TTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

type probeOptions struct {
	ConfigOptions
	URL    string `short:"u" long:"url" description:"Backend URL (default $SAP_URL)"`
	Client string `long:"client" description:"SAP client (default $SAP_CLIENT)"`
	JSON   bool   `long:"json" description:"Print the full result as JSON"`
}

// runProbe runs the connectivity probe locally, using the same transport
// settings a login would.
func runProbe(ctx context.Context, args []string) error {
	var opts probeOptions
	if err := parseFlags("probe", &opts, args); err != nil {
		return err
	}
	cfg, _, _, err := opts.load()
	if err != nil {
		return err
	}

	defaults, err := adt.CredentialsFromEnv()
	if err != nil {
		return err
	}
	creds := defaults.Merge(adt.Credentials{URL: opts.URL, Client: opts.Client})
	if creds.URL == "" {
		return errors.New("no backend URL: pass --url or set SAP_URL")
	}

	p := probe.New(probe.Options{
		Candidates:     cfg.Probe.Candidates,
		Methods:        cfg.Probe.Methods,
		AttemptTimeout: cfg.Probe.AttemptTimeout,
		Logger:         setupLogger(cfg.Logging),
	})
	res := p.Probe(ctx, probe.Target{
		BaseURL:   creds.BaseURL(),
		Client:    creds.Client,
		Transport: adt.NewTransport(creds),
	})

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printProbe(os.Stdout, res)
	if !res.Found {
		return errors.New("no usable path found")
	}
	return nil
}

func printProbe(w io.Writer, res probe.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATH\tSTATUS\tDURATION")
	for _, a := range res.Attempts {
		status := fmt.Sprint(a.Status)
		if a.Err != "" {
			status = "error: " + a.Err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Method, a.Path, status, a.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
	fmt.Fprintln(w)

	c := color.New(color.FgGreen)
	if !res.Found {
		c = color.New(color.FgYellow)
	}
	c.Fprintln(w, res.Summary())
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
