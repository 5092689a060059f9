// ABOUTME: Stateful HTTP client for the SAP ADT REST API
// ABOUTME: Handles the login handshake, CSRF token, session cookies, and logoff

package adt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Client errors
var (
	// ErrConnection means the backend could not be reached or the address is unusable.
	ErrConnection = errors.New("backend connection failed")

	// ErrAuthentication means the backend rejected the login handshake.
	ErrAuthentication = errors.New("backend authentication failed")

	// ErrNotAuthenticated is returned by calls made before any successful login.
	ErrNotAuthenticated = errors.New("not logged in")
)

// DefaultLoginPath is used for the handshake when no discovered path is known.
const DefaultLoginPath = "/sap/bc/adt/discovery"

// LogoffPath terminates the server-side ICF session.
const LogoffPath = "/sap/public/bc/icf/logoff"

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 60 * time.Second

const (
	csrfHeader      = "x-csrf-token"
	csrfFetch       = "fetch"
	csrfRequired    = "required"
	maxErrorMessage = 512
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Request describes one ADT REST call relative to the base address.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	Accept      string
}

// Response is a completed 2xx backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Options configures a new Client.
type Options struct {
	Credentials Credentials

	// LoginPath overrides the handshake endpoint, e.g. a path found by the prober.
	LoginPath string

	// Transport overrides the transport derived from the credentials.
	Transport http.RoundTripper

	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is a live connection to one ADT system, bound to one set of credentials.
type Client struct {
	creds     Credentials
	base      *url.URL
	loginPath string
	http      *http.Client
	jar       *resettableJar
	logger    *slog.Logger
	// ownsTransport is set when New built the transport itself.
	ownsTransport bool

	mu   sync.Mutex
	csrf string
}

// New constructs a client. It does not contact the backend.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.Credentials.BaseURL())
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid base address %q", ErrConnection, opts.Credentials.URL)
	}

	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}

	transport := opts.Transport
	owned := transport == nil
	if owned {
		transport = NewTransport(opts.Credentials)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	c := &Client{
		creds:     opts.Credentials,
		base:      base,
		loginPath: loginPath,
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   timeout,
		},
		jar:           jar,
		logger:        logger.With("backend", base.Host),
		ownsTransport: owned,
	}
	return c, nil
}

// resettableJar lets DropSession discard cookies while requests on the same
// client may still be in flight.
type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newJar() (*resettableJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &resettableJar{jar: jar}, nil
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

func (j *resettableJar) reset() {
	fresh, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return
	}
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()
}

// Credentials returns the credentials this client is bound to.
func (c *Client) Credentials() Credentials {
	return c.creds
}

// LoginPath returns the handshake endpoint in use.
func (c *Client) LoginPath() string {
	return c.loginPath
}

// Login performs the handshake: an authenticated GET on the login path that
// also fetches a CSRF token for later mutating calls.
func (c *Client) Login(ctx context.Context) error {
	req, err := c.newRequest(ctx, &Request{Method: http.MethodGet, Path: c.loginPath, Accept: "*/*"})
	if err != nil {
		return err
	}
	req.Header.Set(csrfHeader, csrfFetch)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorMessage))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthentication, statusError(http.MethodGet, c.loginPath, resp.StatusCode, body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s", ErrConnection, statusError(http.MethodGet, c.loginPath, resp.StatusCode, body))
	}

	c.mu.Lock()
	c.csrf = resp.Header.Get(csrfHeader)
	c.mu.Unlock()

	c.logger.Info("ADT login succeeded",
		"login_path", c.loginPath,
		"user", c.creds.User,
		"client", c.creds.Client,
	)
	return nil
}

// Logout ends the server-side session and then drops local state.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: LogoffPath})
	c.DropSession()
	if err != nil {
		return fmt.Errorf("logging off: %w", err)
	}
	c.logger.Info("ADT logout succeeded", "user", c.creds.User)
	return nil
}

// DropSession forgets cookies and the CSRF token without contacting the backend.
func (c *Client) DropSession() {
	c.jar.reset()
	c.mu.Lock()
	c.csrf = ""
	c.mu.Unlock()
}

// Close drops local session state and releases the idle keep-alive
// connections of a transport the client built. Requests still running
// finish normally. A caller-supplied transport is left open.
func (c *Client) Close() {
	c.DropSession()
	if c.ownsTransport {
		c.http.CloseIdleConnections()
	}
}

// Do executes a backend call. Mutating calls carry the CSRF token; a single
// refresh is attempted when the backend reports the token as required.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	resp, err := c.do(ctx, r)
	var be *Error
	if errors.As(err, &be) && be.Status == http.StatusForbidden && isMutating(r.Method) {
		if refreshErr := c.refreshCSRF(ctx); refreshErr == nil {
			return c.do(ctx, r)
		}
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, r *Request) (*Response, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	if isMutating(r.Method) {
		c.mu.Lock()
		token := c.csrf
		c.mu.Unlock()
		if token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}

	c.logger.Debug("ADT request", "method", req.Method, "path", r.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := statusError(req.Method, r.Path, resp.StatusCode, body)
		if resp.StatusCode == http.StatusForbidden && strings.EqualFold(resp.Header.Get(csrfHeader), csrfRequired) {
			e.Message = "CSRF token required"
		}
		return nil, e
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) refreshCSRF(ctx context.Context) error {
	req, err := c.newRequest(ctx, &Request{Method: http.MethodGet, Path: c.loginPath, Accept: "*/*"})
	if err != nil {
		return err
	}
	req.Header.Set(csrfHeader, csrfFetch)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	token := resp.Header.Get(csrfHeader)
	if token == "" {
		return errors.New("no CSRF token returned")
	}
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
	return nil
}

func (c *Client) newRequest(ctx context.Context, r *Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	ref, err := url.Parse(r.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", r.Path, err)
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + ref.Path
	u.RawQuery = ref.RawQuery

	q := u.Query()
	for k, vs := range r.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.creds.Client != "" {
		q.Set("sap-client", c.creds.Client)
	}
	if c.creds.Language != "" {
		q.Set("sap-language", c.creds.Language)
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.creds.User, c.creds.Password)
	if r.Accept != "" {
		req.Header.Set("Accept", r.Accept)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	return req, nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

func statusError(method, path string, status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	return &Error{Status: status, Method: method, Path: path, Message: msg}
}
