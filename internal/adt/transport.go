// ABOUTME: HTTP transport construction honoring per-credential proxy and TLS directives
// ABOUTME: Shared by the ADT client and the connectivity prober

package adt

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// NewTransport builds a transport for the given credentials. Proxy selection
// follows HTTP_PROXY/HTTPS_PROXY/NO_PROXY semantics using only the values held
// by the credentials, never the live process environment.
func NewTransport(c Credentials) *http.Transport {
	proxyCfg := &httpproxy.Config{
		HTTPProxy:  c.HTTPProxy,
		HTTPSProxy: c.HTTPSProxy,
		NoProxy:    c.NoProxy,
	}
	proxyFunc := proxyCfg.ProxyFunc()

	return &http.Transport{
		Proxy: func(r *http.Request) (*url.URL, error) {
			return proxyFunc(r.URL)
		},
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.InsecureSkipVerify(), //nolint:gosec // operator opt-in via NODE_TLS_REJECT_UNAUTHORIZED=0
			MinVersion:         tls.VersionTLS12,
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
