// ABOUTME: Backend credentials for an ADT connection and their environment defaults
// ABOUTME: Supports partial overrides merged over process defaults loaded via envdecode

package adt

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/joeshaw/envdecode"
)

// ErrMissingCredentials indicates a required credential field is empty.
var ErrMissingCredentials = errors.New("missing credentials")

// Credentials describes how to reach and authenticate against one ADT system.
// The JSON names match the login tool arguments and the environment variables
// that supply the process defaults.
type Credentials struct {
	URL      string `env:"SAP_URL" json:"SAP_URL,omitempty" jsonschema:"description=SAP System URL"`
	User     string `env:"SAP_USER" json:"SAP_USER,omitempty" jsonschema:"description=SAP Username"`
	Password string `env:"SAP_PASSWORD" json:"SAP_PASSWORD,omitempty" jsonschema:"description=SAP Password"`
	Client   string `env:"SAP_CLIENT" json:"SAP_CLIENT,omitempty" jsonschema:"description=SAP Client"`
	Language string `env:"SAP_LANGUAGE" json:"SAP_LANGUAGE,omitempty" jsonschema:"description=Language"`

	// TLSRejectUnauthorized set to "0" disables certificate verification.
	TLSRejectUnauthorized string `env:"NODE_TLS_REJECT_UNAUTHORIZED" json:"NODE_TLS_REJECT_UNAUTHORIZED,omitempty" jsonschema:"description=0 to disable SSL verification"`

	HTTPProxy  string `env:"HTTP_PROXY" json:"HTTP_PROXY,omitempty" jsonschema:"description=Proxy for http backends"`
	HTTPSProxy string `env:"HTTPS_PROXY" json:"HTTPS_PROXY,omitempty" jsonschema:"description=Proxy for https backends"`
	NoProxy    string `env:"NO_PROXY" json:"NO_PROXY,omitempty" jsonschema:"description=No proxy list"`
}

// CredentialsFromEnv reads the process-wide credential defaults.
// An environment with none of the variables set yields zero Credentials.
func CredentialsFromEnv() (Credentials, error) {
	var c Credentials
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Credentials{}, fmt.Errorf("decoding credentials from environment: %w", err)
	}
	return c, nil
}

// Merge returns a copy of c with every non-empty field of override applied.
func (c Credentials) Merge(override Credentials) Credentials {
	out := c
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.URL, override.URL)
	pick(&out.User, override.User)
	pick(&out.Password, override.Password)
	pick(&out.Client, override.Client)
	pick(&out.Language, override.Language)
	pick(&out.TLSRejectUnauthorized, override.TLSRejectUnauthorized)
	pick(&out.HTTPProxy, override.HTTPProxy)
	pick(&out.HTTPSProxy, override.HTTPSProxy)
	pick(&out.NoProxy, override.NoProxy)
	return out
}

// Validate checks the fields needed for a login handshake.
func (c Credentials) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: SAP_URL", ErrMissingCredentials)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: SAP_URL %q must be an http(s) URL", ErrConnection, c.URL)
	}
	if c.User == "" {
		return fmt.Errorf("%w: SAP_USER", ErrMissingCredentials)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: SAP_PASSWORD", ErrMissingCredentials)
	}
	return nil
}

// InsecureSkipVerify reports whether TLS certificate checks are disabled.
func (c Credentials) InsecureSkipVerify() bool {
	return strings.TrimSpace(c.TLSRejectUnauthorized) == "0"
}

// BaseURL returns the base address without a trailing slash.
func (c Credentials) BaseURL() string {
	return strings.TrimRight(c.URL, "/")
}

// Redacted returns a copy safe for logging.
func (c Credentials) Redacted() Credentials {
	out := c
	if out.Password != "" {
		out.Password = "***"
	}
	return out
}
