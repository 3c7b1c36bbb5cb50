// Package auth attaches mirror credentials to metadata requests.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/glorpus-work/querykit/pkg/errors"
)

// Authenticator applies credentials to an HTTP request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth sets fixed request headers, e.g. an API key.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	BasicAuthType  Type = "basic"
	HeaderAuthType Type = "header"
	BearerAuthType Type = "bearer"
)

func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

func (b BasicAuth) Type() Type { return BasicAuthType }

func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

func (h HeaderAuth) Type() Type { return HeaderAuthType }

func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

func (b BearerAuth) Type() Type { return BearerAuthType }

// Credential is the configured form of an Authenticator for one mirror host.
// Exactly one of Username, Token or Headers is set.
type Credential struct {
	Host     string            `yaml:"host" toml:"host"`
	Username string            `yaml:"username,omitempty" toml:"username"`
	Password string            `yaml:"password,omitempty" toml:"password"`
	Token    string            `yaml:"token,omitempty" toml:"token"`
	Headers  map[string]string `yaml:"headers,omitempty" toml:"headers"`
}

// Authenticator builds the Authenticator c describes.
func (c Credential) Authenticator() (Authenticator, error) {
	var set []Authenticator
	if c.Username != "" {
		set = append(set, BasicAuth{Username: c.Username, Password: c.Password})
	}
	if c.Token != "" {
		set = append(set, BearerAuth{Token: c.Token})
	}
	if len(c.Headers) > 0 {
		set = append(set, HeaderAuth{Headers: c.Headers})
	}
	if len(set) != 1 {
		return nil, fmt.Errorf("%s: %w", c.Host, errors.ErrInvalidCredential)
	}
	return set[0], nil
}

// Hosts picks an Authenticator by request host.
type Hosts map[string]Authenticator

// NewHosts builds Hosts from credentials. Host names compare case-insensitively
// and may carry a port.
func NewHosts(creds []Credential) (Hosts, error) {
	h := make(Hosts, len(creds))
	for _, c := range creds {
		host := strings.ToLower(strings.TrimSpace(c.Host))
		if host == "" {
			return nil, fmt.Errorf("empty host: %w", errors.ErrInvalidCredential)
		}
		if _, dup := h[host]; dup {
			return nil, fmt.Errorf("%s listed twice: %w", host, errors.ErrInvalidCredential)
		}
		a, err := c.Authenticator()
		if err != nil {
			return nil, err
		}
		h[host] = a
	}
	return h, nil
}

// For returns the Authenticator of req's host. host:port wins over host.
func (h Hosts) For(req *http.Request) (Authenticator, bool) {
	if len(h) == 0 || req.URL == nil {
		return nil, false
	}
	if a, ok := h[strings.ToLower(req.URL.Host)]; ok {
		return a, true
	}
	a, ok := h[strings.ToLower(req.URL.Hostname())]
	return a, ok
}

// Apply authenticates req when its host has credentials.
func (h Hosts) Apply(req *http.Request) error {
	if a, ok := h.For(req); ok {
		return a.Apply(req)
	}
	return nil
}
