package gate

import (
	"errors"
	"strings"
)

// Policy is the whole configuration the gate needs. It carries no store
// address and no signing material.
type Policy struct {
	// PublicPrefixes are always allowed (auth endpoints, static assets).
	PublicPrefixes []string `yaml:"public_prefixes"`
	// PublicPages are allowed for anonymous users and bounce signed-in users home.
	PublicPages []string `yaml:"public_pages"`
	LoginPath   string   `yaml:"login_path"`
	HomePath    string   `yaml:"home_path"`
	// CookieName is where the session credential travels.
	CookieName string `yaml:"cookie_name"`
}

// DefaultPolicy returns the standard public surface.
func DefaultPolicy() Policy {
	return Policy{
		PublicPrefixes: []string{"/auth/", "/static/", "/favicon.ico", "/healthz"},
		PublicPages:    []string{"/login", "/register"},
		LoginPath:      "/login",
		HomePath:       "/",
		CookieName:     "edgeauth.session",
	}
}

// Validate rejects policies the gate cannot act on.
func (p Policy) Validate() error {
	if !strings.HasPrefix(p.LoginPath, "/") {
		return errors.New("gate login path must be absolute")
	}
	if !strings.HasPrefix(p.HomePath, "/") {
		return errors.New("gate home path must be absolute")
	}
	if strings.TrimSpace(p.CookieName) == "" {
		return errors.New("gate cookie name must not be empty")
	}
	for _, prefix := range p.PublicPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return errors.New("gate public prefixes must be absolute")
		}
		if prefix == "/" {
			return errors.New("gate public prefix \"/\" would expose every path")
		}
	}
	loginPublic := p.isPublicPage(p.LoginPath) || p.hasPublicPrefix(p.LoginPath)
	if !loginPublic {
		return errors.New("gate login path must be public")
	}
	return nil
}

// hasPublicPrefix matches whole path segments: "/healthz" covers
// "/healthz" and "/healthz/live" but not "/healthz-internal".
func (p Policy) hasPublicPrefix(path string) bool {
	for _, prefix := range p.PublicPrefixes {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

func (p Policy) isPublicPage(path string) bool {
	for _, page := range p.PublicPages {
		if path == page {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of p.
func (p Policy) Clone() Policy {
	out := p
	out.PublicPrefixes = append([]string(nil), p.PublicPrefixes...)
	out.PublicPages = append([]string(nil), p.PublicPages...)
	return out
}
