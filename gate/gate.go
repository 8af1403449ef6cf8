package gate

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/MrEthical07/edgeauth/jwt"
	"github.com/MrEthical07/edgeauth/session"
)

// Verifier turns a presented credential string into a verified credential.
// session.Verifier satisfies it.
type Verifier interface {
	Verify(token string) (session.Credential, error)
}

// Gate enforces a Policy on HTTP requests.
type Gate struct {
	policy   Policy
	verifier Verifier
	observe  func(*http.Request, Decision)
}

// Option configures a Gate.
type Option func(*Gate)

// WithObserver registers fn to be called with every decision.
func WithObserver(fn func(*http.Request, Decision)) Option {
	return func(g *Gate) { g.observe = fn }
}

// New returns a Gate. verifier may be nil when every request carries its
// credential in the request context (see session.NewContext).
func New(p Policy, verifier Verifier, opts ...Option) (*Gate, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	g := &Gate{policy: p.Clone(), verifier: verifier}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// VerifierConfig holds verification-only key material.
type VerifierConfig struct {
	SigningMethod jwt.SigningMethod
	// PublicKey is the Ed25519 public key (raw or PEM).
	PublicKey []byte
	// Secret is the HS256 shared secret. Leave empty for Ed25519.
	Secret     []byte
	VerifyKeys map[string][]byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// NewEdge builds a Gate with its own verify-only credential verifier. For
// Ed25519 the resulting process holds no signing key at all.
func NewEdge(p Policy, vc VerifierConfig, opts ...Option) (*Gate, error) {
	cfg := jwt.Config{
		SigningMethod: vc.SigningMethod,
		PublicKey:     vc.PublicKey,
		VerifyKeys:    vc.VerifyKeys,
		Issuer:        vc.Issuer,
		Audience:      vc.Audience,
		Leeway:        vc.Leeway,
	}
	if vc.SigningMethod == jwt.MethodHS256 {
		cfg.PrivateKey = vc.Secret
	} else if len(vc.Secret) > 0 {
		return nil, errors.New("edge verifier takes a secret only for hs256")
	}
	m, err := jwt.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	v, err := session.NewVerifier(m)
	if err != nil {
		return nil, err
	}
	return New(p, v, opts...)
}

// Policy returns a copy of the gate's policy.
func (g *Gate) Policy() Policy {
	return g.policy.Clone()
}

// Decide is the package-level Decide bound to the gate's policy.
func (g *Gate) Decide(cred session.Credential, path string) Decision {
	return Decide(g.policy, cred, path)
}

// Credential returns the request's verified credential, or nil. A credential
// already placed in the request context wins over the cookie and the
// Authorization header. Invalid or expired credentials yield nil.
func (g *Gate) Credential(r *http.Request) session.Credential {
	if cred, ok := session.FromContext(r.Context()); ok {
		return cred
	}
	if g.verifier == nil {
		return nil
	}
	token := TokenFromRequest(r, g.policy.CookieName)
	if token == "" {
		return nil
	}
	cred, err := g.verifier.Verify(token)
	if err != nil {
		return nil
	}
	return cred
}

// CleanPath returns the canonical form of p: rooted, with dot segments and
// repeated slashes removed. A trailing slash is kept.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	np := path.Clean(p)
	if p[len(p)-1] == '/' && np != "/" {
		np += "/"
	}
	return np
}

// Handler wraps next. Allowed requests reach next with the credential, if
// any, in their context; everything else gets a 302.
//
// Requests whose decoded path is not canonical, including dot segments
// smuggled in as %2f, are redirected to the canonical path before any
// decision is made. next sees the decoded path the decision was made on,
// never the client's raw escaping.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if clean := CleanPath(r.URL.Path); clean != r.URL.Path {
			u := url.URL{Path: clean, RawQuery: r.URL.RawQuery}
			// 308 keeps the method and body.
			http.Redirect(w, r, u.String(), http.StatusPermanentRedirect)
			return
		}
		if r.URL.RawPath != "" {
			u := *r.URL
			u.RawPath = ""
			r2 := new(http.Request)
			*r2 = *r
			r2.URL = &u
			r = r2
		}

		cred := g.Credential(r)
		d := g.Decide(cred, r.URL.Path)
		if g.observe != nil {
			g.observe(r, d)
		}

		if d.Kind != Allow {
			http.Redirect(w, r, d.Location(g.policy), http.StatusFound)
			return
		}
		if cred != nil {
			r = r.WithContext(session.NewContext(r.Context(), cred))
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware is New followed by Handler for callers that do not need the
// Gate value.
func Middleware(verifier Verifier, p Policy, opts ...Option) (func(http.Handler) http.Handler, error) {
	g, err := New(p, verifier, opts...)
	if err != nil {
		return nil, err
	}
	return g.Handler, nil
}

// TokenFromRequest reads the credential from cookieName, falling back to a
// bearer Authorization header.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
