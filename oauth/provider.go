package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/edgeauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleUserInfoURL is the userinfo endpoint used for the "google" provider
// unless overridden.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	// ErrExchange is returned when the authorization code cannot be redeemed.
	ErrExchange = errors.New("oauth code exchange failed")
	// ErrUserInfo is returned when the userinfo endpoint fails or answers
	// without a subject or email.
	ErrUserInfo = errors.New("oauth userinfo failed")
	// ErrUnverifiedEmail is returned when the provider reports the email as
	// unverified.
	ErrUnverifiedEmail = errors.New("oauth email not verified")
)

const maxUserInfoBytes = 1 << 20

var googleScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Provider is one configured identity provider.
type Provider struct {
	name        string
	cfg         *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for the token exchange and userinfo
// calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// NewProvider builds the provider called name from c. For "google" the
// endpoint, scopes and userinfo URL default to Google's.
func NewProvider(name string, c edgeauth.OAuthProviderConfig, opts ...Option) (*Provider, error) {
	if c.ClientID == "" || c.RedirectURL == "" {
		return nil, fmt.Errorf("oauth provider %q requires client id and redirect url", name)
	}
	p := &Provider{
		name: name,
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Scopes:       append([]string(nil), c.Scopes...),
		},
		userInfoURL: c.UserInfoURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}

	if name == "google" {
		p.cfg.Endpoint = google.Endpoint
		if p.userInfoURL == "" {
			p.userInfoURL = GoogleUserInfoURL
		}
		if len(p.cfg.Scopes) == 0 {
			p.cfg.Scopes = append([]string(nil), googleScopes...)
		}
	}
	if c.AuthURL != "" {
		p.cfg.Endpoint.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		p.cfg.Endpoint.TokenURL = c.TokenURL
	}
	if p.cfg.Endpoint.AuthURL == "" || p.cfg.Endpoint.TokenURL == "" || p.userInfoURL == "" {
		return nil, fmt.Errorf("oauth provider %q requires auth, token and userinfo urls", name)
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider name used in URLs.
func (p *Provider) Name() string { return p.name }

// AuthCodeURL returns the consent page URL for state and the PKCE verifier.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange redeems code and fetches the caller's identity.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (edgeauth.ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := p.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return edgeauth.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	resp, err := p.cfg.Client(ctx, tok).Get(p.userInfoURL)
	if err != nil {
		return edgeauth.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return edgeauth.ExternalIdentity{}, fmt.Errorf("%w: status %d", ErrUserInfo, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return edgeauth.ExternalIdentity{}, fmt.Errorf("%w: decode: %v", ErrUserInfo, err)
	}
	return info.identity(p.name)
}

// userInfo accepts both Google v2 ("id", "picture", "verified_email") and
// OpenID Connect ("sub", "email_verified") field names.
type userInfo struct {
	ID            json.RawMessage `json:"id"`
	Sub           string          `json:"sub"`
	Email         string          `json:"email"`
	VerifiedEmail *bool           `json:"verified_email"`
	EmailVerified *bool           `json:"email_verified"`
	Name          string          `json:"name"`
	Picture       string          `json:"picture"`
	AvatarURL     string          `json:"avatar_url"`
}

func (u userInfo) identity(provider string) (edgeauth.ExternalIdentity, error) {
	subject := u.Sub
	if subject == "" && len(u.ID) > 0 {
		// GitHub-style providers send a numeric id.
		subject = strings.Trim(string(u.ID), `"`)
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if subject == "" || email == "" {
		return edgeauth.ExternalIdentity{}, fmt.Errorf("%w: missing subject or email", ErrUserInfo)
	}
	for _, verified := range []*bool{u.VerifiedEmail, u.EmailVerified} {
		if verified != nil && !*verified {
			return edgeauth.ExternalIdentity{}, ErrUnverifiedEmail
		}
	}
	image := u.Picture
	if image == "" {
		image = u.AvatarURL
	}
	return edgeauth.ExternalIdentity{
		Provider: provider,
		Subject:  subject,
		Email:    email,
		Name:     u.Name,
		Image:    image,
	}, nil
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry builds every provider in cfg.
func NewRegistry(cfg edgeauth.OAuthConfig, opts ...Option) (*Registry, error) {
	r := &Registry{providers: make(map[string]*Provider, len(cfg.Providers))}
	for name, pc := range cfg.Providers {
		p, err := NewProvider(name, pc, opts...)
		if err != nil {
			return nil, err
		}
		r.providers[name] = p
	}
	return r, nil
}

// Get returns the named provider or edgeauth.ErrProviderUnavailable.
func (r *Registry) Get(name string) (*Provider, error) {
	if r != nil {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", edgeauth.ErrProviderUnavailable, name)
}

// Names lists the configured providers in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewState returns a random state value for one authorization round trip.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewVerifier returns a PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}
