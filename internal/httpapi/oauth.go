package httpapi

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/middleware"
	"github.com/MrEthical07/edgeauth/oauth"
)

const (
	oauthCookieName = "edgeauth.oauth"
	oauthCookieTTL  = 10 * time.Minute
	oauthErrorCode  = "OAuthCallback"
)

// oauthFlow survives the round trip to the provider in a short-lived cookie.
type oauthFlow struct {
	Provider string `json:"p"`
	State    string `json:"s"`
	Verifier string `json:"v"`
	Callback string `json:"c"`
}

func (f oauthFlow) encode() (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeFlow(v string) (oauthFlow, bool) {
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return oauthFlow{}, false
	}
	var f oauthFlow
	if err := json.Unmarshal(b, &f); err != nil || f.State == "" || f.Verifier == "" {
		return oauthFlow{}, false
	}
	return f, true
}

// safeCallback keeps redirects on this origin.
func safeCallback(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return raw
}

func (s *Server) setFlowCookie(c *gin.Context, value string, maxAge int) {
	// Lax is the strictest mode that still sends the cookie on the
	// provider's top-level redirect back.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthCookieName, value, maxAge, "/auth/callback/", "", s.cfg.HTTP.SecureCookies, true)
}

func (s *Server) loginError() string {
	q := url.Values{}
	q.Set("error", oauthErrorCode)
	return s.cfg.Edge.LoginPath + "?" + q.Encode()
}

func (s *Server) handleOAuthStart(c *gin.Context) {
	p, err := s.oauth.Get(c.Param("provider"))
	if err != nil {
		writeError(c, err)
		return
	}
	state, err := oauth.NewState()
	if err != nil {
		writeError(c, err)
		return
	}
	flow := oauthFlow{
		Provider: p.Name(),
		State:    state,
		Verifier: oauth.NewVerifier(),
		Callback: safeCallback(c.Query("callbackUrl"), s.cfg.Edge.HomePath),
	}
	value, err := flow.encode()
	if err != nil {
		writeError(c, err)
		return
	}
	s.setFlowCookie(c, value, int(oauthCookieTTL.Seconds()))
	c.Redirect(http.StatusFound, p.AuthCodeURL(flow.State, flow.Verifier))
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("provider")
	p, err := s.oauth.Get(name)
	if err != nil {
		writeError(c, err)
		return
	}
	raw, cookieErr := c.Cookie(oauthCookieName)
	s.setFlowCookie(c, "", -1)
	if cookieErr != nil {
		c.Redirect(http.StatusFound, s.loginError())
		return
	}

	flow, ok := decodeFlow(raw)
	if !ok || flow.Provider != name || subtle.ConstantTimeCompare([]byte(flow.State), []byte(c.Query("state"))) != 1 {
		s.logger.WarnContext(ctx, "oauth state mismatch", "provider", name, "request_id", edgeauth.RequestIDFromContext(ctx))
		c.Redirect(http.StatusFound, s.loginError())
		return
	}
	if e := c.Query("error"); e != "" || c.Query("code") == "" {
		s.logger.InfoContext(ctx, "oauth denied by provider", "provider", name, "error", e)
		c.Redirect(http.StatusFound, s.loginError())
		return
	}

	ident, err := p.Exchange(ctx, c.Query("code"), flow.Verifier)
	if err != nil {
		s.logger.WarnContext(ctx, "oauth exchange failed", "provider", name, "error", err)
		c.Redirect(http.StatusFound, s.loginError())
		return
	}
	res, err := s.engine.SignInWithIdentity(ctx, ident)
	if err != nil {
		s.logger.ErrorContext(ctx, "oauth sign-in failed", "provider", name, "error", err)
		c.Redirect(http.StatusFound, s.loginError())
		return
	}

	middleware.SetSessionCookie(c.Writer, s.cfg, res.Session)
	s.setRefreshCookie(c, res.RefreshToken)
	c.Redirect(http.StatusFound, safeCallback(flow.Callback, s.cfg.Edge.HomePath))
}
