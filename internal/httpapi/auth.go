package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/middleware"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	RefreshToken string              `json:"refreshToken"`
	User         edgeauth.PublicUser `json:"user"`
}

// errEmptyBody is returned by bindBody for a request without a body.
var errEmptyBody = errors.New("empty body")

func bindBody(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// refreshCookieName is where browser clients that cannot read the response
// body (the OAuth callback) keep their refresh token.
func (s *Server) refreshCookieName() string {
	return s.cfg.Edge.CookieName + ".refresh"
}

func (s *Server) setRefreshCookie(c *gin.Context, token string) {
	maxAge := int(s.cfg.Refresh.TTL.Seconds())
	if token == "" {
		maxAge = -1
	}
	c.SetSameSite(s.cfg.HTTP.SameSiteMode())
	c.SetCookie(s.refreshCookieName(), token, maxAge, "/auth/", "", s.cfg.HTTP.SecureCookies, true)
}

// presentedRefreshToken reads the body token and, only when the body is
// absent, falls back to the refresh cookie.
func (s *Server) presentedRefreshToken(c *gin.Context) (string, error) {
	var req refreshRequest
	err := bindBody(c, &req)
	switch {
	case err == nil:
		return req.RefreshToken, nil
	case errors.Is(err, errEmptyBody):
		token, _ := c.Cookie(s.refreshCookieName())
		return token, nil
	default:
		return "", edgeauth.ErrValidation
	}
}

func (s *Server) writeSignedIn(c *gin.Context, res edgeauth.SignInResult) {
	middleware.SetSessionCookie(c.Writer, s.cfg, res.Session)
	s.setRefreshCookie(c, res.RefreshToken)
	writeJSON(c, http.StatusOK, authResponse{RefreshToken: res.RefreshToken, User: res.User})
}

func (s *Server) handleRefresh(c *gin.Context) {
	token, err := s.presentedRefreshToken(c)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := s.engine.Refresh(c.Request.Context(), token)
	if err != nil {
		if edgeauth.HTTPStatus(err) == http.StatusUnauthorized {
			s.setRefreshCookie(c, "")
		}
		writeError(c, err)
		return
	}
	s.writeSignedIn(c, res)
}

func (s *Server) handleSignIn(c *gin.Context) {
	var req signInRequest
	if err := bindBody(c, &req); err != nil {
		writeError(c, edgeauth.ErrMissingCredentials)
		return
	}
	res, err := s.engine.SignInWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeSignedIn(c, res)
}

// handleSignOut consumes the presented refresh token, if any, and always
// clears both cookies.
func (s *Server) handleSignOut(c *gin.Context) {
	token, err := s.presentedRefreshToken(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if token != "" {
		if err := s.engine.SignOut(c.Request.Context(), token); err != nil && !errors.Is(err, edgeauth.ErrValidation) {
			writeError(c, err)
			return
		}
	}
	middleware.ClearSessionCookie(c.Writer, s.cfg)
	s.setRefreshCookie(c, "")
	c.Status(http.StatusNoContent)
}
