package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/session"
)

// RetryAfter is the Retry-After value sent with transient failures.
const RetryAfter = "1"

type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps err through edgeauth.HTTPStatus and edgeauth.PublicMessage.
// Transient failures carry Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	if edgeauth.Retryable(err) {
		w.Header().Set("Retry-After", RetryAfter)
	}
	WriteJSON(w, edgeauth.HTTPStatus(err), errorBody{Error: edgeauth.PublicMessage(err)})
}

// SetSessionCookie stores issued as the session cookie named by the edge
// policy. The cookie lives as long as the credential.
func SetSessionCookie(w http.ResponseWriter, cfg edgeauth.Config, issued session.Issued) {
	c := &http.Cookie{
		Name:     cfg.Edge.CookieName,
		Value:    issued.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.HTTP.SecureCookies,
		SameSite: cfg.HTTP.SameSiteMode(),
	}
	if issued.Credential != nil {
		exp := issued.Credential.Claims().ExpiresAt
		if !exp.IsZero() {
			c.Expires = exp.UTC()
			c.MaxAge = int(time.Until(exp).Seconds())
			if c.MaxAge <= 0 {
				c.MaxAge = -1
			}
		}
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg edgeauth.Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Edge.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.HTTP.SecureCookies,
		SameSite: cfg.HTTP.SameSiteMode(),
	})
}
