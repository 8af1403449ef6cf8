package gate

import (
	"net/url"

	"github.com/MrEthical07/edgeauth/session"
)

// Kind enumerates gate outcomes.
type Kind int

const (
	Allow Kind = iota
	RedirectToLogin
	RedirectHome
)

func (k Kind) String() string {
	switch k {
	case RedirectToLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "allow"
	}
}

// ReasonSessionExpired is attached to login redirects caused by a degraded session.
const ReasonSessionExpired = "SessionExpired"

// Decision is the outcome for one request.
type Decision struct {
	Kind Kind
	// CallbackPath is where login should return to. Set for RedirectToLogin.
	CallbackPath string
	// Reason is empty or ReasonSessionExpired.
	Reason string
}

// Decide applies the rules in order; the first match wins:
//
//  1. public prefix: Allow
//  2. public page: RedirectHome when cred is Valid, else Allow
//  3. Degraded credential: RedirectToLogin with ReasonSessionExpired
//  4. no credential: RedirectToLogin
//  5. Allow
//
// path is matched in its canonical form (see CleanPath). Decide is total:
// every input yields a Decision.
func Decide(p Policy, cred session.Credential, path string) Decision {
	path = CleanPath(path)
	if p.hasPublicPrefix(path) {
		return Decision{Kind: Allow}
	}
	if p.isPublicPage(path) {
		if _, ok := cred.(session.Valid); ok {
			return Decision{Kind: RedirectHome}
		}
		return Decision{Kind: Allow}
	}

	switch cred.(type) {
	case session.Valid:
		return Decision{Kind: Allow}
	case session.Degraded:
		return Decision{Kind: RedirectToLogin, CallbackPath: path, Reason: ReasonSessionExpired}
	default:
		return Decision{Kind: RedirectToLogin, CallbackPath: path}
	}
}

// Location renders the redirect target for d, or "" for Allow.
func (d Decision) Location(p Policy) string {
	switch d.Kind {
	case RedirectHome:
		return p.HomePath
	case RedirectToLogin:
		q := url.Values{}
		q.Set("callbackUrl", d.CallbackPath)
		if d.Reason != "" {
			q.Set("error", d.Reason)
		}
		return p.LoginPath + "?" + q.Encode()
	default:
		return ""
	}
}
