package edgeauth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed input, such as a missing refresh token.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated marks a missing, invalid or degraded session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is returned for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshInvalid is returned for an unknown, expired or malformed refresh token.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRotationFailed is returned when a replacement refresh token cannot be issued.
	ErrRotationFailed = errors.New("refresh token rotation failed")
	// ErrRefreshReuse is returned in strict rotation mode when a token is presented twice.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrForbidden marks an authenticated caller without the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when the owner of a valid refresh token no longer exists.
	ErrNotFound = errors.New("user not found")
	// ErrRateLimited is returned when a caller exceeded the refresh or sign-in budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransientStore marks timeouts and connectivity failures of the token
	// store. Callers may retry.
	ErrTransientStore = errors.New("token store temporarily unavailable")
	// ErrSessionIssue is returned when a session credential cannot be signed.
	ErrSessionIssue = errors.New("session issuance failed")
	// ErrUserLookup is returned when the user provider fails.
	ErrUserLookup = errors.New("user lookup failed")
	// ErrEngineNotReady is returned by methods of a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrProviderUnavailable is returned when an OAuth provider is not configured.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrMissingCredentials is the sign-in flavour of ErrValidation.
	ErrMissingCredentials = fmt.Errorf("%w: email and password are required", ErrValidation)
)

// HTTPStatus maps an engine error to its response status. Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrRotationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrProviderUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a client-safe message for err. Internal details never
// leak through it.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusOK:
		return ""
	case http.StatusBadRequest:
		if errors.Is(err, ErrMissingCredentials) {
			return "Email and password are required"
		}
		return "Refresh token is required"
	case http.StatusUnauthorized:
		if errors.Is(err, ErrInvalidCredentials) {
			return "Invalid email or password"
		}
		if errors.Is(err, ErrUnauthenticated) {
			return "Authentication required"
		}
		return "Invalid or expired refresh token"
	case http.StatusForbidden:
		return "Admin access required"
	case http.StatusNotFound:
		if errors.Is(err, ErrProviderUnavailable) {
			return "Unknown identity provider"
		}
		return "User not found"
	case http.StatusTooManyRequests:
		return "Too many requests"
	default:
		return "Internal server error"
	}
}

// Retryable reports whether err is a transient failure worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
