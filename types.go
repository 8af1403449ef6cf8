package edgeauth

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/edgeauth/internal/audit"
	internalmetrics "github.com/MrEthical07/edgeauth/internal/metrics"
	"github.com/MrEthical07/edgeauth/session"
)

// UserRecord is the account record returned by [UserProvider].
type UserRecord struct {
	ID    string
	Email string
	Name  string
	Image string
	Role  session.Role
	// PasswordHash is an argon2id or bcrypt hash; empty for OAuth-only accounts.
	PasswordHash string
}

// ExternalIdentity is what an OAuth provider vouches for after a callback.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Image    string
}

// UserProvider integrates the engine with the application's user database.
// Lookups that find nothing must return an error wrapping [ErrNotFound].
type UserProvider interface {
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	// UpsertOAuthUser links ident to an existing account with the same email
	// or creates a new one.
	UpsertOAuthUser(ctx context.Context, ident ExternalIdentity) (UserRecord, error)
}

// PublicUser is the client-facing subset of a UserRecord.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Public strips credential material from u.
func (u UserRecord) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name, Image: u.Image}
}

// SignInResult is returned by sign-in and refresh. RefreshToken goes back to
// the client in the body; Session is the signed session credential for the
// cookie.
type SignInResult struct {
	RefreshToken string
	Session      session.Issued
	User         PublicUser
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink is an [AuditSink] that writes events through a structured logger.
type LogSink = internalaudit.LogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricSignInSuccess        = internalmetrics.MetricSignInSuccess
	MetricSignInFailure        = internalmetrics.MetricSignInFailure
	MetricSignInRateLimited    = internalmetrics.MetricSignInRateLimited
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshInvalid       = internalmetrics.MetricRefreshInvalid
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshRateLimited   = internalmetrics.MetricRefreshRateLimited
	MetricRefreshUserMissing   = internalmetrics.MetricRefreshUserMissing
	MetricStoreUnavailable     = internalmetrics.MetricStoreUnavailable
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionExtended      = internalmetrics.MetricSessionExtended
	MetricSessionDegraded      = internalmetrics.MetricSessionDegraded
	MetricSignOut              = internalmetrics.MetricSignOut
	MetricRevokeAll            = internalmetrics.MetricRevokeAll
	MetricAdminDenied          = internalmetrics.MetricAdminDenied
	MetricAdminUnauthenticated = internalmetrics.MetricAdminUnauthenticated
	MetricTokensPurged         = internalmetrics.MetricTokensPurged
	MetricRefreshLatency       = internalmetrics.MetricRefreshLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
