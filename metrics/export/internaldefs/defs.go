package internaldefs

import (
	"github.com/MrEthical07/edgeauth"
)

// Namespace prefixes every exported series.
const Namespace = "edgeauth_"

// Def names one engine metric.
type Def struct {
	ID   edgeauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in exposition order.
var CounterDefs = []Def{
	{ID: edgeauth.MetricSignInSuccess, Name: Namespace + "signin_success_total", Help: "Successful sign-ins (password and OAuth)."},
	{ID: edgeauth.MetricSignInFailure, Name: Namespace + "signin_failure_total", Help: "Rejected password sign-ins."},
	{ID: edgeauth.MetricSignInRateLimited, Name: Namespace + "signin_rate_limited_total", Help: "Sign-ins refused by the throttle."},
	{ID: edgeauth.MetricRefreshSuccess, Name: Namespace + "refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: edgeauth.MetricRefreshInvalid, Name: Namespace + "refresh_invalid_total", Help: "Refresh attempts with an unknown, expired or malformed token."},
	{ID: edgeauth.MetricRefreshFailure, Name: Namespace + "refresh_failure_total", Help: "Refresh attempts that failed for any reason."},
	{ID: edgeauth.MetricRefreshReuseDetected, Name: Namespace + "refresh_reuse_detected_total", Help: "Strict-mode rotations of an already consumed token."},
	{ID: edgeauth.MetricRefreshRateLimited, Name: Namespace + "refresh_rate_limited_total", Help: "Refresh attempts refused by the throttle."},
	{ID: edgeauth.MetricRefreshUserMissing, Name: Namespace + "refresh_user_missing_total", Help: "Valid refresh tokens whose owner no longer exists."},
	{ID: edgeauth.MetricStoreUnavailable, Name: Namespace + "store_unavailable_total", Help: "Operations that hit a transient token store failure."},
	{ID: edgeauth.MetricSessionCreated, Name: Namespace + "session_created_total", Help: "Session credentials issued by sign-in or refresh."},
	{ID: edgeauth.MetricSessionExtended, Name: Namespace + "session_extended_total", Help: "Session credentials extended on access."},
	{ID: edgeauth.MetricSessionDegraded, Name: Namespace + "session_degraded_total", Help: "Session credentials downgraded after their refresh token vanished."},
	{ID: edgeauth.MetricSignOut, Name: Namespace + "signout_total", Help: "Sign-outs."},
	{ID: edgeauth.MetricRevokeAll, Name: Namespace + "revoke_all_total", Help: "Revoke-all operations."},
	{ID: edgeauth.MetricAdminDenied, Name: Namespace + "admin_denied_total", Help: "Admin requests by authenticated non-admins."},
	{ID: edgeauth.MetricAdminUnauthenticated, Name: Namespace + "admin_unauthenticated_total", Help: "Admin requests without a valid session."},
	{ID: edgeauth.MetricTokensPurged, Name: Namespace + "tokens_purged_total", Help: "Expired refresh tokens removed by the sweeper."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []Def{
	{ID: edgeauth.MetricRefreshLatency, Name: Namespace + "refresh_latency_seconds", Help: "Latency of POST /auth/refresh processing."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = Namespace + "audit_dropped_total"

// BucketCount is the number of latency buckets, including +Inf.
const BucketCount = 8

// HistogramBounds are the upper bounds in seconds, matching the engine's
// millisecond buckets 5, 10, 25, 50, 100, 250, 500 and overflow.
var HistogramBounds = [BucketCount]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix spells HistogramBounds for instrument names.
var HistogramBoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative turns raw per-bucket counts into cumulative counts. Short or
// missing input is zero-filled; extra buckets are ignored.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
