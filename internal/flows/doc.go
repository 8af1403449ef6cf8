// Package flows contains pure-function orchestrators for the Engine's
// refresh, sign-in and revoke operations.
//
// Each flow function (RunRefresh, RunPasswordSignIn, RunIssueSession,
// RunSignOut, RunRevokeAll) accepts a typed dependency struct and returns a
// result carrying a failure kind. The root package maps kinds onto its error
// taxonomy, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate the refresh rotator, session issuer, rate limiter
// and user lookup. They do NOT own any of these resources; ownership stays
// with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import edgeauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
