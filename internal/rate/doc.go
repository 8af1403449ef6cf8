// Package rate provides the Redis-backed fixed-window limiter guarding
// password sign-in and refresh.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - rl:si:   sign-in failures per email
//   - rl:sip:  sign-in failures per IP
//   - rl:rf:   refresh attempts per refresh key
//
// Sign-in only counts failures; refresh counts every attempt.
//
// # What this package must NOT do
//
//   - Decide what a rate-limited request returns to the client.
//   - Be imported outside the edgeauth module.
package rate
