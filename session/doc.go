// Package session models session credentials and issues them.
//
// A credential is a signed token carrying the user id, role and the key of
// the refresh token it was issued against. Decoded, it is one of two
// variants: Valid, or Degraded with a Reason when its refresh token could not
// be confirmed.
//
// Verifier needs only verification keys and is what the gate uses. Issuer
// needs signing keys and a RefreshLookup and runs only where the refresh
// token store is reachable.
package session
