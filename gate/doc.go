// Package gate decides, for every request, whether it may proceed or where it
// should be redirected.
//
// The gate is meant to run in a restricted environment: it reads verified
// claims and the request path, and nothing else. It never reaches the refresh
// token store and never signs credentials; NewEdge builds a verify-only
// credential verifier so an Ed25519 deployment carries only the public key.
// Keeping a credential alive is done upstream by the full-capability server,
// which places the refreshed credential in the request context.
package gate
