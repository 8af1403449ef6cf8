// Package jwt signs and verifies session credentials. A manager built from an
// Ed25519 public key alone is verify-only and can be deployed where signing
// material must not be present.
package jwt
