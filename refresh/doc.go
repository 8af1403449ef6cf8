// Package refresh owns opaque refresh tokens: generation, the digest key they
// are stored under, and rotation against a Store.
//
// # Token format
//
// 32 random bytes, base64url without padding. Stores only ever see the
// SHA-256 hex digest returned by KeyOf.
//
// # Rotation
//
// Rotate consumes the presented token and creates a replacement with a fresh
// TTL. Two concurrent rotations of the same token both succeed by default;
// Options.StrictSingleUse turns the loser into ErrReuseDetected.
//
// This package performs no I/O of its own and does not import the store
// implementations in tokenstore.
package refresh
