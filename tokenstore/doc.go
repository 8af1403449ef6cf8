// Package tokenstore persists refresh-token records with automatic expiry.
//
// Records are keyed by the SHA-256 digest of the token value (see
// refresh.KeyOf); raw token values never reach a backend. Every backend
// checks expiry on read, so FindValid is correct even before a backend's own
// expiry (Redis key TTL, the Sweeper) has removed a record.
//
// Backends:
//
//   - RedisStore: versioned binary record per key with PX expiry, a per-owner
//     index set, and a Lua script that consumes a record in one step.
//   - PostgresStore: database/sql over pgx or lib/pq, schema via goose.
//   - MemoryStore: mutex-guarded maps for tests and single-process use.
package tokenstore
