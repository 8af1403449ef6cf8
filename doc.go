// Package edgeauth is a session authentication core built around rotating
// opaque refresh tokens and short-lived signed session credentials.
//
// Two environments share one configuration surface. The full-capability
// process builds an [Engine] through [Builder]; it owns the refresh token
// store, signs credentials and guards admin endpoints. The restricted edge
// runs only package gate, which needs the [Config.Edge] policy and
// verification key material, nothing else.
//
// # Architecture boundaries
//
// edgeauth is the public surface: [Engine], [Builder], [Config], the error
// taxonomy and value types. Flow orchestration, audit dispatch, rate
// limiting and counters live under internal/.
//
// # What this package must NOT do
//
//   - Expose store clients or token encodings in its public API.
//   - Return raw backend errors; every error wraps one of the sentinels in
//     errors.go so [HTTPStatus] and [PublicMessage] stay total.
//   - Hold package-level connections. Each Engine owns its handles.
package edgeauth
