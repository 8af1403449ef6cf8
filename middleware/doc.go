// Package middleware adapts an [edgeauth.Engine] to net/http.
//
// # Chain
//
// The full-capability server wraps its router, outermost first:
//
//	AccessLog -> RefreshOnAccess -> router -> gate.Handler -> pages
//
// The handlers are plain net/http so any router can mount them; the
// bundled server runs the guards inside its gin route groups.
//
//   - [AccessLog] assigns a request id, records the client IP and logs one
//     line per request.
//   - [RefreshOnAccess] verifies the session cookie, extends or degrades it
//     through Engine.RefreshOnAccess and places the result in the request
//     context, where the gate picks it up.
//   - [AdminOnly] and [RequireSession] guard API handlers with JSON 401/403
//     responses instead of redirects.
//
// # What this package must NOT do
//
//   - Parse or sign credentials itself (Engine and package gate do that).
//   - Touch the refresh token store.
//   - Collapse 401 and 403.
package middleware
