// Package oauth signs users in through external OAuth 2.0 identity providers.
//
// A [Provider] wraps an oauth2.Config plus a userinfo endpoint and turns an
// authorization code into an [edgeauth.ExternalIdentity]. Google has a
// built-in endpoint; any other provider must configure its URLs explicitly.
// Providers use PKCE and a random state; the HTTP layer keeps both in a
// short-lived cookie between the redirect and the callback.
package oauth
