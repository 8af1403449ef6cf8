package session

import "context"

type credentialContextKey struct{}

// NewContext returns a copy of ctx carrying cred.
func NewContext(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey{}, cred)
}

// FromContext returns the credential stored by NewContext.
func FromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialContextKey{}).(Credential)
	return cred, ok && cred != nil
}
