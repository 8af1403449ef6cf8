package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Refresh.Rotator != nil && s.deps.SignIn.Refresh != nil && s.deps.Revoke.Revoker != nil
}

func (s Service) Refresh(ctx context.Context, token string) RefreshResult {
	return RunRefresh(ctx, token, s.deps.Refresh)
}

func (s Service) PasswordSignIn(ctx context.Context, email, password, ip string) SignInResult {
	return RunPasswordSignIn(ctx, email, password, ip, s.deps.SignIn)
}

func (s Service) IssueSession(ctx context.Context, user User) SignInResult {
	return RunIssueSession(ctx, user, s.deps.SignIn)
}

func (s Service) SignOut(ctx context.Context, token string) RevokeResult {
	return RunSignOut(ctx, token, s.deps.Revoke)
}

func (s Service) RevokeAll(ctx context.Context, userID string) RevokeResult {
	return RunRevokeAll(ctx, userID, s.deps.Revoke)
}
