package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/edgeauth/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ErrNoCredential is returned by RefreshOnAccess when called without a credential.
var ErrNoCredential = errors.New("no session credential")

// RefreshLookup resolves a refresh key to its owner. refresh.Rotator satisfies it.
type RefreshLookup interface {
	ValidateKey(ctx context.Context, key string) (ownerID string, ok bool, err error)
}

// IssuerConfig controls credential lifetimes.
type IssuerConfig struct {
	// MaxAge is the lifetime of a freshly issued or extended credential.
	MaxAge time.Duration
	// UpdateAge is how old a credential must be before RefreshOnAccess
	// re-checks its refresh token. Zero checks on every access.
	UpdateAge time.Duration
}

// Outcome reports what RefreshOnAccess did.
type Outcome int

const (
	// Unchanged means the presented credential stands as is.
	Unchanged Outcome = iota
	// Extended means a new credential with a later expiry was issued.
	Extended
	// Downgraded means the credential was re-signed as Degraded.
	Downgraded
)

func (o Outcome) String() string {
	switch o {
	case Extended:
		return "extended"
	case Downgraded:
		return "degraded"
	default:
		return "unchanged"
	}
}

// Issued is a signed credential together with its decoded form.
type Issued struct {
	Token      string
	Credential Credential
}

// Issuer mints session credentials. It requires a signing jwt.Manager.
type Issuer struct {
	jwt    *jwt.Manager
	lookup RefreshLookup
	cfg    IssuerConfig
	now    func() time.Time
	group  singleflight.Group
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the issuer time source.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer returns an Issuer. lookup may be nil only if RefreshOnAccess is
// never called.
func NewIssuer(m *jwt.Manager, lookup RefreshLookup, cfg IssuerConfig, opts ...IssuerOption) (*Issuer, error) {
	if m == nil || !m.CanSign() {
		return nil, errors.New("session issuer requires a signing jwt manager")
	}
	if cfg.MaxAge <= 0 {
		return nil, errors.New("session max age must be positive")
	}
	if cfg.UpdateAge < 0 || cfg.UpdateAge >= cfg.MaxAge {
		return nil, errors.New("session update age must be within [0, max age)")
	}
	i := &Issuer{jwt: m, lookup: lookup, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// MaxAge returns the configured credential lifetime.
func (i *Issuer) MaxAge() time.Duration {
	return i.cfg.MaxAge
}

// Issue signs a Valid credential for ownerID expiring MaxAge from now.
func (i *Issuer) Issue(ownerID string, role Role, refreshKey string) (Issued, error) {
	now := i.now()
	return i.sign(Claims{
		UserID:     ownerID,
		Role:       role,
		RefreshKey: refreshKey,
		IssuedAt:   now,
		ExpiresAt:  now.Add(i.cfg.MaxAge),
	}, "")
}

// RefreshOnAccess keeps a credential alive while its refresh token is valid.
//
// A Degraded credential, or one younger than UpdateAge, is returned as is. A
// credential without a refresh key degrades to RefreshTokenMissing; one whose
// refresh token is no longer valid degrades to RefreshTokenExpired. Degraded
// credentials keep their original expiry. On a store failure the input is
// returned unchanged together with the error.
func (i *Issuer) RefreshOnAccess(ctx context.Context, cred Credential) (Issued, Outcome, error) {
	if cred == nil {
		return Issued{}, Unchanged, ErrNoCredential
	}
	valid, ok := cred.(Valid)
	if !ok {
		return Issued{Credential: cred}, Unchanged, nil
	}
	claims := valid.Claims()
	now := i.now()

	if claims.RefreshKey == "" {
		out, err := i.degrade(claims, RefreshTokenMissing, now)
		if err != nil {
			return Issued{Credential: cred}, Unchanged, err
		}
		return out, Downgraded, nil
	}
	if i.cfg.UpdateAge > 0 && now.Sub(claims.IssuedAt) < i.cfg.UpdateAge {
		return Issued{Credential: cred}, Unchanged, nil
	}
	if i.lookup == nil {
		return Issued{Credential: cred}, Unchanged, errors.New("session issuer has no refresh lookup")
	}

	owner, found, err := i.lookupShared(ctx, claims.RefreshKey)
	if err != nil {
		return Issued{Credential: cred}, Unchanged, err
	}
	if !found || owner != claims.UserID {
		out, err := i.degrade(claims, RefreshTokenExpired, now)
		if err != nil {
			return Issued{Credential: cred}, Unchanged, err
		}
		return out, Downgraded, nil
	}

	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(i.cfg.MaxAge)
	out, err := i.sign(claims, "")
	if err != nil {
		return Issued{Credential: cred}, Unchanged, err
	}
	return out, Extended, nil
}

type lookupResult struct {
	owner string
	found bool
}

// lookupShared coalesces concurrent lookups of the same key, which happen
// when a page fires several requests with one cookie.
func (i *Issuer) lookupShared(ctx context.Context, key string) (string, bool, error) {
	v, err, _ := i.group.Do(key, func() (interface{}, error) {
		owner, found, err := i.lookup.ValidateKey(ctx, key)
		return lookupResult{owner: owner, found: found}, err
	})
	if err != nil {
		return "", false, err
	}
	res := v.(lookupResult)
	return res.owner, res.found, nil
}

func (i *Issuer) degrade(c Claims, reason Reason, now time.Time) (Issued, error) {
	c.IssuedAt = now
	if !c.ExpiresAt.After(now) {
		c.ExpiresAt = now.Add(time.Minute)
	}
	return i.sign(c, reason)
}

func (i *Issuer) sign(c Claims, reason Reason) (Issued, error) {
	token, err := i.jwt.CreateSession(jwt.SessionClaims{
		UID:  c.UserID,
		Role: string(c.Role),
		RID:  c.RefreshKey,
		Err:  string(reason),
		RegisteredClaims: gjwt.RegisteredClaims{
			IssuedAt:  gjwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: gjwt.NewNumericDate(c.ExpiresAt),
		},
	})
	if err != nil {
		return Issued{}, err
	}

	// NumericDate truncates to seconds; mirror that so the returned credential
	// matches what a verifier will decode.
	c.IssuedAt = c.IssuedAt.Truncate(time.Second)
	c.ExpiresAt = c.ExpiresAt.Truncate(time.Second)
	var cred Credential = NewValid(c)
	if reason != "" {
		cred = NewDegraded(c, reason)
	}
	return Issued{Token: token, Credential: cred}, nil
}
