package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func fuzzManagers(f *testing.F) (ed, hs *Manager) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	ed, err = NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
		RequireIAT:    true,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}
	// The HMAC secret is the Ed25519 public key, the classic confusion setup.
	hs, err = NewManager(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte(pub),
		Issuer:        "fuzz-test",
	})
	if err != nil {
		f.Fatal(err)
	}
	return ed, hs
}

// FuzzParseSession feeds arbitrary strings to both parsers. Invalid input
// must be rejected with an error, never a panic, and nothing may verify
// under both algorithms.
func FuzzParseSession(f *testing.F) {
	ed, hs := fuzzManagers(f)

	now := time.Now()
	for _, c := range []SessionClaims{
		{UID: "uid1", Role: "user", RID: "rid1"},
		{UID: "uid2", Role: "admin", RID: "rid2", Err: "RefreshTokenExpired"},
		{UID: "uid3", Role: "user", Err: "RefreshTokenMissing"},
	} {
		c.RegisteredClaims = gjwt.RegisteredClaims{
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Hour)),
		}
		for _, m := range []*Manager{ed, hs} {
			tok, err := m.CreateSession(c)
			if err != nil {
				f.Fatal(err)
			}
			f.Add(tok)
		}
	}
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJFZERTQSJ9.eyJ1aWQiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		edClaims, edErr := ed.ParseSession(input)
		hsClaims, hsErr := hs.ParseSession(input)

		for _, c := range []*SessionClaims{edClaims, hsClaims} {
			if c == nil {
				continue
			}
			if c.UID == "" || c.ExpiresAt == nil {
				t.Fatalf("accepted claims without uid or exp: %+v", c)
			}
		}
		if edErr == nil && edClaims == nil || hsErr == nil && hsClaims == nil {
			t.Fatal("ParseSession returned nil claims without error")
		}
		if edErr == nil && hsErr == nil {
			t.Fatalf("token verified under both EdDSA and HS256: %q", input)
		}
	})
}
