package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const tokenSecretSize = 32

// ErrMalformedToken is returned by Decode for values that could never have
// been issued by NewToken.
var ErrMalformedToken = errors.New("malformed refresh token")

// NewToken returns a fresh opaque token value and its store key.
func NewToken() (token string, key string, err error) {
	var secret [tokenSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), hashSecret(secret[:]), nil
}

// KeyOf maps a presented token to the key it is stored under. Malformed values
// produce ErrMalformedToken.
func KeyOf(token string) (string, error) {
	secret, err := decode(token)
	if err != nil {
		return "", err
	}
	return hashSecret(secret), nil
}

// ValidKey reports whether key has the shape produced by KeyOf.
func ValidKey(key string) bool {
	if len(key) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

func decode(token string) ([]byte, error) {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenSecretSize) {
		return nil, ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(token)
	if err != nil || len(raw) != tokenSecretSize {
		return nil, ErrMalformedToken
	}
	return raw, nil
}

func hashSecret(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}
