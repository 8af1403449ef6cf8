package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 10
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps password length when Config leaves it zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrTooShort is returned by Hash for passwords under 10 bytes.
	ErrTooShort = errors.New("password must be at least 10 bytes")
	// ErrTooLong is returned when a password exceeds MaxPasswordBytes.
	ErrTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned for stored hashes that cannot be parsed.
	ErrMalformedHash = errors.New("invalid password hash format")
	// ErrUnsupportedHash is returned for hashes of an unknown algorithm or
	// argon2 version.
	ErrUnsupportedHash = errors.New("unsupported password hash algorithm")
)

// Config holds argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes bounds the work an attacker can force per attempt.
	MaxPasswordBytes int
}

// cost is the part of a hash that decides how expensive it was.
type cost struct {
	memory      uint32
	time        uint32
	parallelism uint8
	keyLength   uint32
}

// weakerThan reports whether c falls short of want on any axis.
func (c cost) weakerThan(want cost) bool {
	return c.memory < want.memory ||
		c.time < want.time ||
		c.parallelism < want.parallelism ||
		c.keyLength != want.keyLength
}

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$hash" string.
type phc struct {
	cost
	salt []byte
	hash []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.StdEncoding.EncodeToString(p.salt),
		base64.StdEncoding.EncodeToString(p.hash))
}

// Argon2 hashes and verifies argon2id PHC strings.
type Argon2 struct {
	cost     cost
	saltLen  uint32
	maxBytes int
}

// NewArgon2 rejects parameters below the package minimums.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	maxBytes := cfg.MaxPasswordBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{
		cost: cost{
			memory:      cfg.Memory,
			time:        cfg.Time,
			parallelism: cfg.Parallelism,
			keyLength:   cfg.KeyLength,
		},
		saltLen:  cfg.SaltLength,
		maxBytes: maxBytes,
	}, nil
}

func derive(password string, salt []byte, c cost) []byte {
	return argon2.IDKey([]byte(password), salt, c.time, c.memory, c.parallelism, c.keyLength)
}

// Hash returns a PHC-encoded argon2id hash of password with a fresh salt.
// Length limits apply to raw bytes; no Unicode normalization happens.
func (a *Argon2) Hash(password string) (string, error) {
	switch {
	case len(password) < minPassBytes:
		return "", ErrTooShort
	case len(password) > a.maxBytes:
		return "", ErrTooLong
	}

	salt := make([]byte, a.saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return phc{cost: a.cost, salt: salt, hash: derive(password, salt, a.cost)}.String(), nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time. A malformed hash is an error, a mismatch is not.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.maxBytes {
		return false, ErrTooLong
	}
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(derive(password, p.salt, p.cost), p.hash) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return p.weakerThan(a.cost), nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, fmt.Sprintf(format, args...))
}

func decodePHC(encoded string) (phc, error) {
	// "", alg, version, params, salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, ErrMalformedHash
	}
	if parts[1] != algorithmID {
		return phc{}, ErrUnsupportedHash
	}

	v, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return phc{}, malformed("missing argon2 version")
	}
	version, err := strconv.Atoi(v)
	if err != nil {
		return phc{}, malformed("version %q", v)
	}
	if version != argon2.Version {
		return phc{}, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, version)
	}

	var p phc
	if err := p.cost.parse(parts[3]); err != nil {
		return phc{}, err
	}
	if p.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return phc{}, malformed("salt")
	}
	if p.hash, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return phc{}, malformed("hash")
	}
	p.keyLength = uint32(len(p.hash))
	return p, nil
}

// parse reads "m=<kib>,t=<n>,p=<n>" in any order. Each key must appear once.
func (c *cost) parse(s string) error {
	pairs := strings.Split(s, ",")
	if len(pairs) != 3 {
		return malformed("parameters %q", s)
	}
	seen := make(map[string]bool, 3)
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || seen[k] {
			return malformed("parameter %q", pair)
		}
		seen[k] = true

		bits := 32
		if k == "p" {
			bits = 8
		}
		n, err := strconv.ParseUint(v, 10, bits)
		if err != nil {
			return malformed("parameter %q", pair)
		}
		switch k {
		case "m":
			if n < uint64(minMemoryKB) {
				return malformed("memory %d below minimum", n)
			}
			c.memory = uint32(n)
		case "t":
			if n < uint64(minTimeCost) {
				return malformed("time cost %d below minimum", n)
			}
			c.time = uint32(n)
		case "p":
			if n < uint64(minParallelism) {
				return malformed("parallelism %d below minimum", n)
			}
			c.parallelism = uint8(n)
		default:
			return malformed("unknown parameter %q", k)
		}
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return fmt.Errorf("password time must be >= %d", minTimeCost)
	case cfg.Parallelism < minParallelism:
		return fmt.Errorf("password parallelism must be >= %d", minParallelism)
	case cfg.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case cfg.MaxPasswordBytes < 0 || (cfg.MaxPasswordBytes > 0 && cfg.MaxPasswordBytes < minPassBytes):
		return fmt.Errorf("password max bytes must be >= %d", minPassBytes)
	}
	return nil
}
