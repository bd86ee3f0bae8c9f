// Package apikey generates push-session API keys and derives the deterministic
// hashes they are stored and looked up by.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	keyBytes    = 32
	hashBytes   = 32
	prefixChars = 8
)

var ErrEmptyPepper = errors.New("apikey: pepper must not be empty")

// Params are the argon2i cost parameters.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultParams match two passes over 64 MiB.
var DefaultParams = Params{Time: 2, Memory: 64 * 1024, Threads: 1}

// Generate returns a new random key as lowercase hex.
func Generate() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Prefix is the non-secret leading part shown in listings.
func Prefix(key string) string {
	if len(key) <= prefixChars {
		return key
	}
	return key[:prefixChars]
}

// Hasher hashes keys with a server-wide pepper in place of a per-key salt,
// so the same key always maps to the same stored hash.
type Hasher struct {
	pepper []byte
	params Params
}

func NewHasher(pepper string, params Params) (*Hasher, error) {
	if pepper == "" {
		return nil, ErrEmptyPepper
	}
	return &Hasher{pepper: []byte(pepper), params: params}, nil
}

func (h *Hasher) Hash(key string) string {
	sum := argon2.Key([]byte(key), h.pepper, h.params.Time, h.params.Memory, h.params.Threads, hashBytes)
	return hex.EncodeToString(sum)
}
