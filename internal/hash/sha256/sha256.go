// Package sha256 names archived pages after the SHA-256 of their URL.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements local.Hasher.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// HashString returns the lowercase hex digest of s.
func (*Hasher) HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
