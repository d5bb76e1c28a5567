// Package sha256 names output artifacts by content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256. A positive length truncates
// the hex digest to that many characters.
type Hasher struct {
	length int
}

// New returns a hasher producing full 64-character digests.
func New() *Hasher {
	return &Hasher{}
}

// NewShort returns a hasher whose digests are cut to length hex characters,
// enough to keep object names readable.
func NewShort(length int) *Hasher {
	if length < 0 || length > hex.EncodedLen(sha256.Size) {
		length = 0
	}
	return &Hasher{length: length}
}

// Hash returns the hex-encoded SHA-256 digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.length > 0 {
		digest = digest[:h.length]
	}
	return digest, nil
}
