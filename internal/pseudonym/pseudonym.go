package pseudonym

import (
	"crypto/sha512"
	"encoding/hex"
)

// MaxLength is the length of a full hex-encoded SHA-512 digest.
const MaxLength = sha512.Size * 2

// Pseudonymizer maps values to fixed-length hex tokens bound to one Salt.
type Pseudonymizer struct {
	salt Salt
}

// New creates a Pseudonymizer for the run's salt.
func New(salt Salt) (*Pseudonymizer, error) {
	if salt.IsZero() {
		return nil, ErrEmptySalt
	}
	return &Pseudonymizer{salt: salt}, nil
}

// Pseudonymize hashes value||salt with SHA-512 and returns the first length
// lowercase hex characters of the digest. Neither input is truncated.
func (p *Pseudonymizer) Pseudonymize(value string, length int) string {
	if length <= 0 {
		return ""
	}
	if length > MaxLength {
		length = MaxLength
	}

	h := sha512.New()
	h.Write([]byte(value))
	h.Write([]byte(p.salt.value))
	return hex.EncodeToString(h.Sum(nil))[:length]
}
