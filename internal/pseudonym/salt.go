// Package pseudonym derives deterministic, salted, irreversible surrogates
// for sensitive values. One Salt is generated per run and shared read-only by
// every component that needs to pseudonymize.
package pseudonym

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap/zapcore"
)

const (
	// DefaultSaltSize is 700 characters from a 64 symbol alphabet (~4200 bits).
	DefaultSaltSize = 700

	saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
)

// ErrEmptySalt is returned when a salt would be empty.
var ErrEmptySalt = errors.New("salt must not be empty")

// Salt is the per-run secret. It is immutable and never rendered in logs.
type Salt struct {
	value string
}

// NewSalt generates a random salt of DefaultSaltSize characters.
func NewSalt() (Salt, error) {
	return NewSaltSize(DefaultSaltSize)
}

// NewSaltSize generates a random salt of the given number of characters
// using crypto/rand.
func NewSaltSize(size int) (Salt, error) {
	if size <= 0 {
		return Salt{}, ErrEmptySalt
	}

	limit := big.NewInt(int64(len(saltAlphabet)))
	buf := make([]byte, size)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return Salt{}, fmt.Errorf("failed to generate salt: %w", err)
		}
		buf[i] = saltAlphabet[n.Int64()]
	}

	return Salt{value: string(buf)}, nil
}

// SaltFromString wraps a caller supplied secret, e.g. a fixed salt shared by
// several processes that must agree on pseudonyms.
func SaltFromString(s string) (Salt, error) {
	if s == "" {
		return Salt{}, ErrEmptySalt
	}
	return Salt{value: s}, nil
}

// Len returns the salt length in bytes.
func (s Salt) Len() int {
	return len(s.value)
}

// IsZero reports whether the salt was never initialized.
func (s Salt) IsZero() bool {
	return s.value == ""
}

// String never reveals the secret.
func (s Salt) String() string {
	return "[REDACTED]"
}

// GoString keeps %#v from leaking the secret as well.
func (s Salt) GoString() string {
	return "pseudonym.Salt{[REDACTED]}"
}

// MarshalLogObject lets zap.Object(...) record the salt length only.
func (s Salt) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("length", len(s.value))
	return nil
}
