package pseudonym

import (
	"fmt"
	"strings"
	"testing"
)

func mustPseudonymizer(t *testing.T, salt string) *Pseudonymizer {
	t.Helper()
	s, err := SaltFromString(salt)
	if err != nil {
		t.Fatalf("Failed to create salt: %v", err)
	}
	p, err := New(s)
	if err != nil {
		t.Fatalf("Failed to create pseudonymizer: %v", err)
	}
	return p
}

func TestPseudonymize(t *testing.T) {
	p := mustPseudonymizer(t, "abc123")

	t.Run("KnownVector", func(t *testing.T) {
		if got := p.Pseudonymize("test_email", 8); got != "cf3df552" {
			t.Errorf("Expected cf3df552, got %s", got)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		for _, v := range []string{"", "user", "4111111111111111", "Juha Nurmi"} {
			if p.Pseudonymize(v, 12) != p.Pseudonymize(v, 12) {
				t.Errorf("Pseudonym for %q is not deterministic", v)
			}
		}
	})

	t.Run("Length", func(t *testing.T) {
		for _, n := range []int{1, 6, 8, 12, 64, MaxLength} {
			if got := p.Pseudonymize("value", n); len(got) != n {
				t.Errorf("Expected length %d, got %d", n, len(got))
			}
		}
		if got := p.Pseudonymize("value", 0); got != "" {
			t.Errorf("Expected empty pseudonym for length 0, got %q", got)
		}
		if got := p.Pseudonymize("value", MaxLength+10); len(got) != MaxLength {
			t.Errorf("Expected length clamped to %d, got %d", MaxLength, len(got))
		}
	})

	t.Run("PrefixStable", func(t *testing.T) {
		long := p.Pseudonymize("admin", 12)
		if !strings.HasPrefix(long, p.Pseudonymize("admin", 6)) {
			t.Error("Shorter pseudonym should be a prefix of the longer one")
		}
	})

	t.Run("SaltMatters", func(t *testing.T) {
		other := mustPseudonymizer(t, "xyz789")
		if p.Pseudonymize("user", 12) == other.Pseudonymize("user", 12) {
			t.Error("Different salts should produce different pseudonyms")
		}
	})

	t.Run("LowercaseHex", func(t *testing.T) {
		got := p.Pseudonymize("Some Value", MaxLength)
		if strings.Trim(got, "0123456789abcdef") != "" {
			t.Errorf("Pseudonym is not lowercase hex: %s", got)
		}
	})
}

func TestSalt(t *testing.T) {
	t.Run("Generated", func(t *testing.T) {
		a, err := NewSalt()
		if err != nil {
			t.Fatalf("Failed to generate salt: %v", err)
		}
		b, err := NewSalt()
		if err != nil {
			t.Fatalf("Failed to generate salt: %v", err)
		}
		if a.Len() != DefaultSaltSize {
			t.Errorf("Expected salt length %d, got %d", DefaultSaltSize, a.Len())
		}
		if a.value == b.value {
			t.Error("Independent salts should differ")
		}
		if strings.Trim(a.value, saltAlphabet) != "" {
			t.Error("Salt contains characters outside the alphabet")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := SaltFromString(""); err != ErrEmptySalt {
			t.Errorf("Expected ErrEmptySalt, got %v", err)
		}
		if _, err := NewSaltSize(0); err != ErrEmptySalt {
			t.Errorf("Expected ErrEmptySalt, got %v", err)
		}
		if _, err := New(Salt{}); err != ErrEmptySalt {
			t.Errorf("Expected ErrEmptySalt, got %v", err)
		}
	})

	t.Run("NeverPrinted", func(t *testing.T) {
		s, _ := SaltFromString("super-secret")
		for _, out := range []string{fmt.Sprint(s), fmt.Sprintf("%v", s), fmt.Sprintf("%#v", s), s.String()} {
			if strings.Contains(out, "super-secret") {
				t.Errorf("Salt leaked in %q", out)
			}
		}
	})
}
