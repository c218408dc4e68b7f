package privacy

import (
	"regexp"
	"strings"
)

// Match is one detected occurrence. Start and End are byte offsets into the
// buffer the detector scanned and Text == buffer[Start:End].
type Match struct {
	Start    int
	End      int
	Category Category
	Text     string

	// Key is the value that gets pseudonymized. It differs from Text for
	// email (local part only) and card (separators stripped).
	Key string
	// Suffix is kept verbatim after the pseudonym, e.g. "@example.com".
	Suffix string
}

// Detector scans text for one category. Detectors never mutate their input
// and drop candidates that fail semantic validation.
type Detector interface {
	Category() Category
	Detect(text string) []Match
}

// patternDetectors returns the self-contained detectors keyed by category.
func patternDetectors() map[Category]Detector {
	return map[Category]Detector{
		CategoryEmail: emailDetector{},
		CategoryIPv4:  ipv4Detector{},
		CategoryCard:  cardDetector{},
		CategoryIPv6:  ipv6Detector{},
		CategoryIBAN:  ibanDetector{},
	}
}

// detectorFor returns the pattern detector of a category. Name and location
// have none since they are driven by annotator output.
func detectorFor(c Category) (Detector, bool) {
	d, ok := patternDetectors()[c]
	return d, ok
}

// forbiddenEntityChars guard against corrupting markup or structured syntax.
const forbiddenEntityChars = `=<>"'`

// containsToken reports whether s already carries a replacement token marker.
func containsToken(s string) bool {
	for _, c := range processingOrder {
		if strings.Contains(s, c.Prefix()) {
			return true
		}
	}
	return false
}

var emailTokenPattern = regexp.MustCompile(`^email-[0-9a-f]{6}$`)

// isWordByte matches the regexp \w class for ASCII.
func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= '0' && b <= '9') ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}

func isDigitByte(b byte) bool {
	return b >= '0' && b <= '9'
}
