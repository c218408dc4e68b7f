package privacy

import (
	"regexp"
	"strings"
)

// 13-19 digits, tolerating spaces and hyphens between them.
var cardPattern = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)

var cardSeparators = strings.NewReplacer(" ", "", "-", "")

type cardDetector struct{}

func (cardDetector) Category() Category { return CategoryCard }

// Detect keeps the matched literal (with its separators) as the replaced
// text while the normalized digits are what gets pseudonymized.
func (cardDetector) Detect(text string) []Match {
	var matches []Match
	for _, loc := range cardPattern.FindAllStringIndex(text, -1) {
		literal := text[loc[0]:loc[1]]
		digits := cardSeparators.Replace(literal)
		if !LuhnValid(digits) {
			continue
		}
		matches = append(matches, Match{
			Start:    loc[0],
			End:      loc[1],
			Category: CategoryCard,
			Text:     literal,
			Key:      digits,
		})
	}
	return matches
}

// LuhnValid reports whether number, a string of ASCII digits, passes the
// Luhn checksum. Any other character makes it invalid.
func LuhnValid(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if !isDigitByte(c) {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
