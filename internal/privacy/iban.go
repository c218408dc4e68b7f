package privacy

import "regexp"

// ISO 13616 shape: country code, check digits, 11-30 BBAN characters.
// No checksum verification.
var ibanPattern = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`)

type ibanDetector struct{}

func (ibanDetector) Category() Category { return CategoryIBAN }

func (ibanDetector) Detect(text string) []Match {
	var matches []Match
	for _, loc := range ibanPattern.FindAllStringIndex(text, -1) {
		literal := text[loc[0]:loc[1]]
		matches = append(matches, Match{
			Start:    loc[0],
			End:      loc[1],
			Category: CategoryIBAN,
			Text:     literal,
			Key:      literal,
		})
	}
	return matches
}
