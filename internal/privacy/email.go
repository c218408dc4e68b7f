package privacy

import (
	"regexp"
	"strings"
)

// Syntax only: local part and domain of letters, digits, '.', '_' and '-',
// final label of 2-10 letters.
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._-]{2,25}@[a-zA-Z0-9.-]{2,25}\.[a-zA-Z]{2,10}`)

type emailDetector struct{}

func (emailDetector) Category() Category { return CategoryEmail }

// Detect pseudonymizes the local part only; the domain is kept as Suffix.
func (emailDetector) Detect(text string) []Match {
	var matches []Match
	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		email := text[loc[0]:loc[1]]
		at := strings.IndexByte(email, '@')
		local := email[:at]
		if emailTokenPattern.MatchString(local) {
			continue
		}
		matches = append(matches, Match{
			Start:    loc[0],
			End:      loc[1],
			Category: CategoryEmail,
			Text:     email,
			Key:      local,
			Suffix:   email[at:],
		})
	}
	return matches
}
