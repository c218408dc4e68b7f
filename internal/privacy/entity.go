package privacy

import (
	"context"
	"strings"
	"unicode/utf8"
)

// EntityKind is the label an annotator attaches to a span.
type EntityKind string

// Entity kinds consumed by the engine. Annotators drop every other label.
const (
	EntityPerson EntityKind = "PERSON"
	EntityGPE    EntityKind = "GPE"
	EntityLOC    EntityKind = "LOC"
)

// ParseEntityKind maps an external label to a known kind.
func ParseEntityKind(label string) (EntityKind, bool) {
	switch k := EntityKind(strings.ToUpper(strings.TrimSpace(label))); k {
	case EntityPerson, EntityGPE, EntityLOC:
		return k, true
	}
	return "", false
}

// Entity is a labeled span of the annotated text, as byte offsets.
type Entity struct {
	Kind  EntityKind `json:"kind"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

// Annotator is the boundary to an external named-entity recognizer.
type Annotator interface {
	Annotate(ctx context.Context, text string) ([]Entity, error)
}

// entityCategory maps entity kinds to the category they feed.
func entityCategory(kind EntityKind) (Category, bool) {
	switch kind {
	case EntityPerson:
		return CategoryName, true
	case EntityGPE, EntityLOC:
		return CategoryLocation, true
	}
	return "", false
}

// entityMatches converts the entities of one category into matches against
// the text they were computed on. Spans that are out of range, already hold
// a replacement token or contain markup characters are skipped.
func entityMatches(text string, entities []Entity, category Category) []Match {
	var matches []Match
	seen := make(map[string]bool)
	for _, ent := range entities {
		c, ok := entityCategory(ent.Kind)
		if !ok || c != category {
			continue
		}
		if ent.Start < 0 || ent.End > len(text) || ent.Start >= ent.End {
			continue
		}

		span := text[ent.Start:ent.End]
		if !utf8.ValidString(span) || seen[span] {
			continue
		}
		if containsToken(span) || strings.ContainsAny(span, forbiddenEntityChars) {
			continue
		}

		seen[span] = true
		matches = append(matches, Match{
			Start:    ent.Start,
			End:      ent.End,
			Category: category,
			Text:     span,
			Key:      span,
		})
	}
	return matches
}
