package privacy

import "strings"

// Category classifies the kind of sensitive data found.
type Category string

// Supported categories. The set is closed.
const (
	CategoryEmail    Category = "email"
	CategoryIPv4     Category = "ipv4"
	CategoryIPv6     Category = "ipv6"
	CategoryCard     Category = "card"
	CategoryIBAN     Category = "iban"
	CategoryName     Category = "name"
	CategoryLocation Category = "location"
)

// processingOrder is the fixed order in which categories rewrite a buffer.
var processingOrder = []Category{
	CategoryEmail,
	CategoryIPv4,
	CategoryCard,
	CategoryIPv6,
	CategoryIBAN,
	CategoryName,
	CategoryLocation,
}

// Categories returns every category in processing order.
func Categories() []Category {
	out := make([]Category, len(processingOrder))
	copy(out, processingOrder)
	return out
}

// ParseCategory maps a case-insensitive, trimmed name to a Category.
func ParseCategory(name string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range processingOrder {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// PseudonymLength returns the number of hex characters used for the category.
func (c Category) PseudonymLength() int {
	switch c {
	case CategoryEmail:
		return 6
	case CategoryIPv4:
		return 8
	default:
		return 12
	}
}

// Prefix returns the "<category>-" marker that starts every replacement token.
func (c Category) Prefix() string {
	return string(c) + "-"
}

// usesEntities reports whether the category is fed by the entity annotator.
func (c Category) usesEntities() bool {
	return c == CategoryName || c == CategoryLocation
}

// CategorySet is an immutable set of enabled categories.
type CategorySet struct {
	enabled map[Category]bool
}

// NewCategorySet builds a set from the given categories.
func NewCategorySet(categories ...Category) CategorySet {
	set := CategorySet{enabled: make(map[Category]bool, len(categories))}
	for _, c := range categories {
		set.enabled[c] = true
	}
	return set
}

// AllCategories returns a set with every category enabled.
func AllCategories() CategorySet {
	return NewCategorySet(processingOrder...)
}

// Has reports whether c is enabled.
func (s CategorySet) Has(c Category) bool {
	return s.enabled[c]
}

// Len returns the number of enabled categories.
func (s CategorySet) Len() int {
	return len(s.enabled)
}

// List returns the enabled categories in processing order.
func (s CategorySet) List() []Category {
	out := make([]Category, 0, len(s.enabled))
	for _, c := range processingOrder {
		if s.enabled[c] {
			out = append(out, c)
		}
	}
	return out
}

// Strings returns the enabled category names in processing order.
func (s CategorySet) Strings() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = string(c)
	}
	return out
}

func (s CategorySet) String() string {
	return strings.Join(s.Strings(), ",")
}

// needsEntities reports whether any enabled category consumes annotator output.
func (s CategorySet) needsEntities() bool {
	return s.enabled[CategoryName] || s.enabled[CategoryLocation]
}
