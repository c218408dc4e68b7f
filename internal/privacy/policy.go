package privacy

import "strings"

// AllSentinel enables every category.
const AllSentinel = "all"

// ResolveCategories turns a user supplied selection ("all" or a comma
// separated list of names) into the set of enabled categories. Names are
// trimmed and case-insensitive. An empty selection means "all". Unknown
// names are never ignored: they are all reported in one InvalidOptionError.
func ResolveCategories(requested string) (CategorySet, error) {
	return ResolveCategoryList(strings.Split(requested, ","))
}

// ResolveCategoryList is ResolveCategories for pre-split input such as a
// configuration list. Items may themselves contain commas.
func ResolveCategoryList(requested []string) (CategorySet, error) {
	var (
		names   []string
		unknown []string
		all     bool
	)

	for _, item := range requested {
		for _, part := range strings.Split(item, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if strings.EqualFold(name, AllSentinel) {
				all = true
				continue
			}
			names = append(names, name)
		}
	}

	enabled := make([]Category, 0, len(names))
	for _, name := range names {
		c, ok := ParseCategory(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		enabled = append(enabled, c)
	}

	if len(unknown) > 0 {
		return CategorySet{}, &InvalidOptionError{Names: unknown}
	}

	if all || len(enabled) == 0 {
		return AllCategories(), nil
	}
	return NewCategorySet(enabled...), nil
}
