package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPaths resolves file arguments and glob patterns into an ordered,
// de-duplicated list of files. A pattern that matches nothing is an error;
// a plain path is kept even if it does not exist so that it is reported as
// a failed document.
func ExpandPaths(args []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	add := func(p string) {
		clean := filepath.Clean(p)
		if seen[clean] {
			return
		}
		seen[clean] = true
		paths = append(paths, clean)
	}

	for _, arg := range args {
		if !hasMeta(arg) {
			add(arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no files", arg)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				continue
			}
			add(m)
		}
	}

	return paths, nil
}

// OutputPath returns the path a protected copy of path is written to.
func OutputPath(path, suffix string) string {
	return path + suffix
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, `*?[`)
}
