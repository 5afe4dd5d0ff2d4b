package utils

import (
	"fmt"
	"strings"
)

// MaxCategoryLen mirrors the relevance entry column size.
const MaxCategoryLen = 24

// ParseCategories normalizes a comma separated category string: entries are
// trimmed, lowercased and deduplicated, empties are dropped. Returns an
// error when any entry exceeds the length limit.
func ParseCategories(raw string) ([]string, error) {
	out := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if len(name) > MaxCategoryLen {
			return nil, fmt.Errorf("category %q exceeds %d characters", name, MaxCategoryLen)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

// NormalizeCategory prepares a single category name for lookup.
func NormalizeCategory(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
