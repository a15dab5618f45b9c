// Package strings normalizes list-valued request parameters.
package strings

import (
	"strings"
)

// SplitList flattens comma separated values into a trimmed, lowercased list
// without duplicates or empty entries. Order of first appearance is kept.
//
// Example:
//
//	SplitList("HIGH, low", "high", "")
//	// Returns: []string{"high", "low"}
func SplitList(values ...string) []string {
	seen := make(map[string]struct{})
	var result []string

	for _, raw := range values {
		for part := range strings.SplitSeq(raw, ",") {
			v := strings.ToLower(strings.TrimSpace(part))
			if v == "" {
				continue
			}
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				result = append(result, v)
			}
		}
	}
	return result
}

// TrimSpacePtr trims an optional string and returns nil when nothing is left.
func TrimSpacePtr(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
