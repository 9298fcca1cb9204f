// Package strings holds small helpers for list-valued settings.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every element and drops blanks and repeats, keeping the
// first occurrence. Comma-separated env values such as broker lists and
// terminal statuses go through it before use.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
