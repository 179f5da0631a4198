package util

import (
	"strings"
)

// ExtractHashtags returns the unique #tags in content, lowercased and without the #
func ExtractHashtags(content string) []string {
	var tags []string
	seen := make(map[string]bool)

	for _, word := range strings.Fields(content) {
		if !strings.HasPrefix(word, "#") || len(word) < 2 {
			continue
		}
		tag := strings.ToLower(strings.TrimRight(strings.TrimPrefix(word, "#"), ".,!?;:"))
		if !seen[tag] && len(tag) >= 2 && len(tag) <= 40 {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}
