package util

import (
	"strings"
)

// ExtractMentions extracts @username mentions from text content.
// Returns unique usernames (lowercase, without the @ symbol).
func ExtractMentions(content string) []string {
	var mentions []string
	seen := make(map[string]bool)

	for _, word := range strings.Fields(content) {
		if !strings.HasPrefix(word, "@") || len(word) < 2 {
			continue
		}

		username := strings.TrimPrefix(word, "@")
		username = strings.TrimRight(username, ".,!?;:")
		username = strings.ToLower(username)

		if !seen[username] && len(username) >= 3 && len(username) <= 30 {
			seen[username] = true
			mentions = append(mentions, username)
		}
	}
	return mentions
}
