package cli

import "strings"

// parseNameList splits repeated or comma-separated names, dropping blanks and duplicates
// while keeping the first-seen order.
func parseNameList(values []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
