package autosearch

import "strings"

// Identifier returns the dedup key of a result: lowercase title and link joined by "|".
func Identifier(r SearchResult) string {
	return strings.ToLower(r.Title) + "|" + strings.ToLower(r.Link)
}

// Dedup returns the results of batch whose identifier is not in seen, in order,
// and records every returned identifier in seen.
func Dedup(batch []SearchResult, seen map[string]struct{}) []SearchResult {
	unique := make([]SearchResult, 0, len(batch))
	for _, r := range batch {
		id := Identifier(r)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}
