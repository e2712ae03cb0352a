package autosearch

import "strings"

const (
	scholarlyScope = "site:arxiv.org | site:nature.com | site:.org | site:.edu | site:.gov | inurl:doi"
	technicalScope = "site:github.com | site:stackoverflow.com | site:medium.com | site:kaggle.com | site:towardsdatascience.com | site:paperswithcode.com | site:huggingface.co"
)

// InitialQuery appends the category's site-scope operators to the raw query.
func InitialQuery(query string, category Category) string {
	switch category {
	case ResearchPaper:
		return query + " " + scholarlyScope
	case TechnicalExample:
		return query + " " + technicalScope
	default:
		return query
	}
}

// FollowUpQuery scopes a follow-up query. Only research paper sessions are re-scoped.
func FollowUpQuery(query string, category Category) string {
	if category == ResearchPaper {
		return query + " " + scholarlyScope
	}
	return query
}

// normalizeQueries trims, drops blanks and case-insensitive duplicates, and caps the list at max.
func normalizeQueries(queries []string, max int) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
