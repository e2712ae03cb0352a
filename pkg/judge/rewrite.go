package judge

import (
	"errors"
	"fmt"
	"strings"
)

// rewriteTemperature leaves the model a little room when wording a query.
const rewriteTemperature = 0.2

// ErrRewrite means the model did not produce a usable search query.
var ErrRewrite = errors.New("query rewrite failed")

// SimilarRequest asks for a query that finds pages like TextChunk.
// OriginalQuery, when set, supplies operators that must survive the rewrite.
// CurrentTitle, when set, is excluded from the results.
type SimilarRequest struct {
	OriginalQuery string
	TextChunk     string
	CurrentTitle  string
}

// scopeOperators are the operators a find-similar rewrite must carry over.
var scopeOperators = []string{"site:", "inurl:", "after:"}

// parseRewrite decodes a rewrite response and returns its single-line query.
func parseRewrite(content string) (string, error) {
	var resp struct {
		Query *string `json:"query"`
	}
	if err := decodeJSON(content, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRewrite, err)
	}
	if resp.Query == nil {
		return "", fmt.Errorf("%w: missing query", ErrRewrite)
	}
	q := strings.Trim(strings.TrimSpace(*resp.Query), "`")
	q = strings.Join(strings.Fields(q), " ")
	if q == "" {
		return "", fmt.Errorf("%w: empty query", ErrRewrite)
	}
	return q, nil
}

// keepsOperators checks that every scope operator term of original appears in query.
func keepsOperators(original, query string) error {
	lower := strings.ToLower(query)
	for _, term := range strings.Fields(original) {
		t := strings.ToLower(term)
		for _, op := range scopeOperators {
			if strings.HasPrefix(t, op) && !strings.Contains(lower, t) {
				return fmt.Errorf("%w: operator %q was dropped", ErrRewrite, term)
			}
		}
	}
	return nil
}

// parseSimilar validates a find-similar response and applies the title exclusion.
func parseSimilar(content string, req SimilarRequest) (string, error) {
	q, err := parseRewrite(content)
	if err != nil {
		return "", err
	}
	if err := keepsOperators(req.OriginalQuery, q); err != nil {
		return "", err
	}
	return excludeTitle(q, req.CurrentTitle), nil
}

// excludeTitle appends an -intitle: operator so the page the chunk came from is skipped.
func excludeTitle(query, title string) string {
	title = strings.Join(strings.Fields(strings.ReplaceAll(title, `"`, "")), " ")
	if title == "" {
		return query
	}
	return fmt.Sprintf(`%s -intitle:"%s"`, query, title)
}
