// Package search contains the web search backends used by autosearch sessions.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

// DefaultMaxResults is the number of results a provider returns per query.
const DefaultMaxResults = 10

const userAgent = "autosearch/1.0 (+https://github.com/mikeboe/autosearch)"

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// StatusError is returned when a backend answers with a non-200 status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

func providerError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", autosearch.ErrProvider, provider, err)
}

// do sends req and returns the body of a 200 response.
func do(ctx context.Context, client *http.Client, provider string, req *http.Request) ([]byte, error) {
	if client == nil {
		client = defaultHTTPClient
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, providerError(provider, fmt.Errorf("failed to make API request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerError(provider, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providerError(provider, &StatusError{Provider: provider, Code: resp.StatusCode, Body: truncate(string(body), 512)})
	}
	return body, nil
}

func maxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return n
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// clean collapses whitespace runs, which feeds and HTML pages are full of.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
