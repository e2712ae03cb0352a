package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

// The lite page is more stable for scraping than the JavaScript-driven one.
const duckDuckGoEndpoint = "https://lite.duckduckgo.com/lite/"

// DuckDuckGo scrapes the DuckDuckGo lite results page. It needs no API key.
type DuckDuckGo struct {
	Endpoint   string
	MaxResults int
	Client     *http.Client
}

func NewDuckDuckGo(maxResults int) *DuckDuckGo {
	return &DuckDuckGo{
		Endpoint:   duckDuckGoEndpoint,
		MaxResults: maxResults,
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) (autosearch.ResultBatch, error) {
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}
	form := url.Values{"q": {query}}
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, providerError("duckduckgo", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := do(ctx, d.Client, "duckduckgo", req)
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGo(body, maxResults(d.MaxResults))
}

func parseDuckDuckGo(body []byte, limit int) (autosearch.ResultBatch, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, providerError("duckduckgo", fmt.Errorf("failed to parse HTML: %w", err))
	}

	batch := autosearch.ResultBatch{}
	doc.Find("a.result-link").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		row := a.Closest("tr")
		if row.HasClass("result-sponsored") {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		link := resolveDuckDuckGoLink(href)
		if link == "" {
			return true
		}
		// The snippet sits in the row after the link.
		snippet := row.NextAllFiltered("tr").First().Find("td.result-snippet").Text()
		batch = append(batch, autosearch.SearchResult{
			Title:   clean(a.Text()),
			Link:    link,
			Snippet: clean(snippet),
		})
		return len(batch) < limit
	})
	return batch, nil
}

// resolveDuckDuckGoLink unwraps the /l/?uddg= redirect DuckDuckGo puts around result links.
func resolveDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasSuffix(u.Path, "/l/") {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	// Internal and ad redirect links
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		return ""
	}
	return u.String()
}
