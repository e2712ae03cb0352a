package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// ArxivEntry holds one entry of the arXiv Atom feed.
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches the arXiv export API. Web search operators such as
// site: and inurl: are stripped before the query is sent.
type Arxiv struct {
	Endpoint   string
	MaxResults int
	Client     *http.Client
	Logger     *slog.Logger
}

func NewArxiv(maxResults int) *Arxiv {
	return &Arxiv{
		Endpoint:   arxivEndpoint,
		MaxResults: maxResults,
		Logger:     slog.Default(),
	}
}

func (a *Arxiv) Search(ctx context.Context, query string) (autosearch.ResultBatch, error) {
	terms := arxivTerms(query)
	if terms == "" {
		return autosearch.ResultBatch{}, nil
	}
	limit := maxResults(a.MaxResults)

	endpoint := a.Endpoint
	if endpoint == "" {
		endpoint = arxivEndpoint
	}
	params := url.Values{}
	params.Add("search_query", "all:"+terms)
	params.Add("max_results", strconv.Itoa(limit))
	params.Add("start", "0")
	apiURL := endpoint + "?" + params.Encode()

	req, err := http.NewRequest(http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, providerError("arxiv", err)
	}
	body, err := do(ctx, a.Client, "arxiv", req)
	if err != nil {
		return nil, err
	}
	if a.Logger != nil {
		a.Logger.Debug("arXiv response received", "url", apiURL, "size", len(body))
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, providerError("arxiv", fmt.Errorf("failed to unmarshal XML: %w", err))
	}

	batch := make(autosearch.ResultBatch, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		link := entry.link()
		if link == "" {
			continue
		}
		batch = append(batch, autosearch.SearchResult{
			Title:   clean(entry.Title),
			Link:    link,
			Snippet: truncate(clean(entry.Summary), 400),
		})
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}

// link prefers the PDF, then the abstract page, then the entry id.
func (e ArxivEntry) link() string {
	var abs string
	for _, l := range e.Link {
		if l.Type == "application/pdf" {
			return l.Href
		}
		if l.Rel == "alternate" && abs == "" {
			abs = l.Href
		}
	}
	if abs != "" {
		return abs
	}
	return strings.TrimSpace(e.ID)
}

// arxivTerms drops web search operators and joins the remaining words with AND.
func arxivTerms(query string) string {
	var words []string
	for _, f := range strings.Fields(query) {
		lower := strings.ToLower(f)
		if f == "|" || lower == "or" || strings.HasPrefix(lower, "site:") || strings.HasPrefix(lower, "inurl:") {
			continue
		}
		words = append(words, f)
	}
	return strings.Join(words, " AND ")
}
