package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper queries Google through the serper.dev API.
type Serper struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Client     *http.Client
}

func NewSerper(apiKey string, maxResults int) *Serper {
	return &Serper{
		APIKey:     apiKey,
		Endpoint:   serperEndpoint,
		MaxResults: maxResults,
	}
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string) (autosearch.ResultBatch, error) {
	if s.APIKey == "" {
		return nil, providerError("serper", errors.New("SERPER_API_KEY is not set"))
	}
	limit := maxResults(s.MaxResults)

	payload, err := json.Marshal(serperRequest{Q: query, Num: limit})
	if err != nil {
		return nil, providerError("serper", err)
	}

	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = serperEndpoint
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, providerError("serper", err)
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := do(ctx, s.Client, "serper", req)
	if err != nil {
		return nil, err
	}

	var resp serperResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providerError("serper", fmt.Errorf("failed to decode response: %w", err))
	}

	batch := make(autosearch.ResultBatch, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		if r.Link == "" {
			continue
		}
		batch = append(batch, autosearch.SearchResult{
			Title:   clean(r.Title),
			Link:    r.Link,
			Snippet: clean(r.Snippet),
		})
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}
