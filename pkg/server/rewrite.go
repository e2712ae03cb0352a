package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikeboe/autosearch/pkg/judge"
)

// Rewriter turns user input into advanced search queries.
type Rewriter interface {
	ReformatQuery(ctx context.Context, query string, date time.Time) (string, error)
	FindSimilar(ctx context.Context, req judge.SimilarRequest) (string, error)
}

type ReformatRequest struct {
	Query string `json:"query"`
	// Date is YYYY-MM-DD. Defaults to today.
	Date string `json:"date"`
}

type FindSimilarRequest struct {
	OriginalQuery string `json:"originalQuery"`
	TextChunk     string `json:"textChunk"`
	CurrentTitle  string `json:"currentTitle"`
}

func (h *Handler) reformatQuery(c *gin.Context) {
	var req ReformatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	date := time.Now()
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
			return
		}
		date = d
	}

	advanced, err := h.Rewriter.ReformatQuery(c.Request.Context(), strings.TrimSpace(req.Query), date)
	if err != nil {
		h.logger().Error("Failed to reformat query", "query", req.Query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while processing the query"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"advancedQuery": advanced})
}

func (h *Handler) findSimilar(c *gin.Context) {
	var req FindSimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TextChunk) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "textChunk is required"})
		return
	}

	query, err := h.Rewriter.FindSimilar(c.Request.Context(), judge.SimilarRequest{
		OriginalQuery: strings.TrimSpace(req.OriginalQuery),
		TextChunk:     req.TextChunk,
		CurrentTitle:  strings.TrimSpace(req.CurrentTitle),
	})
	if err != nil {
		h.logger().Error("Failed to find similar query", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while processing the find similar request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fullResponse": query})
}
