package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/autosearch/pkg/stream"
)

const DefaultMCPSessionTTL = 24 * time.Hour

type Handler struct {
	Service *Service
	// Rewriter serves /api/reformat-query and /api/find-similar. The routes are
	// not registered when it is nil.
	Rewriter Rewriter
	// Metrics serves /metrics. Defaults to the global Prometheus registry.
	Metrics http.Handler
	// MCPSessionTTL is how long an MCP session stays valid after initialize.
	// Zero keeps sessions until they are deleted.
	MCPSessionTTL time.Duration

	sessionMu   sync.Mutex
	mcpSessions map[string]*MCPSession
}

func NewHandler(s *Service) *Handler {
	return &Handler{
		Service:       s,
		Metrics:       promhttp.Handler(),
		MCPSessionTTL: DefaultMCPSessionTTL,
		mcpSessions:   make(map[string]*MCPSession),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/mcp", h.MCPHandler)
	r.DELETE("/mcp", h.MCPDeleteSession)
	r.GET("/healthz", h.healthz)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := r.Group("/api")
	{
		api.GET("/auto-search", h.autoSearch)
		if h.Rewriter != nil {
			api.POST("/reformat-query", h.reformatQuery)
			api.POST("/find-similar", h.findSimilar)
		}
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// autoSearch streams a session as Server-Sent Events.
func (h *Handler) autoSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sink := stream.NewSSEWriter(c.Writer)
	result, err := h.Service.Stream(c.Request.Context(), query, sink)
	if err != nil {
		// The client already received the error event.
		h.logger().Warn("Auto-search stream ended with error", "query", query, "error", err)
		return
	}
	h.logger().Info("Auto-search stream complete", "session_id", result.SessionID.String(), "results", len(result.Results))
}

func (h *Handler) logger() *slog.Logger {
	if h.Service != nil && h.Service.Logger != nil {
		return h.Service.Logger
	}
	return slog.Default()
}
