package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sessionValid reports whether id names a live session. Expired sessions are dropped.
func (h *Handler) sessionValid(id string, now time.Time) bool {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	session, ok := h.mcpSessions[id]
	if !ok {
		return false
	}
	if h.expired(session, now) {
		delete(h.mcpSessions, id)
		return false
	}
	return true
}

// sweepSessions removes expired sessions. Callers hold sessionMu.
func (h *Handler) sweepSessions(now time.Time) {
	for id, session := range h.mcpSessions {
		if h.expired(session, now) {
			delete(h.mcpSessions, id)
		}
	}
}

func (h *Handler) expired(session *MCPSession, now time.Time) bool {
	if h.MCPSessionTTL <= 0 {
		return false
	}
	return now.Sub(time.Unix(session.Created, 0)) > h.MCPSessionTTL
}

// MCPDeleteSession terminates the session named by the Mcp-Session-Id header.
func (h *Handler) MCPDeleteSession(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			Error: &MCPError{
				Code:    -32000,
				Message: "Bad Request: No valid session ID provided",
			},
		})
		return
	}

	h.sessionMu.Lock()
	_, exists := h.mcpSessions[sessionID]
	delete(h.mcpSessions, sessionID)
	h.sessionMu.Unlock()

	if !exists {
		c.JSON(http.StatusNotFound, MCPResponse{
			JSONRPC: "2.0",
			Error: &MCPError{
				Code:    -32000,
				Message: "Invalid session ID",
			},
		})
		return
	}
	h.logger().Info("MCP session terminated", "mcp_session_id", sessionID)
	c.Status(http.StatusNoContent)
}

// AutoSearchArgs are the arguments of the auto_search tool.
type AutoSearchArgs struct {
	Query string `json:"query"`
}

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")

	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &MCPError{
				Code:    -32700,
				Message: "Parse error",
			},
		})
		return
	}

	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = uuid.New().String()
			h.sessionMu.Lock()
			h.sweepSessions(time.Now())
			h.mcpSessions[sessionID] = &MCPSession{
				ID:      sessionID,
				Created: time.Now().Unix(),
			}
			h.sessionMu.Unlock()
		}
		c.Header("Mcp-Session-Id", sessionID)

		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"serverInfo": map[string]interface{}{
					"name":    "autosearch-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
			},
		})
		return
	}

	// Notifications carry no id and expect no body.
	if strings.HasPrefix(req.Method, "notifications/") {
		c.Status(http.StatusAccepted)
		return
	}

	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Bad Request: No valid session ID provided",
			},
		})
		return
	}

	if !h.sessionValid(sessionID, time.Now()) {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Invalid session ID",
			},
		})
		return
	}

	switch req.Method {
	case "tools/list":
		h.handleToolsList(c, req)
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		})
	default:
		h.sendError(c, req.ID, -32601, "Method not found")
	}
}

func (h *Handler) handleToolsList(c *gin.Context, req MCPRequest) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": []map[string]interface{}{
				{
					"name":        "auto_search",
					"description": "Search the web for a query, let an LLM pick the most relevant results and refine the search with follow-up queries. Returns the deduplicated relevant results.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"query": map[string]interface{}{
								"type":        "string",
								"description": "The search query.",
							},
						},
						"required": []string{"query"},
					},
				},
			},
		},
	})
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, -32602, "Invalid params")
		return
	}

	switch params.Name {
	case "auto_search":
		var args AutoSearchArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || strings.TrimSpace(args.Query) == "" {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		report, err := h.Service.Search(c.Request.Context(), args.Query)
		if err != nil {
			h.logger().Error("auto_search tool failed", "query", args.Query, "error", err)
			if errors.Is(err, autosearch.ErrSession) {
				h.sendError(c, req.ID, -32603, "An error occurred during search")
				return
			}
			h.sendError(c, req.ID, -32603, err.Error())
			return
		}
		h.sendResult(c, req.ID, formatReport(args.Query, report))

	default:
		h.sendError(c, req.ID, -32601, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

func (h *Handler) sendError(c *gin.Context, id interface{}, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: msg,
		},
	})
}

func (h *Handler) sendResult(c *gin.Context, id interface{}, text string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	})
}

func formatReport(query string, report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Search results for: %s\n", query)
	fmt.Fprintf(&b, "Category: %s\n", report.Result.Category)
	fmt.Fprintf(&b, "Rounds: %d\n\n", report.Result.Rounds)
	if report.Reasoning != "" {
		fmt.Fprintf(&b, "## Evaluation\n%s\n\n", report.Reasoning)
	}
	if len(report.FollowUps) > 0 {
		fmt.Fprintf(&b, "## Follow-up queries\n- %s\n\n", strings.Join(report.FollowUps, "\n- "))
	}

	if len(report.Result.Results) == 0 {
		b.WriteString("No relevant results found.\n")
		return b.String()
	}
	b.WriteString("## Results\n")
	for i, r := range report.Result.Results {
		fmt.Fprintf(&b, "ID: %d\nTitle: %s\nLink: %s\nSnippet: %s\n\n", i+1, r.Title, r.Link, r.Snippet)
	}
	return b.String()
}
