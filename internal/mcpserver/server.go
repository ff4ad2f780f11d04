// Package mcpserver exposes search, query history and reading progress as
// MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/progress"
	"github.com/jwulff/articube/internal/search"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// API is the subset of *agent.Client the tools call.
type API interface {
	Query(ctx context.Context, req agent.QueryRequest, saveToHistory bool) (*agent.QueryResponse, error)
	History(ctx context.Context, limit int) ([]agent.HistoryItem, error)
}

// Deps are the collaborators behind the tools.
type Deps struct {
	API           API
	Progress      *progress.Store
	SaveToHistory bool
	HistoryLimit  int
	Logger        *zap.Logger
}

type handlers struct {
	d   Deps
	log *zap.Logger
}

// New builds the MCP server with all tools registered.
func New(d Deps, version string) *server.MCPServer {
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = search.DefaultHistoryLimit
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{d: d, log: log.Named("mcp")}

	s := server.NewMCPServer("articube", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Ask the ArtiCube knowledge agent a question. Returns the answer followed by its sources."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to ask")),
	), h.search)

	s.AddTool(mcp.NewTool("query_history",
		mcp.WithDescription("List the user's recent searches, newest first, as JSON."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (1-50)")),
	), h.history)

	s.AddTool(mcp.NewTool("reading_progress",
		mcp.WithDescription("Show locally saved reading progress as JSON: one item when content_id is given, otherwise the most recently read items."),
		mcp.WithString("content_id", mcp.Description("Content item to look up")),
		mcp.WithNumber("limit", mcp.Description("Maximum items when listing")),
	), h.readingProgress)

	return s
}

// Serve runs s over stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError(search.ErrEmptyQuery.Error()), nil
	}

	resp, err := h.d.API.Query(ctx, agent.QueryRequest{Query: query}, h.d.SaveToHistory)
	if err != nil {
		h.log.Warn("search tool failed", zap.String("query", query), zap.Error(err))
		return mcp.NewToolResultError(agent.AsDisplay(err, agent.QueryFailedMessage).Message), nil
	}

	var b strings.Builder
	b.WriteString(resp.Response)
	if len(resp.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, s := range resp.Sources {
			fmt.Fprintf(&b, "- %s", s.Title)
			if s.Link != "" {
				fmt.Fprintf(&b, " (%s)", s.Link)
			}
			b.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (h *handlers) history(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", h.d.HistoryLimit)
	items, err := h.d.API.History(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(agent.AsDisplay(err, agent.HistoryFailedMessage).Message), nil
	}
	if items == nil {
		items = []agent.HistoryItem{}
	}
	return jsonResult(items)
}

func (h *handlers) readingProgress(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("content_id", ""); id != "" {
		rec := h.d.Progress.Get(id)
		if rec == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no reading progress for %q", id)), nil
		}
		return jsonResult(rec)
	}
	items := h.d.Progress.GetRecent(req.GetInt("limit", progress.DefaultRecentLimit))
	if items == nil {
		items = []progress.ReadingProgress{}
	}
	return jsonResult(items)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
