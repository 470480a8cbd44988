package notetools

import (
	"context"
	"fmt"

	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── SearchTool ─────────────────────────────────────────────────────────────

// SearchTool handles the note_search MCP tool.
type SearchTool struct {
	nodes *nodes.Repository
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(repo *nodes.Repository) *SearchTool {
	return &SearchTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("note_search",
		mcp.WithDescription("Full-text search over block content, best match first."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words to search for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 50)"),
		),
	)
}

// Handle processes the note_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	results, err := t.nodes.Search(ctx, query, intArg(req, "limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(nodeList(fmt.Sprintf("Results for %q", query), results)), nil
}

// ─── ByTagTool ──────────────────────────────────────────────────────────────

// ByTagTool handles the note_by_tag MCP tool.
type ByTagTool struct {
	nodes *nodes.Repository
}

// NewByTagTool creates a ByTagTool.
func NewByTagTool(repo *nodes.Repository) *ByTagTool {
	return &ByTagTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_by_tag.
func (t *ByTagTool) Definition() mcp.Tool {
	return mcp.NewTool("note_by_tag",
		mcp.WithDescription("List blocks carrying a tag, oldest first."),
		mcp.WithString("tag",
			mcp.Required(),
			mcp.Description("Exact tag, e.g. #todo"),
		),
	)
}

// Handle processes the note_by_tag tool call.
func (t *ByTagTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := req.GetString("tag", "")
	if tag == "" {
		return mcp.NewToolResultError("'tag' is required"), nil
	}
	results, err := t.nodes.FindByTag(ctx, tag)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tag lookup failed: %v", err)), nil
	}
	return mcp.NewToolResultText(nodeList("Blocks tagged "+tag, results)), nil
}

// ─── RecentTool ─────────────────────────────────────────────────────────────

// RecentTool handles the note_recent MCP tool.
type RecentTool struct {
	nodes *nodes.Repository
}

// NewRecentTool creates a RecentTool.
func NewRecentTool(repo *nodes.Repository) *RecentTool {
	return &RecentTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_recent.
func (t *RecentTool) Definition() mcp.Tool {
	return mcp.NewTool("note_recent",
		mcp.WithDescription("List the most recently changed blocks."),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
	)
}

// Handle processes the note_recent tool call.
func (t *RecentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := t.nodes.Recent(ctx, intArg(req, "limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list recent blocks: %v", err)), nil
	}
	return mcp.NewToolResultText(nodeList("Recently changed", results)), nil
}
