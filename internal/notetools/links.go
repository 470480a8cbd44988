package notetools

import (
	"context"
	"fmt"

	"github.com/ChienNQuang/Note/internal/links"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── ResyncTool ─────────────────────────────────────────────────────────────

// ResyncTool handles the link_resync MCP tool.
type ResyncTool struct {
	nodes *nodes.Repository
	links *links.Index
}

// NewResyncTool creates a ResyncTool.
func NewResyncTool(repo *nodes.Repository, ix *links.Index) *ResyncTool {
	return &ResyncTool{nodes: repo, links: ix}
}

// Definition returns the MCP tool definition for link_resync.
func (t *ResyncTool) Definition() mcp.Tool {
	return mcp.NewTool("link_resync",
		mcp.WithDescription(
			"Re-index the [[links]] of a block from its current content. "+
				"Links to blocks created after the last save only appear once the referring block is re-indexed.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Block ID"),
		),
	)
}

// Handle processes the link_resync tool call.
func (t *ResyncTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	n, err := t.nodes.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get block: %v", err)), nil
	}
	if err := t.links.Resynchronize(ctx, n); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to re-index links: %v", err)), nil
	}
	out, err := t.links.Outgoing(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list links: %v", err)), nil
	}
	refs := links.ExtractReferences(n.Content)
	return mcp.NewToolResultText(fmt.Sprintf("Links re-indexed: %d of %d references resolved\n\n%s",
		len(out), len(refs), nodeList("Outgoing", out))), nil
}

// ─── BacklinksTool ──────────────────────────────────────────────────────────

// BacklinksTool handles the link_backlinks MCP tool.
type BacklinksTool struct {
	links *links.Index
}

// NewBacklinksTool creates a BacklinksTool.
func NewBacklinksTool(ix *links.Index) *BacklinksTool {
	return &BacklinksTool{links: ix}
}

// Definition returns the MCP tool definition for link_backlinks.
func (t *BacklinksTool) Definition() mcp.Tool {
	return mcp.NewTool("link_backlinks",
		mcp.WithDescription("List the blocks that link to a block."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Target block ID"),
		),
	)
}

// Handle processes the link_backlinks tool call.
func (t *BacklinksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	back, err := t.links.Backlinks(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list backlinks: %v", err)), nil
	}
	return mcp.NewToolResultText(nodeList("Backlinks", back)), nil
}

// ─── OutgoingTool ───────────────────────────────────────────────────────────

// OutgoingTool handles the link_outgoing MCP tool.
type OutgoingTool struct {
	links *links.Index
}

// NewOutgoingTool creates an OutgoingTool.
func NewOutgoingTool(ix *links.Index) *OutgoingTool {
	return &OutgoingTool{links: ix}
}

// Definition returns the MCP tool definition for link_outgoing.
func (t *OutgoingTool) Definition() mcp.Tool {
	return mcp.NewTool("link_outgoing",
		mcp.WithDescription("List the blocks a block links to, as of its last save."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Source block ID"),
		),
	)
}

// Handle processes the link_outgoing tool call.
func (t *OutgoingTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	out, err := t.links.Outgoing(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list outgoing links: %v", err)), nil
	}
	return mcp.NewToolResultText(nodeList("Outgoing", out)), nil
}

// ─── UnlinkedTool ───────────────────────────────────────────────────────────

// UnlinkedTool handles the link_unlinked MCP tool.
type UnlinkedTool struct {
	nodes *nodes.Repository
	links *links.Index
}

// NewUnlinkedTool creates an UnlinkedTool.
func NewUnlinkedTool(repo *nodes.Repository, ix *links.Index) *UnlinkedTool {
	return &UnlinkedTool{nodes: repo, links: ix}
}

// Definition returns the MCP tool definition for link_unlinked.
func (t *UnlinkedTool) Definition() mcp.Tool {
	return mcp.NewTool("link_unlinked",
		mcp.WithDescription(
			"Find blocks whose text mentions a phrase without a [[link]]. "+
				"Useful for spotting references worth turning into links.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Block ID the mentions would point at"),
		),
		mcp.WithString("text",
			mcp.Description("Phrase to look for (default: the block's own content)"),
		),
	)
}

// Handle processes the link_unlinked tool call.
func (t *UnlinkedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	probe := req.GetString("text", "")
	if probe == "" {
		n, err := t.nodes.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get block: %v", err)), nil
		}
		probe = n.Content
	}
	found, err := t.links.UnlinkedMentions(ctx, id, probe)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to find mentions: %v", err)), nil
	}
	return mcp.NewToolResultText(nodeList(fmt.Sprintf("Mentions of %q", probe), found)), nil
}
