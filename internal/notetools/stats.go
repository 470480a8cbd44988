package notetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChienNQuang/Note/internal/export"
	"github.com/ChienNQuang/Note/internal/stats"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsTool handles the note_stats MCP tool.
type StatsTool struct {
	stats *stats.Service
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(s *stats.Service) *StatsTool {
	return &StatsTool{stats: s}
}

// Definition returns the MCP tool definition for note_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("note_stats",
		mcp.WithDescription(
			"Show statistics: block, root and link counts, tree depth, and the most linked blocks. "+
				"Pass an id for the numbers of one block instead.",
		),
		mcp.WithString("id",
			mcp.Description("Block ID (optional)"),
		),
	)
}

// Handle processes the note_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("id", ""); id != "" {
		ns, err := t.stats.Node(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "## Block %s\n\n", ns.NodeID)
		fmt.Fprintf(&sb, "- **Depth**: %d\n", ns.Depth)
		fmt.Fprintf(&sb, "- **Children**: %d\n", ns.DirectChildren)
		fmt.Fprintf(&sb, "- **Descendants**: %d\n", ns.DescendantCount)
		fmt.Fprintf(&sb, "- **Backlinks**: %d\n", ns.Backlinks)
		fmt.Fprintf(&sb, "- **Outgoing links**: %d\n", ns.OutgoingLinks)
		return mcp.NewToolResultText(sb.String()), nil
	}

	d, err := t.stats.Database(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}
	top, err := t.stats.TopLinked(ctx, 10)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Note Statistics\n\n")
	fmt.Fprintf(&sb, "- **Blocks**: %d (%d roots, %d leaves)\n", d.TotalNodes, d.RootNodes, d.LeafNodes)
	fmt.Fprintf(&sb, "- **Links**: %d\n", d.TotalLinks)
	fmt.Fprintf(&sb, "- **Depth**: max %d, average %.2f\n", d.MaxDepth, d.AvgDepth)
	fmt.Fprintf(&sb, "- **Journal pages**: %d\n", d.JournalNodes)
	fmt.Fprintf(&sb, "- **Distinct tags**: %d\n", d.DistinctTags)
	if len(top) > 0 {
		sb.WriteString("\n### Most linked\n\n")
		for _, lc := range top {
			fmt.Fprintf(&sb, "- `%s`: %d\n", lc.NodeID, lc.References)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ─── ExportTool ─────────────────────────────────────────────────────────────

// ExportTool handles the note_export MCP tool.
type ExportTool struct {
	exp *export.Exporter
}

// NewExportTool creates an ExportTool.
func NewExportTool(exp *export.Exporter) *ExportTool {
	return &ExportTool{exp: exp}
}

// Definition returns the MCP tool definition for note_export.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("note_export",
		mcp.WithDescription("Export notes as a Markdown outline or a JSON dump."),
		mcp.WithString("format",
			mcp.Description("markdown (default) or json"),
			mcp.Enum("markdown", "json"),
		),
		mcp.WithString("id",
			mcp.Description("Export only this block and its subtree (markdown only)"),
		),
	)
}

// Handle processes the note_export tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	switch format := req.GetString("format", "markdown"); format {
	case "markdown":
		var (
			md  string
			err error
		)
		if id != "" {
			md, err = t.exp.MarkdownNode(ctx, id)
		} else {
			md, err = t.exp.Markdown(ctx)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return mcp.NewToolResultText(md), nil
	case "json":
		if id != "" {
			return mcp.NewToolResultError("'id' is only supported with format=markdown"), nil
		}
		doc, err := t.exp.Export(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return jsonResult(doc), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
	}
}
