package notetools

import (
	"context"
	"fmt"

	"github.com/ChienNQuang/Note/internal/ids"
	"github.com/ChienNQuang/Note/internal/links"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── CreateTool ─────────────────────────────────────────────────────────────

// CreateTool handles the note_create MCP tool.
type CreateTool struct {
	nodes *nodes.Repository
	links *links.Index
}

// NewCreateTool creates a CreateTool.
func NewCreateTool(repo *nodes.Repository, ix *links.Index) *CreateTool {
	return &CreateTool{nodes: repo, links: ix}
}

// Definition returns the MCP tool definition for note_create.
func (t *CreateTool) Definition() mcp.Tool {
	return mcp.NewTool("note_create",
		mcp.WithDescription(
			"Create a note block. Text between [[double brackets]] links to the block whose content matches it; "+
				"links are indexed as soon as the block is saved.",
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Block text (max 10000 characters)"),
		),
		mcp.WithString("parent_id",
			mcp.Description("Parent block ID. Omit to create a root block"),
		),
		mcp.WithNumber("order",
			mcp.Description("Position among siblings (default: 0)"),
		),
		mcp.WithArray("tags",
			mcp.WithStringItems(),
			mcp.Description("Tags, e.g. [\"#work\", \"#todo\"]"),
		),
		mcp.WithObject("properties",
			mcp.Description("Arbitrary key/value properties"),
		),
		mcp.WithString("kind",
			mcp.Description("ID prefix: block, page, or empty for none"),
			mcp.Enum("", "block", "page"),
		),
	)
}

// Handle processes the note_create tool call.
func (t *CreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !hasArg(req, "content") {
		return mcp.NewToolResultError("'content' is required"), nil
	}
	props, err := objectArg(req, "properties")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	kind := ids.Kind(req.GetString("kind", ""))
	if kind != ids.KindNone && kind != ids.KindBlock && kind != ids.KindPage {
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q", kind)), nil
	}

	p := nodes.CreateParams{
		Content:    req.GetString("content", ""),
		Tags:       stringsArg(req, "tags"),
		Properties: props,
		Kind:       kind,
	}
	if parent := req.GetString("parent_id", ""); parent != "" {
		p.ParentID = &parent
	}
	if hasArg(req, "order") {
		order := intArg(req, "order", 0)
		p.Order = &order
	}

	n, err := t.nodes.Create(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create block: %v", err)), nil
	}
	if err := t.links.Resynchronize(ctx, n); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("block %s created but link indexing failed: %v", n.ID, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Block created\nID: %s", n.ID)), nil
}

// ─── GetTool ────────────────────────────────────────────────────────────────

// GetTool handles the note_get MCP tool.
type GetTool struct {
	nodes *nodes.Repository
}

// NewGetTool creates a GetTool.
func NewGetTool(repo *nodes.Repository) *GetTool {
	return &GetTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_get.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("note_get",
		mcp.WithDescription("Get one block with all its fields and the IDs of its direct children."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Block ID"),
		),
	)
}

// Handle processes the note_get tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	n, err := t.nodes.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get block: %v", err)), nil
	}
	return jsonResult(n), nil
}

// ─── TreeTool ───────────────────────────────────────────────────────────────

// TreeTool handles the note_tree MCP tool.
type TreeTool struct {
	nodes *nodes.Repository
}

// NewTreeTool creates a TreeTool.
func NewTreeTool(repo *nodes.Repository) *TreeTool {
	return &TreeTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_tree.
func (t *TreeTool) Definition() mcp.Tool {
	return mcp.NewTool("note_tree",
		mcp.WithDescription("Get a block with its whole subtree, children nested in order."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Block ID of the subtree root"),
		),
	)
}

// Handle processes the note_tree tool call.
func (t *TreeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	tree, err := t.nodes.GetWithSubtree(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get subtree: %v", err)), nil
	}
	return jsonResult(tree), nil
}

// ─── UpdateTool ─────────────────────────────────────────────────────────────

// UpdateTool handles the note_update MCP tool.
type UpdateTool struct {
	nodes *nodes.Repository
	links *links.Index
}

// NewUpdateTool creates an UpdateTool.
func NewUpdateTool(repo *nodes.Repository, ix *links.Index) *UpdateTool {
	return &UpdateTool{nodes: repo, links: ix}
}

// Definition returns the MCP tool definition for note_update.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("note_update",
		mcp.WithDescription(
			"Update a block. Only the fields you pass change. Its links are re-indexed from the new content.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Block ID"),
		),
		mcp.WithString("content",
			mcp.Description("New text"),
		),
		mcp.WithArray("tags",
			mcp.WithStringItems(),
			mcp.Description("Replacement tag list"),
		),
		mcp.WithObject("properties",
			mcp.Description("Replacement properties"),
		),
		mcp.WithString("parent_id",
			mcp.Description("New parent block ID"),
		),
		mcp.WithBoolean("make_root",
			mcp.Description("Detach the block from its parent (default: false)"),
		),
		mcp.WithNumber("order",
			mcp.Description("New position among siblings"),
		),
	)
}

// Handle processes the note_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	var p nodes.UpdateParams
	if hasArg(req, "content") {
		p.Content = nodes.Some(req.GetString("content", ""))
	}
	if hasArg(req, "tags") {
		p.Tags = nodes.Some(stringsArg(req, "tags"))
	}
	if hasArg(req, "properties") {
		props, err := objectArg(req, "properties")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.Properties = nodes.Some(props)
	}
	parent := req.GetString("parent_id", "")
	switch {
	case boolArg(req, "make_root", false) && parent != "":
		return mcp.NewToolResultError("pass either 'parent_id' or 'make_root', not both"), nil
	case boolArg(req, "make_root", false):
		p.ParentID = nodes.Some[*string](nil)
	case parent != "":
		p.ParentID = nodes.Some(&parent)
	}
	if hasArg(req, "order") {
		p.Order = nodes.Some(intArg(req, "order", 0))
	}

	n, err := t.nodes.Update(ctx, id, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update block: %v", err)), nil
	}
	if err := t.links.Resynchronize(ctx, n); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("block %s updated but link indexing failed: %v", n.ID, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Block %s updated (version %d)", n.ID, n.Version)), nil
}

// ─── DeleteTool ─────────────────────────────────────────────────────────────

// DeleteTool handles the note_delete MCP tool.
type DeleteTool struct {
	nodes *nodes.Repository
}

// NewDeleteTool creates a DeleteTool.
func NewDeleteTool(repo *nodes.Repository) *DeleteTool {
	return &DeleteTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_delete.
func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("note_delete",
		mcp.WithDescription("Delete a block, all of its descendants, and every link to or from them. Cannot be undone."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Block ID"),
		),
	)
}

// Handle processes the note_delete tool call.
func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.nodes.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete block: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Block %s deleted", id)), nil
}

// ─── MoveTool ───────────────────────────────────────────────────────────────

// MoveTool handles the note_move MCP tool.
type MoveTool struct {
	nodes *nodes.Repository
}

// NewMoveTool creates a MoveTool.
func NewMoveTool(repo *nodes.Repository) *MoveTool {
	return &MoveTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_move.
func (t *MoveTool) Definition() mcp.Tool {
	return mcp.NewTool("note_move",
		mcp.WithDescription("Move a block under a new parent, or to the top level, at the given position. "+
			"A block cannot be moved under itself or one of its descendants."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Block ID"),
		),
		mcp.WithString("parent_id",
			mcp.Description("New parent block ID. Omit to make the block a root"),
		),
		mcp.WithNumber("order",
			mcp.Description("Position among new siblings (default: 0)"),
		),
	)
}

// Handle processes the note_move tool call.
func (t *MoveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	var parent *string
	if p := req.GetString("parent_id", ""); p != "" {
		parent = &p
	}

	n, err := t.nodes.Move(ctx, id, parent, intArg(req, "order", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to move block: %v", err)), nil
	}
	where := "top level"
	if n.ParentID != nil {
		where = "under " + *n.ParentID
	}
	return mcp.NewToolResultText(fmt.Sprintf("Block %s moved to %s at position %d", n.ID, where, n.Order)), nil
}

// ─── RootsTool ──────────────────────────────────────────────────────────────

// RootsTool handles the note_roots MCP tool.
type RootsTool struct {
	nodes *nodes.Repository
}

// NewRootsTool creates a RootsTool.
func NewRootsTool(repo *nodes.Repository) *RootsTool {
	return &RootsTool{nodes: repo}
}

// Definition returns the MCP tool definition for note_roots.
func (t *RootsTool) Definition() mcp.Tool {
	return mcp.NewTool("note_roots",
		mcp.WithDescription("List all top-level blocks in order."),
	)
}

// Handle processes the note_roots tool call.
func (t *RootsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roots, err := t.nodes.ListRoots(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list roots: %v", err)), nil
	}
	return mcp.NewToolResultText(nodeList("Root blocks", roots)), nil
}

// ─── DailyTool ──────────────────────────────────────────────────────────────

// DailyTool handles the note_daily MCP tool.
type DailyTool struct {
	nodes *nodes.Repository
	now   func() string
}

// NewDailyTool creates a DailyTool. today returns the default date.
func NewDailyTool(repo *nodes.Repository, today func() string) *DailyTool {
	return &DailyTool{nodes: repo, now: today}
}

// Definition returns the MCP tool definition for note_daily.
func (t *DailyTool) Definition() mcp.Tool {
	return mcp.NewTool("note_daily",
		mcp.WithDescription("Get the journal page for a date, creating it the first time it is asked for."),
		mcp.WithString("date",
			mcp.Description("Date as YYYY-MM-DD (default: today)"),
		),
	)
}

// Handle processes the note_daily tool call.
func (t *DailyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date := req.GetString("date", "")
	if date == "" {
		date = t.now()
	}
	n, err := t.nodes.ResolveDailyNote(ctx, date)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve daily note: %v", err)), nil
	}
	return jsonResult(n), nil
}
