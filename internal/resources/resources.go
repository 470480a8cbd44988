// Package resources implements MCP resource handlers over the note store.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (note://...) following MCP conventions.
package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/ChienNQuang/Note/internal/stats"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	RootsURI   = "note://roots"
	StatsURI   = "note://stats"
	nodePrefix = "note://node/"
)

// Handler manages note resource endpoints.
type Handler struct {
	nodes *nodes.Repository
	stats *stats.Service
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(repo *nodes.Repository, st *stats.Service) *Handler {
	return &Handler{nodes: repo, stats: st}
}

// RootsResource returns the MCP resource definition for the root blocks.
func (h *Handler) RootsResource() mcp.Resource {
	return mcp.NewResource(
		RootsURI,
		"Root blocks",
		mcp.WithResourceDescription("All top-level blocks in order"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleRoots returns the root blocks as JSON.
func (h *Handler) HandleRoots(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	roots, err := h.nodes.ListRoots(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, roots)
}

// StatsResource returns the MCP resource definition for database statistics.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		StatsURI,
		"Note statistics",
		mcp.WithResourceDescription("Block, link and depth counts for the whole store"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStats returns the database statistics as JSON.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	d, err := h.stats.Database(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, d)
}

// NodeTemplate returns the MCP resource template for one block's subtree.
func (h *Handler) NodeTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		nodePrefix+"{id}",
		"Block subtree",
		mcp.WithTemplateDescription("A block with its whole subtree, children nested in order"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleNode returns the block named by the URI with its subtree.
func (h *Handler) HandleNode(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, nodePrefix)
	if id == "" || id == req.Params.URI {
		return errorResource(req.Params.URI, fmt.Sprintf("expected %s{id}", nodePrefix)), nil
	}
	tree, err := h.nodes.GetWithSubtree(ctx, id)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, tree)
}
