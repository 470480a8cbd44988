// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it opens the store, builds the repository,
// link index, statistics and exporter, and injects them into the tools,
// prompts and resources. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChienNQuang/Note/internal/config"
	"github.com/ChienNQuang/Note/internal/export"
	"github.com/ChienNQuang/Note/internal/links"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/ChienNQuang/Note/internal/notetools"
	"github.com/ChienNQuang/Note/internal/prompts"
	"github.com/ChienNQuang/Note/internal/resources"
	"github.com/ChienNQuang/Note/internal/stats"
	"github.com/ChienNQuang/Note/internal/store"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds the domain services behind the MCP surface. The CLI uses it
// directly for export, import and stats.
type Deps struct {
	Store    *store.Store
	Nodes    *nodes.Repository
	Links    *links.Index
	Stats    *stats.Service
	Exporter *export.Exporter
}

// Open opens the store described by cfg and builds every service on it.
// The caller owns the returned Deps and must Close it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.Open(ctx, cfg.StoreConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	repo := nodes.NewRepository(s, logger)
	ix := links.NewIndex(s, repo, logger)
	return &Deps{
		Store:    s,
		Nodes:    repo,
		Links:    ix,
		Stats:    stats.New(s),
		Exporter: export.New(s, repo, ix, Version, logger),
	}, nil
}

// Close closes the underlying store.
func (d *Deps) Close() error {
	return d.Store.Close()
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
//
// The returned cleanup function closes the store and must be called on
// shutdown (typically via defer). It is always non-nil.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.MCPServer, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	d, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() {
		if err := d.Close(); err != nil {
			logger.Warn("closing store", "err", err)
		}
	}

	s := server.NewMCPServer(
		"note",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, d, today)

	// --- Register prompts ---

	dailyReview := prompts.NewDailyReviewPrompt(today)
	s.AddPrompt(dailyReview.Definition(), dailyReview.Handle)

	linkGarden := prompts.NewLinkGardenPrompt()
	s.AddPrompt(linkGarden.Definition(), linkGarden.Handle)

	// --- Register resources ---

	rh := resources.NewHandler(d.Nodes, d.Stats)
	s.AddResource(rh.RootsResource(), rh.HandleRoots)
	s.AddResource(rh.StatsResource(), rh.HandleStats)
	s.AddResourceTemplate(rh.NodeTemplate(), rh.HandleNode)

	logger.Info("note server ready", "version", Version, "db", d.Store.Path())
	return s, cleanup, nil
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// today is the local calendar date, the default for daily notes.
func today() string {
	return time.Now().Format(nodes.DateLayout)
}

// registerTools registers all note and link MCP tools with the server.
func registerTools(s *server.MCPServer, d *Deps, today func() string) {
	// --- Blocks ---
	createTool := notetools.NewCreateTool(d.Nodes, d.Links)
	s.AddTool(createTool.Definition(), createTool.Handle)

	getTool := notetools.NewGetTool(d.Nodes)
	s.AddTool(getTool.Definition(), getTool.Handle)

	treeTool := notetools.NewTreeTool(d.Nodes)
	s.AddTool(treeTool.Definition(), treeTool.Handle)

	updateTool := notetools.NewUpdateTool(d.Nodes, d.Links)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	deleteTool := notetools.NewDeleteTool(d.Nodes)
	s.AddTool(deleteTool.Definition(), deleteTool.Handle)

	moveTool := notetools.NewMoveTool(d.Nodes)
	s.AddTool(moveTool.Definition(), moveTool.Handle)

	rootsTool := notetools.NewRootsTool(d.Nodes)
	s.AddTool(rootsTool.Definition(), rootsTool.Handle)

	dailyTool := notetools.NewDailyTool(d.Nodes, today)
	s.AddTool(dailyTool.Definition(), dailyTool.Handle)

	// --- Queries ---
	searchTool := notetools.NewSearchTool(d.Nodes)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	byTagTool := notetools.NewByTagTool(d.Nodes)
	s.AddTool(byTagTool.Definition(), byTagTool.Handle)

	recentTool := notetools.NewRecentTool(d.Nodes)
	s.AddTool(recentTool.Definition(), recentTool.Handle)

	// --- Links ---
	resyncTool := notetools.NewResyncTool(d.Nodes, d.Links)
	s.AddTool(resyncTool.Definition(), resyncTool.Handle)

	backlinksTool := notetools.NewBacklinksTool(d.Links)
	s.AddTool(backlinksTool.Definition(), backlinksTool.Handle)

	outgoingTool := notetools.NewOutgoingTool(d.Links)
	s.AddTool(outgoingTool.Definition(), outgoingTool.Handle)

	unlinkedTool := notetools.NewUnlinkedTool(d.Nodes, d.Links)
	s.AddTool(unlinkedTool.Definition(), unlinkedTool.Handle)

	// --- Statistics & export ---
	statsTool := notetools.NewStatsTool(d.Stats)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	exportTool := notetools.NewExportTool(d.Exporter)
	s.AddTool(exportTool.Definition(), exportTool.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how to use the note server.
func serverInstructions() string {
	return `You have access to Note, an outliner for personal notes stored locally.

## Model

Notes are BLOCKS arranged in trees. Every block has text content, an
optional parent, a position among its siblings, tags (e.g. "#todo") and
free-form properties. Blocks without a parent are roots; use note_roots to
see them and note_tree to read a whole subtree.

## Links

Writing [[Some Text]] inside a block links it to the block whose content is
exactly "Some Text", or failing that the oldest block whose content starts
with it. Links are indexed when a block is saved through note_create or
note_update. A link to a block that did not exist yet is NOT picked up
later on its own: call link_resync on the referring block.

- link_backlinks: who links here
- link_outgoing: where this block links to
- link_unlinked: blocks that mention the text without linking

## Journal

note_daily returns the journal page of a date (default: today), creating it
on first use. Add the day's entries as children of that page.

## Rules

- Deleting a block deletes its whole subtree and every link touching it.
  Confirm with the user before calling note_delete.
- A block cannot be moved under itself or one of its descendants.
- Content is limited to 10000 characters per block. Split long text into
  child blocks instead.
- Prefer note_search (full text) or note_by_tag over walking the tree.
`
}
