// Package export dumps the node tree and link table to JSON or a Markdown
// outline, and restores JSON dumps.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/links"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/ChienNQuang/Note/internal/store"
	"github.com/natefinch/atomic"
)

// Document is a full JSON dump.
type Document struct {
	Version    string       `json:"version"`
	ExportedAt time.Time    `json:"exported_at"`
	Nodes      []nodes.Node `json:"nodes"`
	Links      []links.Edge `json:"links"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Nodes int `json:"nodes"`
	Links int `json:"links"`
}

// Exporter reads and writes dumps.
type Exporter struct {
	store   *store.Store
	nodes   *nodes.Repository
	links   *links.Index
	version string
	log     *slog.Logger
}

// New creates an Exporter. version is stamped into every Document.
func New(s *store.Store, repo *nodes.Repository, ix *links.Index, version string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: s, nodes: repo, links: ix, version: version, log: logger}
}

// Export returns every node, parents first, and every edge.
func (e *Exporter) Export(ctx context.Context) (*Document, error) {
	all, err := e.nodes.All(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := e.links.Edges(ctx)
	if err != nil {
		return nil, err
	}
	return &Document{
		Version:    e.version,
		ExportedAt: store.Now(),
		Nodes:      all,
		Links:      edges,
	}, nil
}

// Import writes doc in one transaction. Nodes are upserted by id, so
// importing over existing data keeps unrelated nodes and the children of
// overwritten ones. Foreign keys are checked at the end, so node order in
// doc does not matter; a dangling parent or edge, or a parent cycle,
// fails the whole import.
func (e *Exporter) Import(ctx context.Context, doc *Document) (*ImportResult, error) {
	const op = "export.Import"
	if doc == nil {
		return nil, errs.Errorf(errs.KindValidation, op, "document is required")
	}

	var res ImportResult
	err := e.store.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		if _, err := q.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
			return fmt.Errorf("defer foreign keys: %w", err)
		}
		for _, n := range doc.Nodes {
			if err := e.nodes.Restore(ctx, q, n); err != nil {
				return err
			}
			res.Nodes++
		}
		for _, l := range doc.Links {
			if err := e.links.RestoreEdge(ctx, q, l); err != nil {
				return err
			}
			res.Links++
		}
		if err := checkForeignKeys(ctx, q, op); err != nil {
			return err
		}
		return e.nodes.CheckTree(ctx, q)
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	e.log.Info("import complete", "nodes", res.Nodes, "links", res.Links)
	return &res, nil
}

func checkForeignKeys(ctx context.Context, q store.Querier, op string) error {
	rows, err := q.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var (
			table, parent string
			rowid, fkid   any
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return err
		}
		problems = append(problems, fmt.Sprintf("%s row %v references missing %s", table, rowid, parent))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(problems) > 0 {
		return errs.Errorf(errs.KindValidation, op, "dangling references: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ─── Encoding ───────────────────────────────────────────────────────────────

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errs.E(errs.KindSerialization, "export.Encode", err)
	}
	return nil
}

// Decode reads a JSON Document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errs.E(errs.KindSerialization, "export.Decode", err)
	}
	return &doc, nil
}

// WriteFile replaces path with data atomically.
func WriteFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ─── Markdown ───────────────────────────────────────────────────────────────

// Markdown renders every root and its subtree as a nested bullet outline.
func (e *Exporter) Markdown(ctx context.Context) (string, error) {
	roots, err := e.nodes.ListRoots(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Note Export\n\n")
	fmt.Fprintf(&sb, "*Exported on: %s*\n\n", store.Now().Format("2006-01-02 15:04:05 UTC"))
	for _, r := range roots {
		tree, err := e.nodes.GetWithSubtree(ctx, r.ID)
		if err != nil {
			return "", err
		}
		writeOutline(&sb, tree, 0)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// MarkdownNode renders one node and its subtree.
func (e *Exporter) MarkdownNode(ctx context.Context, id string) (string, error) {
	tree, err := e.nodes.GetWithSubtree(ctx, id)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writeOutline(&sb, tree, 0)
	return sb.String(), nil
}

func writeOutline(sb *strings.Builder, t *nodes.Tree, level int) {
	indent := strings.Repeat("  ", level)
	// Continuation lines of multi-line content stay under the bullet.
	content := strings.ReplaceAll(t.Content, "\n", "\n"+indent+"  ")
	fmt.Fprintf(sb, "%s* %s\n", indent, content)
	for i := range t.ChildNodes {
		writeOutline(sb, &t.ChildNodes[i], level+1)
	}
}
