// Package links maintains the directed edge table between nodes derived
// from [[wiki-link]] references in node content.
//
// Edges reflect each source node's content as of its last call to
// Resynchronize. Nothing here runs automatically: creating a node that a
// reference would now resolve to does not add the edge until the
// referring node is resynchronized again.
//
// A reference resolves to the node whose content equals it, or failing
// that to the oldest node whose content starts with it. The referring
// node itself is never a candidate, so a node never links to itself even
// when its own content matches the reference.
package links

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/ChienNQuang/Note/internal/store"
)

var referencePattern = regexp.MustCompile(`\[\[(.*?)\]\]`)

// Edge is one directed link, source referencing target.
type Edge struct {
	SourceID  string `json:"source_node_id"`
	TargetID  string `json:"target_node_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Index answers link queries over the node repository.
type Index struct {
	store *store.Store
	nodes *nodes.Repository
	log   *slog.Logger
}

// NewIndex creates an Index. A nil logger uses slog.Default().
func NewIndex(s *store.Store, repo *nodes.Repository, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: s, nodes: repo, log: logger}
}

// ExtractReferences returns the trimmed, non-empty [[...]] texts in
// content, first occurrence order, without duplicates.
func ExtractReferences(content string) []string {
	matches := referencePattern.FindAllStringSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		ref := strings.TrimSpace(m[1])
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// ─── Resynchronization ───────────────────────────────────────────────────────

// Resynchronize replaces the outgoing edges of n with those resolvable
// from n.Content. Unresolvable references are skipped without error.
func (ix *Index) Resynchronize(ctx context.Context, n *nodes.Node) error {
	const op = "links.Resynchronize"
	if n == nil || strings.TrimSpace(n.ID) == "" {
		return errs.Errorf(errs.KindValidation, op, "node is required")
	}
	refs := ExtractReferences(n.Content)

	var linked, unresolved int
	err := ix.store.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, n.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.Errorf(errs.KindNotFound, op, "node %q", n.ID)
		}
		if err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM node_links WHERE source_node_id = ?`, n.ID); err != nil {
			return fmt.Errorf("clear edges: %w", err)
		}

		now := store.FormatTime(store.Now())
		for _, ref := range refs {
			target, err := resolve(ctx, q, n.ID, ref)
			if err != nil {
				return err
			}
			if target == "" {
				unresolved++
				continue
			}
			if _, err := q.ExecContext(ctx,
				`INSERT OR IGNORE INTO node_links (source_node_id, target_node_id, created_at) VALUES (?, ?, ?)`,
				n.ID, target, now,
			); err != nil {
				return fmt.Errorf("insert edge %s -> %s: %w", n.ID, target, err)
			}
			linked++
		}
		return nil
	})
	if err != nil {
		return errs.FromStore(op, err)
	}
	ix.log.Debug("links resynchronized", "node", n.ID, "refs", len(refs), "linked", linked, "unresolved", unresolved)
	return nil
}

// resolve finds the node a reference names: exact content first, then
// content starting with ref. The source itself never resolves.
func resolve(ctx context.Context, q store.Querier, sourceID, ref string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE content = ? AND id <> ?
		 ORDER BY created_at, id LIMIT 1`,
		ref, sourceID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE content LIKE ? ESCAPE '\' AND id <> ?
		 ORDER BY created_at, id LIMIT 1`,
		escapeLike(ref)+"%", sourceID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve prefix %q: %w", ref, err)
	}
	return id, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Backlinks returns the nodes whose last resynchronized content
// referenced nodeID.
func (ix *Index) Backlinks(ctx context.Context, nodeID string) ([]nodes.Node, error) {
	return ix.related(ctx, "links.Backlinks",
		`SELECT source_node_id FROM node_links WHERE target_node_id = ? ORDER BY created_at, source_node_id`,
		nodeID)
}

// Outgoing returns the nodes nodeID referenced at its last resynchronization.
func (ix *Index) Outgoing(ctx context.Context, nodeID string) ([]nodes.Node, error) {
	return ix.related(ctx, "links.Outgoing",
		`SELECT target_node_id FROM node_links WHERE source_node_id = ? ORDER BY created_at, target_node_id`,
		nodeID)
}

func (ix *Index) related(ctx context.Context, op, query, nodeID string) ([]nodes.Node, error) {
	var ids []string
	err := ix.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		ids, err = scanIDs(ctx, q, query, nodeID)
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}

	out := make([]nodes.Node, 0, len(ids))
	for _, id := range ids {
		n, err := ix.nodes.Get(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			ix.log.Debug("skipping dangling edge", "op", op, "node", nodeID, "other", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, nil
}

// UnlinkedMentions returns every node whose content contains probe,
// whether or not an edge exists. The node itself is included when its
// own content matches.
func (ix *Index) UnlinkedMentions(ctx context.Context, nodeID, probe string) ([]nodes.Node, error) {
	const op = "links.UnlinkedMentions"
	if probe == "" {
		return nil, errs.Errorf(errs.KindValidation, op, "probe text is required")
	}
	if _, err := ix.nodes.Get(ctx, nodeID); err != nil {
		return nil, err
	}

	var ids []string
	err := ix.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		ids, err = scanIDs(ctx, q,
			`SELECT id FROM nodes WHERE instr(content, ?) > 0 ORDER BY created_at, id`, probe)
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}

	out := make([]nodes.Node, 0, len(ids))
	for _, id := range ids {
		n, err := ix.nodes.Get(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, nil
}

// ─── Dump / restore ──────────────────────────────────────────────────────────

// Edges returns every edge, ordered by source then target.
func (ix *Index) Edges(ctx context.Context) ([]Edge, error) {
	const op = "links.Edges"
	out := []Edge{}
	err := ix.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		rows, err := q.QueryContext(ctx,
			`SELECT source_node_id, target_node_id, created_at FROM node_links
			 ORDER BY source_node_id, target_node_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e Edge
			if err := rows.Scan(&e.SourceID, &e.TargetID, &e.CreatedAt); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// RestoreEdge inserts e inside an existing transaction. An edge that
// already exists is left as is.
func (ix *Index) RestoreEdge(ctx context.Context, q store.Querier, e Edge) error {
	const op = "links.RestoreEdge"
	if e.SourceID == "" || e.TargetID == "" {
		return errs.Errorf(errs.KindValidation, op, "edge needs source and target")
	}
	created := e.CreatedAt
	if created == "" {
		created = store.FormatTime(store.Now())
	}
	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO node_links (source_node_id, target_node_id, created_at) VALUES (?, ?, ?)`,
		e.SourceID, e.TargetID, created,
	); err != nil {
		return fmt.Errorf("restore edge %s -> %s: %w", e.SourceID, e.TargetID, err)
	}
	return nil
}

func scanIDs(ctx context.Context, q store.Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
