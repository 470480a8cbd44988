package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/store"
)

const (
	defaultSearchLimit = 50
	defaultRecentLimit = 20
	maxLimit           = 500
)

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Search runs a full-text query over node content, best match first.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]Node, error) {
	const op = "nodes.Search"
	match := sanitizeFTS(query)
	if match == "" {
		return nil, errs.Errorf(errs.KindValidation, op, "query is required")
	}

	var out []Node
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		out, err = r.queryNodes(ctx, q,
			`SELECT `+qualified("n")+`
			 FROM nodes_fts f
			 JOIN nodes n ON n.rowid = f.rowid
			 WHERE nodes_fts MATCH ?
			 ORDER BY f.rank
			 LIMIT ?`,
			match, clampLimit(limit, defaultSearchLimit))
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// FindByTag returns every node carrying tag, oldest first.
func (r *Repository) FindByTag(ctx context.Context, tag string) ([]Node, error) {
	const op = "nodes.FindByTag"
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, errs.Errorf(errs.KindValidation, op, "tag is required")
	}
	quoted, _ := json.Marshal(tag)

	var candidates []Node
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		candidates, err = r.queryNodes(ctx, q,
			`SELECT `+nodeColumns+` FROM nodes
			 WHERE instr(tags, ?) > 0
			 ORDER BY created_at, id`, string(quoted))
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}

	// The substring prefilter can match inside another tag's escaping.
	out := candidates[:0]
	for _, n := range candidates {
		if n.HasTag(tag) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Recent returns the most recently updated nodes.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Node, error) {
	const op = "nodes.Recent"
	var out []Node
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		out, err = r.queryNodes(ctx, q,
			`SELECT `+nodeColumns+` FROM nodes ORDER BY updated_at DESC, id LIMIT ?`,
			clampLimit(limit, defaultRecentLimit))
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// All returns every node, parents before their children.
func (r *Repository) All(ctx context.Context) ([]Node, error) {
	const op = "nodes.All"
	var out []Node
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		out, err = r.queryNodes(ctx, q,
			`WITH RECURSIVE walk(id, depth) AS (
				SELECT id, 0 FROM nodes WHERE parent_id IS NULL
				UNION ALL
				SELECT n.id, w.depth + 1 FROM nodes n JOIN walk w ON n.parent_id = w.id
			)
			SELECT `+qualified("n")+`
			FROM walk w JOIN nodes n ON n.id = w.id
			ORDER BY w.depth, n.order_index, n.created_at, n.id`)
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// Restore writes n as-is inside an existing transaction, inserting it or
// overwriting the row with the same id. Children of an overwritten row
// are kept. Used by import.
func (r *Repository) Restore(ctx context.Context, q store.Querier, n Node) error {
	const op = "nodes.Restore"
	if strings.TrimSpace(n.ID) == "" {
		return errs.Errorf(errs.KindValidation, op, "node id is required")
	}
	if err := errs.Validate(op, nodeInput{Content: n.Content, Tags: n.Tags}); err != nil {
		return err
	}
	props, err := encodeProperties(op, n.Properties)
	if err != nil {
		return err
	}
	tags, err := encodeTags(op, n.Tags)
	if err != nil {
		return err
	}
	createdBy := n.CreatedBy
	if createdBy == "" {
		createdBy = r.store.LocalUserID()
	}
	version := n.Version
	if version < 1 {
		version = 1
	}
	created, updated := n.CreatedAt, n.UpdatedAt
	if created.IsZero() {
		created = store.Now()
	}
	if updated.Before(created) {
		updated = created
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO nodes (id, content, parent_id, order_index, properties, tags, created_at, updated_at, created_by, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			content     = excluded.content,
			parent_id   = excluded.parent_id,
			order_index = excluded.order_index,
			properties  = excluded.properties,
			tags        = excluded.tags,
			updated_at  = max(nodes.updated_at, excluded.updated_at),
			version     = max(nodes.version, excluded.version)`,
		n.ID, sanitizeContent(n.Content), nullable(n.ParentID), n.Order, props, tags,
		store.FormatTime(created), store.FormatTime(updated), createdBy, version,
	); err != nil {
		return fmt.Errorf("restore node %s: %w", n.ID, err)
	}
	return nil
}

// CheckTree fails with a validation error when some node does not reach a
// root through its parent chain, which means it sits on a parent cycle.
// Move and Update never produce one; bulk writes through Restore can.
func (r *Repository) CheckTree(ctx context.Context, q store.Querier) error {
	const op = "nodes.CheckTree"
	rows, err := q.QueryContext(ctx,
		`WITH RECURSIVE reachable(id) AS (
			SELECT id FROM nodes WHERE parent_id IS NULL
			UNION
			SELECT n.id FROM nodes n JOIN reachable r ON n.parent_id = r.id
		)
		SELECT id FROM nodes WHERE id NOT IN (SELECT id FROM reachable) ORDER BY id LIMIT 10`)
	if err != nil {
		return fmt.Errorf("check parent chains: %w", err)
	}
	defer rows.Close()

	var stuck []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		stuck = append(stuck, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(stuck) > 0 {
		return errs.Errorf(errs.KindValidation, op, "parent cycle through %s", strings.Join(stuck, ", "))
	}
	return nil
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	out := words[:0]
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		out = append(out, `"`+w+`"`)
	}
	return strings.Join(out, " ")
}
