package nodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/ids"
	"github.com/ChienNQuang/Note/internal/store"
)

// ─── Create ──────────────────────────────────────────────────────────────────

// Create inserts a new node and returns it fully hydrated (its children
// list is necessarily empty). Order defaults to 0.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Node, error) {
	const op = "nodes.Create"
	if err := errs.Validate(op, p); err != nil {
		return nil, err
	}

	var out *Node
	err := r.store.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		n, err := r.insert(ctx, q, op, p)
		out = n
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// insert writes a new node inside an existing transaction.
func (r *Repository) insert(ctx context.Context, q store.Querier, op string, p CreateParams) (*Node, error) {
	props, err := encodeProperties(op, p.Properties)
	if err != nil {
		return nil, err
	}
	tags, err := encodeTags(op, p.Tags)
	if err != nil {
		return nil, err
	}
	order := 0
	if p.Order != nil {
		order = *p.Order
	}

	if p.ParentID != nil {
		if err := requireNode(ctx, q, op, *p.ParentID, "parent node"); err != nil {
			return nil, err
		}
	}

	id := ids.New(p.Kind)
	now := store.FormatTime(store.Now())
	if _, err := q.ExecContext(ctx,
		`INSERT INTO nodes (id, content, parent_id, order_index, properties, tags, created_at, updated_at, created_by, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		id, sanitizeContent(p.Content), nullable(p.ParentID), order, props, tags, now, now, r.store.LocalUserID(),
	); err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}
	return r.getIn(ctx, q, op, id)
}

// ─── Read ────────────────────────────────────────────────────────────────────

// Get returns the node with the given id and its direct children ids.
func (r *Repository) Get(ctx context.Context, id string) (*Node, error) {
	const op = "nodes.Get"
	var out *Node
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		n, err := r.getIn(ctx, q, op, id)
		out = n
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

func (r *Repository) getIn(ctx context.Context, q store.Querier, op, id string) (*Node, error) {
	row := q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := r.scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Errorf(errs.KindNotFound, op, "node %q", id)
	}
	if err != nil {
		return nil, err
	}
	if n.Children, err = childIDs(ctx, q, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetWithSubtree returns the node with every descendant hydrated.
func (r *Repository) GetWithSubtree(ctx context.Context, id string) (*Tree, error) {
	const op = "nodes.GetWithSubtree"
	var out *Tree
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		visited := make(map[string]bool)
		t, err := r.subtree(ctx, q, op, id, visited)
		out = t
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

func (r *Repository) subtree(ctx context.Context, q store.Querier, op, id string, visited map[string]bool) (*Tree, error) {
	// Cycles cannot be built through Move; visited guards against a
	// hand-edited database.
	if visited[id] {
		return nil, errs.Errorf(errs.KindCyclicMove, op, "node %q appears twice in its own subtree", id)
	}
	visited[id] = true

	n, err := r.getIn(ctx, q, op, id)
	if err != nil {
		return nil, err
	}
	t := &Tree{Node: *n, ChildNodes: make([]Tree, 0, len(n.Children))}
	for _, childID := range n.Children {
		child, err := r.subtree(ctx, q, op, childID, visited)
		if err != nil {
			return nil, err
		}
		t.ChildNodes = append(t.ChildNodes, *child)
	}
	return t, nil
}

// ListRoots returns every node without a parent, ordered by order then
// created_at.
func (r *Repository) ListRoots(ctx context.Context) ([]Node, error) {
	const op = "nodes.ListRoots"
	var out []Node
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		out, err = r.queryNodes(ctx, q,
			`SELECT `+nodeColumns+` FROM nodes
			 WHERE parent_id IS NULL
			 ORDER BY order_index, created_at, id`)
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// ─── Update ──────────────────────────────────────────────────────────────────

// Update applies the fields present in p, each with its own statement,
// inside one transaction. updated_at and version are always touched,
// even when p is empty.
func (r *Repository) Update(ctx context.Context, id string, p UpdateParams) (*Node, error) {
	const op = "nodes.Update"

	in := nodeInput{}
	if p.Content.Set {
		in.Content = p.Content.Value
	}
	if p.Tags.Set {
		in.Tags = p.Tags.Value
	}
	if err := errs.Validate(op, in); err != nil {
		return nil, err
	}

	var props, tags string
	var err error
	if p.Properties.Set {
		if props, err = encodeProperties(op, p.Properties.Value); err != nil {
			return nil, err
		}
	}
	if p.Tags.Set {
		if tags, err = encodeTags(op, p.Tags.Value); err != nil {
			return nil, err
		}
	}

	var out *Node
	err = r.store.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		prev, err := currentUpdatedAt(ctx, q, op, id)
		if err != nil {
			return err
		}
		if p.ParentID.Set {
			if err := r.checkParent(ctx, q, op, id, p.ParentID.Value); err != nil {
				return err
			}
		}

		if p.Content.Set {
			if err := execOne(ctx, q, `UPDATE nodes SET content = ? WHERE id = ?`, sanitizeContent(p.Content.Value), id); err != nil {
				return fmt.Errorf("update content: %w", err)
			}
		}
		if p.Properties.Set {
			if err := execOne(ctx, q, `UPDATE nodes SET properties = ? WHERE id = ?`, props, id); err != nil {
				return fmt.Errorf("update properties: %w", err)
			}
		}
		if p.Tags.Set {
			if err := execOne(ctx, q, `UPDATE nodes SET tags = ? WHERE id = ?`, tags, id); err != nil {
				return fmt.Errorf("update tags: %w", err)
			}
		}
		if p.ParentID.Set {
			if err := execOne(ctx, q, `UPDATE nodes SET parent_id = ? WHERE id = ?`, nullable(p.ParentID.Value), id); err != nil {
				return fmt.Errorf("update parent: %w", err)
			}
		}
		if p.Order.Set {
			if err := execOne(ctx, q, `UPDATE nodes SET order_index = ? WHERE id = ?`, p.Order.Value, id); err != nil {
				return fmt.Errorf("update order: %w", err)
			}
		}

		if err := r.touch(ctx, q, op, id, prev); err != nil {
			return err
		}
		out, err = r.getIn(ctx, q, op, id)
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// Move reparents and reorders a node. A nil newParentID makes it a root.
// Moving a node under itself or one of its descendants fails with a
// cyclic move error before anything is written.
func (r *Repository) Move(ctx context.Context, id string, newParentID *string, newOrder int) (*Node, error) {
	const op = "nodes.Move"
	var out *Node
	err := r.store.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		prev, err := currentUpdatedAt(ctx, q, op, id)
		if err != nil {
			return err
		}
		if err := r.checkParent(ctx, q, op, id, newParentID); err != nil {
			return err
		}
		if err := execOne(ctx, q,
			`UPDATE nodes SET parent_id = ?, order_index = ? WHERE id = ?`,
			nullable(newParentID), newOrder, id,
		); err != nil {
			return fmt.Errorf("move node: %w", err)
		}
		if err := r.touch(ctx, q, op, id, prev); err != nil {
			return err
		}
		out, err = r.getIn(ctx, q, op, id)
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

// checkParent walks the ancestor chain of parentID and rejects the move
// if id is on it. A nil parentID is always accepted.
func (r *Repository) checkParent(ctx context.Context, q store.Querier, op, id string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	if *parentID == id {
		return errs.Errorf(errs.KindCyclicMove, op, "node %q cannot be its own parent", id)
	}

	rows, err := q.QueryContext(ctx,
		`WITH RECURSIVE chain(id, parent_id) AS (
			SELECT id, parent_id FROM nodes WHERE id = ?
			UNION
			SELECT n.id, n.parent_id FROM nodes n JOIN chain c ON n.id = c.parent_id
		)
		SELECT id FROM chain`, *parentID)
	if err != nil {
		return fmt.Errorf("walk ancestors of %s: %w", *parentID, err)
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var ancestor string
		if err := rows.Scan(&ancestor); err != nil {
			return err
		}
		found++
		if ancestor == id {
			return errs.Errorf(errs.KindCyclicMove, op, "node %q is an ancestor of %q", id, *parentID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found == 0 {
		return errs.Errorf(errs.KindNotFound, op, "parent node %q", *parentID)
	}
	return nil
}

// touch bumps updated_at past prev and increments version by one.
func (r *Repository) touch(ctx context.Context, q store.Querier, op, id, prev string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE nodes SET updated_at = ?, version = version + 1 WHERE id = ?`,
		nextUpdatedAt(prev), id)
	if err != nil {
		return fmt.Errorf("touch node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Errorf(errs.KindNotFound, op, "node %q", id)
	}
	return nil
}

// ─── Delete ──────────────────────────────────────────────────────────────────

// Delete removes the node, its whole subtree and every link edge that
// touches any removed node.
func (r *Repository) Delete(ctx context.Context, id string) error {
	const op = "nodes.Delete"
	err := r.store.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		if err := requireNode(ctx, q, op, id, "node"); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx,
			`WITH RECURSIVE subtree(id) AS (
				SELECT ?
				UNION
				SELECT n.id FROM nodes n JOIN subtree s ON n.parent_id = s.id
			)
			DELETE FROM nodes WHERE id IN (SELECT id FROM subtree)`, id)
		if err != nil {
			return fmt.Errorf("delete subtree: %w", err)
		}
		n, _ := res.RowsAffected()
		r.log.Debug("deleted node subtree", "id", id, "rows", n)
		return nil
	})
	return errs.FromStore(op, err)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func requireNode(ctx context.Context, q store.Querier, op, id, what string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Errorf(errs.KindNotFound, op, "%s %q", what, id)
	}
	return err
}

func currentUpdatedAt(ctx context.Context, q store.Querier, op, id string) (string, error) {
	var updated string
	err := q.QueryRowContext(ctx, `SELECT updated_at FROM nodes WHERE id = ?`, id).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.Errorf(errs.KindNotFound, op, "node %q", id)
	}
	return updated, err
}

func execOne(ctx context.Context, q store.Querier, query string, args ...any) error {
	_, err := q.ExecContext(ctx, query, args...)
	return err
}
