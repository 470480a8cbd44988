package nodes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/store"
)

const nodeColumns = `id, content, parent_id, order_index, properties, tags, created_at, updated_at, created_by, version`

// qualified returns nodeColumns prefixed with a table alias.
func qualified(alias string) string {
	cols := strings.Split(nodeColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanNode reads one row in nodeColumns order. Malformed properties or
// tags degrade to empty containers; the rest of the node is still returned.
func (r *Repository) scanNode(row rowScanner) (Node, error) {
	var (
		n                Node
		parent           sql.NullString
		props, tags      sql.NullString
		created, updated string
	)
	if err := row.Scan(
		&n.ID, &n.Content, &parent, &n.Order, &props, &tags,
		&created, &updated, &n.CreatedBy, &n.Version,
	); err != nil {
		return Node{}, err
	}
	if parent.Valid {
		p := parent.String
		n.ParentID = &p
	}

	var err error
	if n.CreatedAt, err = store.ParseTime(created); err != nil {
		return Node{}, errs.E(errs.KindSerialization, "nodes.scan", fmt.Errorf("created_at of %s: %w", n.ID, err))
	}
	if n.UpdatedAt, err = store.ParseTime(updated); err != nil {
		return Node{}, errs.E(errs.KindSerialization, "nodes.scan", fmt.Errorf("updated_at of %s: %w", n.ID, err))
	}

	n.Properties = map[string]any{}
	if props.Valid && props.String != "" {
		if err := json.Unmarshal([]byte(props.String), &n.Properties); err != nil || n.Properties == nil {
			r.log.Warn("malformed node properties, using empty map", "id", n.ID, "err", err)
			n.Properties = map[string]any{}
		}
	}
	n.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &n.Tags); err != nil || n.Tags == nil {
			r.log.Warn("malformed node tags, using empty list", "id", n.ID, "err", err)
			n.Tags = []string{}
		}
	}
	n.Children = []string{}
	return n, nil
}

// queryNodes runs a SELECT returning nodeColumns, drains it, then fills
// in each node's children. Rows are closed before the child queries run.
func (r *Repository) queryNodes(ctx context.Context, q store.Querier, query string, args ...any) ([]Node, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []Node
	for rows.Next() {
		n, err := r.scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Children, err = childIDs(ctx, q, out[i].ID); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []Node{}
	}
	return out, nil
}

func childIDs(ctx context.Context, q store.Querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM nodes WHERE parent_id = ? ORDER BY order_index, created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", id, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, rows.Err()
}

func encodeProperties(op string, props map[string]any) (string, error) {
	if props == nil {
		props = map[string]any{}
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", errs.E(errs.KindSerialization, op, fmt.Errorf("encode properties: %w", err))
	}
	return string(b), nil
}

func encodeTags(op string, tags []string) (string, error) {
	b, err := json.Marshal(normalizeTags(tags))
	if err != nil {
		return "", errs.E(errs.KindSerialization, op, fmt.Errorf("encode tags: %w", err))
	}
	return string(b), nil
}

// normalizeTags trims tags and drops duplicates, keeping first occurrence.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// sanitizeContent strips control characters other than newline and tab.
func sanitizeContent(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// nextUpdatedAt returns a timestamp strictly after prev, normally now.
func nextUpdatedAt(prev string) string {
	now := store.Now()
	if p, err := store.ParseTime(prev); err == nil && !now.After(p) {
		now = p.Add(time.Nanosecond)
	}
	return store.FormatTime(now)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
