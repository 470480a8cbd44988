// Package stats computes read-only aggregates over the node tree and
// the link table.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/ChienNQuang/Note/internal/store"
)

const (
	defaultTopLinked = 20
	maxTopLinked     = 500
)

// Database holds whole-store aggregates.
type Database struct {
	TotalNodes        int     `json:"total_nodes"`
	TotalLinks        int     `json:"total_links"`
	RootNodes         int     `json:"root_nodes"`
	LeafNodes         int     `json:"leaf_nodes"`
	NodesWithChildren int     `json:"nodes_with_children"`
	AvgDepth          float64 `json:"avg_node_depth"`
	MaxDepth          int     `json:"max_node_depth"`
	JournalNodes      int     `json:"journal_nodes"`
	DistinctTags      int     `json:"distinct_tags"`
}

// Node holds aggregates for one node.
type Node struct {
	NodeID          string `json:"node_id"`
	Depth           int    `json:"depth"`
	DirectChildren  int    `json:"direct_children"`
	DescendantCount int    `json:"descendant_count"`
	Backlinks       int    `json:"backlinks"`
	OutgoingLinks   int    `json:"outgoing_links"`
}

// LinkCount is a link target and how many nodes reference it.
type LinkCount struct {
	NodeID     string `json:"node_id"`
	References int    `json:"references"`
}

// Service answers statistics queries.
type Service struct {
	store *store.Store
}

// New creates a Service.
func New(s *store.Store) *Service {
	return &Service{store: s}
}

// Database returns aggregates over every node and edge.
func (s *Service) Database(ctx context.Context) (*Database, error) {
	const op = "stats.Database"
	var d Database
	err := s.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		counts := []struct {
			dst   *int
			query string
		}{
			{&d.TotalNodes, `SELECT COUNT(*) FROM nodes`},
			{&d.TotalLinks, `SELECT COUNT(*) FROM node_links`},
			{&d.RootNodes, `SELECT COUNT(*) FROM nodes WHERE parent_id IS NULL`},
			{&d.NodesWithChildren, `SELECT COUNT(DISTINCT parent_id) FROM nodes WHERE parent_id IS NOT NULL`},
			{&d.JournalNodes, `SELECT COUNT(*) FROM nodes WHERE instr(tags, '"` + nodes.JournalTag + `"') > 0`},
			{&d.DistinctTags, `SELECT COUNT(DISTINCT j.value) FROM nodes, json_each(nodes.tags) j WHERE json_valid(nodes.tags)`},
		}
		for _, c := range counts {
			if err := q.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
				return fmt.Errorf("%s: %w", c.query, err)
			}
		}
		d.LeafNodes = d.TotalNodes - d.NodesWithChildren

		var avg sql.NullFloat64
		var deepest sql.NullInt64
		if err := q.QueryRowContext(ctx,
			`WITH RECURSIVE node_depth(id, depth) AS (
				SELECT id, 0 FROM nodes WHERE parent_id IS NULL
				UNION ALL
				SELECT n.id, nd.depth + 1 FROM nodes n JOIN node_depth nd ON n.parent_id = nd.id
			)
			SELECT AVG(CAST(depth AS REAL)), MAX(depth) FROM node_depth`,
		).Scan(&avg, &deepest); err != nil {
			return fmt.Errorf("depth: %w", err)
		}
		d.AvgDepth = avg.Float64
		d.MaxDepth = int(deepest.Int64)
		return nil
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return &d, nil
}

// Node returns aggregates for id. Depth is 0 for a root.
func (s *Service) Node(ctx context.Context, id string) (*Node, error) {
	const op = "stats.Node"
	n := Node{NodeID: id}
	err := s.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.Errorf(errs.KindNotFound, op, "node %q", id)
		}
		if err != nil {
			return err
		}

		counts := []struct {
			dst   *int
			query string
		}{
			{&n.DirectChildren, `SELECT COUNT(*) FROM nodes WHERE parent_id = ?1`},
			{&n.DescendantCount, `WITH RECURSIVE descendants(id) AS (
				SELECT id FROM nodes WHERE parent_id = ?1
				UNION ALL
				SELECT n.id FROM nodes n JOIN descendants d ON n.parent_id = d.id
			)
			SELECT COUNT(*) FROM descendants`},
			{&n.Depth, `WITH RECURSIVE path(id, parent_id, depth) AS (
				SELECT id, parent_id, 0 FROM nodes WHERE id = ?1
				UNION ALL
				SELECT n.id, n.parent_id, p.depth + 1 FROM nodes n JOIN path p ON n.id = p.parent_id
			)
			SELECT MAX(depth) FROM path`},
			{&n.Backlinks, `SELECT COUNT(*) FROM node_links WHERE target_node_id = ?1`},
			{&n.OutgoingLinks, `SELECT COUNT(*) FROM node_links WHERE source_node_id = ?1`},
		}
		for _, c := range counts {
			if err := q.QueryRowContext(ctx, c.query, id).Scan(c.dst); err != nil {
				return fmt.Errorf("node stats: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return &n, nil
}

// TopLinked returns the most referenced link targets, most first.
// A limit <= 0 uses the default of 20.
func (s *Service) TopLinked(ctx context.Context, limit int) ([]LinkCount, error) {
	const op = "stats.TopLinked"
	if limit <= 0 {
		limit = defaultTopLinked
	}
	if limit > maxTopLinked {
		limit = maxTopLinked
	}

	out := []LinkCount{}
	err := s.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		rows, err := q.QueryContext(ctx,
			`SELECT target_node_id, COUNT(*) AS refs
			 FROM node_links
			 GROUP BY target_node_id
			 ORDER BY refs DESC, target_node_id
			 LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var lc LinkCount
			if err := rows.Scan(&lc.NodeID, &lc.References); err != nil {
				return err
			}
			out = append(out, lc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}
