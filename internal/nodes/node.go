// Package nodes is the repository for content nodes: the tree of text
// blocks that make up every note.
//
// A node's children are never stored on the node. They are derived on
// read from the parent_id column, ordered by order then created_at.
// Every mutation bumps updated_at and increments version by exactly one.
//
// The repository does not maintain wiki-link edges. Callers that change
// content must ask the link index to resynchronize the node afterwards.
package nodes

import (
	"log/slog"
	"time"

	"github.com/ChienNQuang/Note/internal/ids"
	"github.com/ChienNQuang/Note/internal/store"
	"golang.org/x/sync/singleflight"
)

// MaxContentLength is the largest accepted content, in characters.
const MaxContentLength = 10000

// ─── Types ───────────────────────────────────────────────────────────────────

// Node is one content node.
type Node struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	ParentID   *string        `json:"parent_id"`
	Children   []string       `json:"children"`
	Order      int            `json:"order"`
	Properties map[string]any `json:"properties"`
	Tags       []string       `json:"tags"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	CreatedBy  string         `json:"created_by"`
	Version    int            `json:"version"`
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.ParentID == nil }

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Tree is a node with its full descendant subtree hydrated.
type Tree struct {
	Node
	ChildNodes []Tree `json:"child_nodes"`
}

// Count returns the number of nodes in the tree, including the root.
func (t *Tree) Count() int {
	n := 1
	for i := range t.ChildNodes {
		n += t.ChildNodes[i].Count()
	}
	return n
}

// CreateParams holds the input for creating a node.
type CreateParams struct {
	Content    string         `json:"content" validate:"max=10000"`
	ParentID   *string        `json:"parent_id,omitempty"`
	Order      *int           `json:"order,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Tags       []string       `json:"tags,omitempty" validate:"dive,notblank,max=100"`
	// Kind prefixes the generated id. The zero value gives a bare UUID.
	Kind ids.Kind `json:"-"`
}

// Optional is a field of a partial update. The zero value is absent.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UpdateParams holds a partial update. Absent fields are left untouched.
// ParentID set to Some[*string](nil) makes the node a root.
type UpdateParams struct {
	Content    Optional[string]
	Properties Optional[map[string]any]
	Tags       Optional[[]string]
	ParentID   Optional[*string]
	Order      Optional[int]
}

// nodeInput is what validation sees for both create and update.
type nodeInput struct {
	Content string   `validate:"max=10000"`
	Tags    []string `validate:"dive,notblank,max=100"`
}

// ─── Repository ──────────────────────────────────────────────────────────────

// Repository reads and writes nodes through a store.Store.
type Repository struct {
	store *store.Store
	log   *slog.Logger

	// daily collapses concurrent in-process resolutions of the same date.
	daily singleflight.Group
}

// NewRepository returns a Repository over s. A nil logger uses slog.Default.
func NewRepository(s *store.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: s, log: logger}
}
