package export_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/export"
	"github.com/ChienNQuang/Note/internal/links"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/ChienNQuang/Note/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	nodes *nodes.Repository
	links *links.Index
	exp   *export.Exporter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(context.Background(), store.DefaultConfig(filepath.Join(t.TempDir(), "note.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	repo := nodes.NewRepository(s, nil)
	ix := links.NewIndex(s, repo, nil)
	return &env{nodes: repo, links: ix, exp: export.New(s, repo, ix, "test", nil)}
}

func (e *env) create(t *testing.T, content string, parent *string, order int) *nodes.Node {
	t.Helper()
	n, err := e.nodes.Create(context.Background(), nodes.CreateParams{
		Content:  content,
		ParentID: parent,
		Order:    &order,
		Tags:     []string{"#t"},
	})
	require.NoError(t, err)
	require.NoError(t, e.links.Resynchronize(context.Background(), n))
	return n
}

// seed builds:
//
//	Project
//	├─ Task one [[Project]]
//	│  └─ Detail
//	└─ Task two
//	Inbox
func (e *env) seed(t *testing.T) {
	t.Helper()
	p := e.create(t, "Project", nil, 0)
	t1 := e.create(t, "Task one [[Project]]", &p.ID, 0)
	e.create(t, "Detail", &t1.ID, 0)
	e.create(t, "Task two", &p.ID, 1)
	e.create(t, "Inbox", nil, 1)
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	doc, err := e.exp.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", doc.Version)
	assert.False(t, doc.ExportedAt.IsZero())
	assert.Len(t, doc.Nodes, 5)
	assert.Len(t, doc.Links, 1)

	seen := map[string]bool{}
	for _, n := range doc.Nodes {
		if n.ParentID != nil {
			assert.True(t, seen[*n.ParentID], "parent of %q exported after it", n.Content)
		}
		seen[n.ID] = true
	}
}

func TestImport_IntoEmptyStore(t *testing.T) {
	src := newEnv(t)
	src.seed(t)
	ctx := context.Background()
	doc, err := src.exp.Export(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.Encode(&buf, doc))
	decoded, err := export.Decode(&buf)
	require.NoError(t, err)

	dst := newEnv(t)
	res, err := dst.exp.Import(ctx, decoded)
	require.NoError(t, err)
	assert.Equal(t, &export.ImportResult{Nodes: 5, Links: 1}, res)

	for _, want := range doc.Nodes {
		got, err := dst.nodes.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.Content, got.Content)
		assert.Equal(t, want.ParentID, got.ParentID)
		assert.Equal(t, want.Order, got.Order)
		assert.Equal(t, want.Tags, got.Tags)
		assert.Equal(t, want.Version, got.Version)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, want.Children, got.Children)
	}

	edges, err := dst.links.Edges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, doc.Links[0].SourceID, edges[0].SourceID)
	assert.Equal(t, doc.Links[0].TargetID, edges[0].TargetID)
}

func TestImport_ChildrenBeforeParents(t *testing.T) {
	src := newEnv(t)
	src.seed(t)
	ctx := context.Background()
	doc, err := src.exp.Export(ctx)
	require.NoError(t, err)

	for i, j := 0, len(doc.Nodes)-1; i < j; i, j = i+1, j-1 {
		doc.Nodes[i], doc.Nodes[j] = doc.Nodes[j], doc.Nodes[i]
	}

	dst := newEnv(t)
	_, err = dst.exp.Import(ctx, doc)
	require.NoError(t, err)
	roots, err := dst.nodes.ListRoots(ctx)
	require.NoError(t, err)
	assert.Len(t, roots, 2)
}

func TestImport_OverExistingKeepsChildren(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.create(t, "Parent", nil, 0)
	child := e.create(t, "Child", &p.ID, 0)

	edited := *p
	edited.Content = "Parent (imported)"
	res, err := e.exp.Import(ctx, &export.Document{Nodes: []nodes.Node{edited}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Nodes)

	got, err := e.nodes.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Parent (imported)", got.Content)
	assert.Equal(t, []string{child.ID}, got.Children)
}

func TestImport_DanglingReferenceRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	missing := "nowhere"
	doc := &export.Document{
		Nodes: []nodes.Node{
			{ID: "a", Content: "fine"},
			{ID: "b", Content: "orphan", ParentID: &missing},
		},
	}

	_, err := e.exp.Import(ctx, doc)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = e.nodes.Get(ctx, "a")
	assert.ErrorIs(t, err, errs.ErrNotFound, "partial import must not be visible")
}

func TestImport_ParentCycleRollsBack(t *testing.T) {
	a, b, s := "a", "b", "s"
	tests := []struct {
		name  string
		nodes []nodes.Node
	}{
		{"two node cycle", []nodes.Node{
			{ID: "root", Content: "root"},
			{ID: a, Content: "a", ParentID: &b},
			{ID: b, Content: "b", ParentID: &a},
		}},
		{"self parent", []nodes.Node{
			{ID: "root", Content: "root"},
			{ID: s, Content: "s", ParentID: &s},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()

			_, err := e.exp.Import(ctx, &export.Document{Nodes: tt.nodes})
			require.ErrorIs(t, err, errs.ErrValidation)
			assert.Contains(t, err.Error(), "parent cycle")

			_, err = e.nodes.Get(ctx, "root")
			assert.ErrorIs(t, err, errs.ErrNotFound, "partial import must not be visible")
			doc, err := e.exp.Export(ctx)
			require.NoError(t, err)
			assert.Empty(t, doc.Nodes)
		})
	}
}

func TestImport_CycleAgainstExistingRows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.create(t, "Parent", nil, 0)
	child := e.create(t, "Child", &p.ID, 0)

	// Re-parenting the existing root under its own child closes a loop.
	looped := *p
	looped.ParentID = &child.ID
	_, err := e.exp.Import(ctx, &export.Document{Nodes: []nodes.Node{looped}})
	require.ErrorIs(t, err, errs.ErrValidation)

	got, err := e.nodes.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRoot())
}

func TestImport_OlderDumpKeepsNewerTimestamp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n := e.create(t, "Note", nil, 0)
	updated, err := e.nodes.Update(ctx, n.ID, nodes.UpdateParams{Content: nodes.Some("Note v2")})
	require.NoError(t, err)

	// n is the state before the update: older updated_at, version 1.
	_, err = e.exp.Import(ctx, &export.Document{Nodes: []nodes.Node{*n}})
	require.NoError(t, err)

	got, err := e.nodes.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Note", got.Content)
	assert.Equal(t, updated.Version, got.Version)
	assert.False(t, got.UpdatedAt.Before(updated.UpdatedAt), "updated_at moved backwards")
}

func TestImport_DanglingEdgeRollsBack(t *testing.T) {
	e := newEnv(t)
	doc := &export.Document{
		Nodes: []nodes.Node{{ID: "a", Content: "a"}},
		Links: []links.Edge{{SourceID: "a", TargetID: "ghost"}},
	}
	_, err := e.exp.Import(context.Background(), doc)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestImport_Nil(t *testing.T) {
	e := newEnv(t)
	_, err := e.exp.Import(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := export.Decode(strings.NewReader("{not json"))
	assert.ErrorIs(t, err, errs.ErrSerialization)
}

func TestMarkdown(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	md, err := e.exp.Markdown(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, "# Note Export\n\n*Exported on: "))

	want := "* Project\n" +
		"  * Task one [[Project]]\n" +
		"    * Detail\n" +
		"  * Task two\n" +
		"\n" +
		"* Inbox\n"
	assert.Contains(t, md, want)
}

func TestMarkdownNode_MultilineContent(t *testing.T) {
	e := newEnv(t)
	p := e.create(t, "Top", nil, 0)
	e.create(t, "line one\nline two", &p.ID, 0)

	md, err := e.exp.MarkdownNode(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "* Top\n  * line one\n    line two\n", md)
}

func TestMarkdownNode_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.exp.MarkdownNode(context.Background(), "ghost")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, export.WriteFile(path, []byte("first")))
	require.NoError(t, export.WriteFile(path, []byte("second")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}
