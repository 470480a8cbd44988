package notetools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChienNQuang/Note/internal/export"
	"github.com/ChienNQuang/Note/internal/links"
	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/ChienNQuang/Note/internal/stats"
	"github.com/ChienNQuang/Note/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

type deps struct {
	nodes *nodes.Repository
	links *links.Index
	stats *stats.Service
	exp   *export.Exporter
}

// newDeps opens a store in a temp directory and wires every dependency.
func newDeps(t *testing.T) *deps {
	t.Helper()
	s, err := store.Open(context.Background(), store.DefaultConfig(filepath.Join(t.TempDir(), "note.db")))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	repo := nodes.NewRepository(s, nil)
	ix := links.NewIndex(s, repo, nil)
	return &deps{nodes: repo, links: ix, stats: stats.New(s), exp: export.New(s, repo, ix, "test", nil)}
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// call runs a handler and fails the test on a Go error.
func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	res, err := h(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("handler returned Go error: %v", err)
	}
	return res
}

// createID runs note_create and returns the new block's ID.
func createID(t *testing.T, d *deps, args map[string]interface{}) string {
	t.Helper()
	res := call(t, NewCreateTool(d.nodes, d.links).Handle, args)
	if res.IsError {
		t.Fatalf("note_create failed: %s", resultText(res))
	}
	text := resultText(res)
	i := strings.Index(text, "ID: ")
	if i < 0 {
		t.Fatalf("no ID in %q", text)
	}
	return strings.TrimSpace(text[i+len("ID: "):])
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions_Names(t *testing.T) {
	d := newDeps(t)
	today := func() string { return "2024-01-15" }
	defs := map[string]mcp.Tool{
		"note_create":    NewCreateTool(d.nodes, d.links).Definition(),
		"note_get":       NewGetTool(d.nodes).Definition(),
		"note_tree":      NewTreeTool(d.nodes).Definition(),
		"note_update":    NewUpdateTool(d.nodes, d.links).Definition(),
		"note_delete":    NewDeleteTool(d.nodes).Definition(),
		"note_move":      NewMoveTool(d.nodes).Definition(),
		"note_roots":     NewRootsTool(d.nodes).Definition(),
		"note_daily":     NewDailyTool(d.nodes, today).Definition(),
		"note_search":    NewSearchTool(d.nodes).Definition(),
		"note_by_tag":    NewByTagTool(d.nodes).Definition(),
		"note_recent":    NewRecentTool(d.nodes).Definition(),
		"link_resync":    NewResyncTool(d.nodes, d.links).Definition(),
		"link_backlinks": NewBacklinksTool(d.links).Definition(),
		"link_outgoing":  NewOutgoingTool(d.links).Definition(),
		"link_unlinked":  NewUnlinkedTool(d.nodes, d.links).Definition(),
		"note_stats":     NewStatsTool(d.stats).Definition(),
		"note_export":    NewExportTool(d.exp).Definition(),
	}
	for want, def := range defs {
		if def.Name != want {
			t.Errorf("tool name = %q, want %q", def.Name, want)
		}
	}

	create := defs["note_create"]
	if len(create.InputSchema.Required) != 1 || create.InputSchema.Required[0] != "content" {
		t.Errorf("note_create required = %v, want [content]", create.InputSchema.Required)
	}
	for _, p := range []string{"content", "parent_id", "order", "tags", "properties", "kind"} {
		if _, ok := create.InputSchema.Properties[p]; !ok {
			t.Errorf("note_create missing %q parameter", p)
		}
	}
}

// ─── Create / Get ────────────────────────────────────────────────────────────

func TestCreateTool_IndexesLinks(t *testing.T) {
	d := newDeps(t)
	target := createID(t, d, map[string]interface{}{"content": "Project"})
	src := createID(t, d, map[string]interface{}{
		"content":    "See [[Project]]",
		"tags":       []interface{}{"#work", 42},
		"properties": map[string]interface{}{"status": "open"},
		"order":      float64(2),
		"kind":       "block",
	})
	if !strings.HasPrefix(src, "block-") {
		t.Errorf("ID = %q, want block- prefix", src)
	}

	back := resultText(call(t, NewBacklinksTool(d.links).Handle, map[string]interface{}{"id": target}))
	if !strings.Contains(back, src) {
		t.Errorf("backlinks of target should list %s:\n%s", src, back)
	}

	n, err := d.nodes.Get(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if n.Order != 2 || len(n.Tags) != 1 || n.Tags[0] != "#work" || n.Properties["status"] != "open" {
		t.Errorf("created block = %+v", n)
	}
}

func TestCreateTool_Errors(t *testing.T) {
	d := newDeps(t)
	h := NewCreateTool(d.nodes, d.links).Handle
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing content", map[string]interface{}{}, "'content' is required"},
		{"unknown kind", map[string]interface{}{"content": "x", "kind": "folder"}, "unknown kind"},
		{"bad properties", map[string]interface{}{"content": "x", "properties": "[1,2]"}, "must be a JSON object"},
		{"missing parent", map[string]interface{}{"content": "x", "parent_id": "ghost"}, "not found"},
		{"too long", map[string]interface{}{"content": strings.Repeat("x", nodes.MaxContentLength+1)}, "validation error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, h, tt.args)
			if !res.IsError {
				t.Fatalf("expected error result, got %q", resultText(res))
			}
			if !strings.Contains(resultText(res), tt.want) {
				t.Errorf("error %q should contain %q", resultText(res), tt.want)
			}
		})
	}
}

func TestCreateTool_PropertiesAsJSONString(t *testing.T) {
	d := newDeps(t)
	id := createID(t, d, map[string]interface{}{"content": "x", "properties": `{"a": 1}`})
	n, err := d.nodes.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if n.Properties["a"] != float64(1) {
		t.Errorf("Properties = %v", n.Properties)
	}
}

func TestGetTool(t *testing.T) {
	d := newDeps(t)
	id := createID(t, d, map[string]interface{}{"content": "hello"})

	res := call(t, NewGetTool(d.nodes).Handle, map[string]interface{}{"id": id})
	var n nodes.Node
	if err := json.Unmarshal([]byte(resultText(res)), &n); err != nil {
		t.Fatalf("note_get should return JSON: %v", err)
	}
	if n.ID != id || n.Content != "hello" || n.Version != 1 {
		t.Errorf("note_get = %+v", n)
	}

	res = call(t, NewGetTool(d.nodes).Handle, map[string]interface{}{"id": "ghost"})
	if !res.IsError || !strings.Contains(resultText(res), "not found") {
		t.Errorf("note_get(ghost) = %q, want not found error", resultText(res))
	}
}

func TestTreeTool(t *testing.T) {
	d := newDeps(t)
	root := createID(t, d, map[string]interface{}{"content": "root"})
	createID(t, d, map[string]interface{}{"content": "child", "parent_id": root})

	res := call(t, NewTreeTool(d.nodes).Handle, map[string]interface{}{"id": root})
	var tree nodes.Tree
	if err := json.Unmarshal([]byte(resultText(res)), &tree); err != nil {
		t.Fatalf("note_tree should return JSON: %v", err)
	}
	if tree.Count() != 2 || tree.ChildNodes[0].Content != "child" {
		t.Errorf("note_tree = %+v", tree)
	}
}

// ─── Update / Move / Delete ──────────────────────────────────────────────────

func TestUpdateTool_ReindexesLinks(t *testing.T) {
	d := newDeps(t)
	a := createID(t, d, map[string]interface{}{"content": "Alpha"})
	b := createID(t, d, map[string]interface{}{"content": "Beta"})
	src := createID(t, d, map[string]interface{}{"content": "[[Alpha]]"})

	res := call(t, NewUpdateTool(d.nodes, d.links).Handle, map[string]interface{}{"id": src, "content": "[[Beta]]"})
	if res.IsError {
		t.Fatalf("note_update failed: %s", resultText(res))
	}
	if !strings.Contains(resultText(res), "version 2") {
		t.Errorf("note_update = %q, want version 2", resultText(res))
	}

	out := resultText(call(t, NewOutgoingTool(d.links).Handle, map[string]interface{}{"id": src}))
	if !strings.Contains(out, b) || strings.Contains(out, a) {
		t.Errorf("outgoing after update should list only Beta:\n%s", out)
	}
}

func TestUpdateTool_ParentArgs(t *testing.T) {
	d := newDeps(t)
	h := NewUpdateTool(d.nodes, d.links).Handle
	p := createID(t, d, map[string]interface{}{"content": "p"})
	c := createID(t, d, map[string]interface{}{"content": "c", "parent_id": p})

	res := call(t, h, map[string]interface{}{"id": c, "parent_id": p, "make_root": true})
	if !res.IsError {
		t.Error("parent_id with make_root should fail")
	}

	res = call(t, h, map[string]interface{}{"id": c, "make_root": true})
	if res.IsError {
		t.Fatalf("make_root failed: %s", resultText(res))
	}
	n, _ := d.nodes.Get(context.Background(), c)
	if !n.IsRoot() {
		t.Error("block should be a root after make_root")
	}

	res = call(t, h, map[string]interface{}{"id": p, "parent_id": p})
	if !res.IsError || !strings.Contains(resultText(res), "cyclic move") {
		t.Errorf("self parent = %q, want cyclic move error", resultText(res))
	}
}

func TestMoveTool(t *testing.T) {
	d := newDeps(t)
	h := NewMoveTool(d.nodes).Handle
	p := createID(t, d, map[string]interface{}{"content": "p"})
	c := createID(t, d, map[string]interface{}{"content": "c", "parent_id": p})

	res := call(t, h, map[string]interface{}{"id": p, "parent_id": c})
	if !res.IsError || !strings.Contains(resultText(res), "cyclic move") {
		t.Errorf("move under child = %q, want cyclic move error", resultText(res))
	}

	res = call(t, h, map[string]interface{}{"id": c, "order": float64(3)})
	if res.IsError {
		t.Fatalf("move to top level failed: %s", resultText(res))
	}
	if !strings.Contains(resultText(res), "top level at position 3") {
		t.Errorf("move result = %q", resultText(res))
	}
}

func TestDeleteTool(t *testing.T) {
	d := newDeps(t)
	h := NewDeleteTool(d.nodes).Handle
	p := createID(t, d, map[string]interface{}{"content": "p"})
	createID(t, d, map[string]interface{}{"content": "c", "parent_id": p})

	if res := call(t, h, map[string]interface{}{"id": p}); res.IsError {
		t.Fatalf("note_delete failed: %s", resultText(res))
	}
	roots := resultText(call(t, NewRootsTool(d.nodes).Handle, nil))
	if !strings.Contains(roots, "(0)") {
		t.Errorf("roots after delete:\n%s", roots)
	}
	if res := call(t, h, map[string]interface{}{"id": p}); !res.IsError {
		t.Error("deleting twice should fail")
	}
}

// ─── Daily ───────────────────────────────────────────────────────────────────

func TestDailyTool_DefaultsToToday(t *testing.T) {
	d := newDeps(t)
	h := NewDailyTool(d.nodes, func() string { return "2024-01-15" }).Handle

	var first, second nodes.Node
	if err := json.Unmarshal([]byte(resultText(call(t, h, nil))), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(resultText(call(t, h, map[string]interface{}{"date": "2024-01-15"}))), &second); err != nil {
		t.Fatal(err)
	}
	if first.Content != "2024-01-15" || first.ID != second.ID {
		t.Errorf("daily notes differ: %+v vs %+v", first, second)
	}

	res := call(t, h, map[string]interface{}{"date": "yesterday"})
	if !res.IsError {
		t.Error("invalid date should fail")
	}
}

// ─── Queries ─────────────────────────────────────────────────────────────────

func TestQueryTools(t *testing.T) {
	d := newDeps(t)
	id := createID(t, d, map[string]interface{}{"content": "Quarterly planning", "tags": []interface{}{"#work"}})
	createID(t, d, map[string]interface{}{"content": "Groceries"})

	search := resultText(call(t, NewSearchTool(d.nodes).Handle, map[string]interface{}{"query": "planning"}))
	if !strings.Contains(search, id) || strings.Contains(search, "Groceries") {
		t.Errorf("note_search:\n%s", search)
	}
	if res := call(t, NewSearchTool(d.nodes).Handle, nil); !res.IsError {
		t.Error("note_search without query should fail")
	}

	tagged := resultText(call(t, NewByTagTool(d.nodes).Handle, map[string]interface{}{"tag": "#work"}))
	if !strings.Contains(tagged, id) || !strings.Contains(tagged, "(1)") {
		t.Errorf("note_by_tag:\n%s", tagged)
	}

	recent := resultText(call(t, NewRecentTool(d.nodes).Handle, map[string]interface{}{"limit": float64(1)}))
	if !strings.Contains(recent, "Groceries") || strings.Contains(recent, id) {
		t.Errorf("note_recent:\n%s", recent)
	}
}

// ─── Links ───────────────────────────────────────────────────────────────────

func TestResyncTool_PicksUpLateTarget(t *testing.T) {
	d := newDeps(t)
	src := createID(t, d, map[string]interface{}{"content": "See [[Missing]]"})
	m := createID(t, d, map[string]interface{}{"content": "Missing"})

	back := resultText(call(t, NewBacklinksTool(d.links).Handle, map[string]interface{}{"id": m}))
	if strings.Contains(back, src) {
		t.Fatalf("backlink should not exist before resync:\n%s", back)
	}

	res := call(t, NewResyncTool(d.nodes, d.links).Handle, map[string]interface{}{"id": src})
	if !strings.Contains(resultText(res), "1 of 1 references resolved") {
		t.Errorf("link_resync = %q", resultText(res))
	}
	back = resultText(call(t, NewBacklinksTool(d.links).Handle, map[string]interface{}{"id": m}))
	if !strings.Contains(back, src) {
		t.Errorf("backlink missing after resync:\n%s", back)
	}
}

func TestUnlinkedTool_DefaultProbe(t *testing.T) {
	d := newDeps(t)
	target := createID(t, d, map[string]interface{}{"content": "Test Node"})
	mention := createID(t, d, map[string]interface{}{"content": "mentions Test Node here"})

	text := resultText(call(t, NewUnlinkedTool(d.nodes, d.links).Handle, map[string]interface{}{"id": target}))
	if !strings.Contains(text, target) || !strings.Contains(text, mention) {
		t.Errorf("link_unlinked:\n%s", text)
	}
}

// ─── Stats / Export ──────────────────────────────────────────────────────────

func TestStatsTool(t *testing.T) {
	d := newDeps(t)
	target := createID(t, d, map[string]interface{}{"content": "Hub"})
	createID(t, d, map[string]interface{}{"content": "[[Hub]]"})

	text := resultText(call(t, NewStatsTool(d.stats).Handle, nil))
	for _, want := range []string{"**Blocks**: 2", "**Links**: 1", "Most linked", target} {
		if !strings.Contains(text, want) {
			t.Errorf("note_stats missing %q:\n%s", want, text)
		}
	}

	text = resultText(call(t, NewStatsTool(d.stats).Handle, map[string]interface{}{"id": target}))
	if !strings.Contains(text, "**Backlinks**: 1") {
		t.Errorf("note_stats(id):\n%s", text)
	}
}

func TestExportTool(t *testing.T) {
	d := newDeps(t)
	h := NewExportTool(d.exp).Handle
	p := createID(t, d, map[string]interface{}{"content": "Top"})
	createID(t, d, map[string]interface{}{"content": "Nested", "parent_id": p})

	md := resultText(call(t, h, nil))
	if !strings.Contains(md, "# Note Export") || !strings.Contains(md, "* Top\n  * Nested\n") {
		t.Errorf("markdown export:\n%s", md)
	}

	sub := resultText(call(t, h, map[string]interface{}{"id": p}))
	if sub != "* Top\n  * Nested\n" {
		t.Errorf("subtree export = %q", sub)
	}

	var doc export.Document
	if err := json.Unmarshal([]byte(resultText(call(t, h, map[string]interface{}{"format": "json"}))), &doc); err != nil {
		t.Fatalf("json export: %v", err)
	}
	if len(doc.Nodes) != 2 || doc.Version != "test" {
		t.Errorf("json export = %+v", doc)
	}

	if res := call(t, h, map[string]interface{}{"format": "pdf"}); !res.IsError {
		t.Error("unknown format should fail")
	}
}
