// Package notetools provides MCP tool handlers over the node repository
// and the link index.
//
// Each tool handler follows the same pattern:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Failures are reported as tool result errors, never as Go errors, so the
// client sees the message.
package notetools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChienNQuang/Note/internal/nodes"
	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// hasArg reports whether key was sent at all.
func hasArg(req mcp.CallToolRequest, key string) bool {
	_, ok := req.GetArguments()[key]
	return ok
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringsArg extracts a string array argument. Non-string items are skipped.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// objectArg extracts an object argument. A JSON string holding an object
// is accepted too, for clients that cannot send nested objects.
func objectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("'%s' must be a JSON object: %w", key, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("'%s' must be an object", key)
	}
}

// ─── Formatting ─────────────────────────────────────────────────────────────

// nodeLine renders a node as a one-line list item.
func nodeLine(n *nodes.Node) string {
	content := strings.ReplaceAll(n.Content, "\n", " ")
	if len(content) > 120 {
		content = content[:117] + "..."
	}
	line := fmt.Sprintf("- `%s` %s", n.ID, content)
	if len(n.Tags) > 0 {
		line += " " + strings.Join(n.Tags, " ")
	}
	if len(n.Children) > 0 {
		line += fmt.Sprintf(" (%d children)", len(n.Children))
	}
	return line
}

func nodeList(title string, ns []nodes.Node) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s (%d)\n\n", title, len(ns))
	if len(ns) == 0 {
		sb.WriteString("None.\n")
		return sb.String()
	}
	for i := range ns {
		sb.WriteString(nodeLine(&ns[i]))
		sb.WriteString("\n")
	}
	return sb.String()
}

func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}
