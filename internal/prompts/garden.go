package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// LinkGardenPrompt handles the note-link-garden MCP prompt.
// It asks the AI to turn plain mentions of a block into [[links]].
type LinkGardenPrompt struct{}

// NewLinkGardenPrompt creates a LinkGardenPrompt.
func NewLinkGardenPrompt() *LinkGardenPrompt {
	return &LinkGardenPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *LinkGardenPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("note-link-garden",
		mcp.WithPromptDescription(
			"Find blocks that mention a block without linking to it and propose [[links]].",
		),
		mcp.WithArgument("id",
			mcp.ArgumentDescription("Block ID to gather mentions for"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the note-link-garden prompt request.
func (p *LinkGardenPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := req.Params.Arguments["id"]
	if id == "" {
		return nil, fmt.Errorf("argument 'id' is required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Link gardening for %s", id),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Help me connect my notes to block %s.\n\n"+
						"Please:\n"+
						"1. Run `note_get` with id='%s' to see its content\n"+
						"2. Run `link_backlinks` and `link_unlinked` with id='%s'\n"+
						"3. For each unlinked mention, show the sentence and the edit that wraps the mention in [[double brackets]]\n"+
						"4. Only after I confirm, apply each edit with `note_update`; links are re-indexed on save",
					id, id, id,
				)),
			},
		},
	}, nil
}
