// Package prompts implements MCP prompt handlers for note taking.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// DailyReviewPrompt handles the note-daily-review MCP prompt.
// It guides the AI through the journal page of a day.
type DailyReviewPrompt struct {
	today func() string
}

// NewDailyReviewPrompt creates a DailyReviewPrompt. today returns the
// default date as YYYY-MM-DD.
func NewDailyReviewPrompt(today func() string) *DailyReviewPrompt {
	return &DailyReviewPrompt{today: today}
}

// Definition returns the MCP prompt definition for registration.
func (p *DailyReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("note-daily-review",
		mcp.WithPromptDescription(
			"Review a day: open its journal page, look at what changed recently, "+
				"and summarise open items.",
		),
		mcp.WithArgument("date",
			mcp.ArgumentDescription("Date as YYYY-MM-DD. Default: today"),
		),
	)
}

// Handle processes the note-daily-review prompt request.
func (p *DailyReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	date := p.today()
	if d, ok := req.Params.Arguments["date"]; ok && d != "" {
		date = d
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Daily review: %s", date),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Let's review my notes for %s.\n\n"+
						"Please:\n"+
						"1. Run `note_daily` with date='%s' and then `note_tree` on the returned ID\n"+
						"2. Run `note_recent` to see what else I changed lately\n"+
						"3. Run `note_by_tag` with tag='#todo' and list the items still open\n"+
						"4. Summarise the day in a few bullets and ask whether to add them to the journal page "+
						"with `note_create` (parent_id = the journal page ID)",
					date, date,
				)),
			},
		},
	}, nil
}
