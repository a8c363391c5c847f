package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common Cadence workflows.
func RegisterPrompts(srv *mcp.Server, deps Dependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("relationship_review").
		Description("Review pending and recent communications and plan follow-ups.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Relationship Review", `Review my outgoing communications:

1. Read cadence://communications/pending for what is already queued
2. Read cadence://communications/history for what was sent or failed this week
3. Read cadence://channels to see which channels are connected

Then:
- Point out failed sends and whether they should be retried on another channel
- Suggest follow-ups for conversations that went quiet
- Flag anything queued on a disconnected channel

Use comms.submit to schedule follow-ups and comms.reschedule or comms.cancel to adjust the queue.
If comms.submit reports a conflict, ask me before retrying with replace_existing.`), nil
		})

	srv.Prompt("crisis_response").
		Description("Respond quickly to a contact in distress.").
		Argument("contact_id", "Contact who needs a response", true).
		Argument("summary", "What was detected", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			contact := args["contact_id"]
			if contact == "" {
				contact = "[contact id]"
			}
			summary := args["summary"]
			if summary == "" {
				summary = "no details given"
			}
			return userPrompt("Crisis Response", fmt.Sprintf(`A contact may need help right away.

**Contact:** %s
**Detected:** %s

Call comms.signal with kind "crisis" and contact_id %q to queue an immediate,
high-priority check-in on their preferred channel. Then read
cadence://communications/pending to confirm it was scheduled and tell me when it will go out.`,
				contact, summary, contact)), nil
		})

	return nil
}

func userPrompt(description, text string) *mcp.PromptResult {
	return &mcp.PromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: string(mcp.RoleUser),
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}
