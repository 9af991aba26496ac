package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	contractx "github.com/rentalgenie/rental-genie-agent/agent/contract"
	slackx "github.com/rentalgenie/rental-genie-agent/pkg/slack"
)

// priorityColors map escalation priority to Slack attachment colors.
var priorityColors = map[string]string{
	"urgent": "#ff0000",
	"high":   "#ff9900",
	"medium": "#ffcc00",
	"low":    "#36a64f",
}

// SlackNotifier formats handoff payloads into Slack messages and posts them
// to an incoming webhook.
type SlackNotifier struct {
	client *slackx.Client
}

var _ contractx.Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(client *slackx.Client) (*SlackNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: slack client is required", contractx.ErrValidation)
	}
	return &SlackNotifier{client: client}, nil
}

func (n *SlackNotifier) Notify(ctx context.Context, payload contractx.HandoffPayload) error {
	if err := n.client.Post(ctx, formatHandoff(payload)); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrNotifier, err)
	}
	return nil
}

func formatHandoff(payload contractx.HandoffPayload) slackx.Message {
	color, ok := priorityColors[strings.ToLower(payload.Priority)]
	if !ok {
		color = priorityColors["low"]
	}

	fields := []slackx.Field{
		{Title: "Session", Value: payload.SessionID, Short: true},
		{Title: "Platform", Value: payload.Platform, Short: true},
		{Title: "Status", Value: payload.Status, Short: true},
		{Title: "Priority", Value: strings.ToUpper(payload.Priority), Short: true},
		{Title: "Reason", Value: payload.Reason},
	}

	if len(payload.Profile) > 0 {
		names := make([]string, 0, len(payload.Profile))
		for name := range payload.Profile {
			names = append(names, name)
		}
		sort.Strings(names)

		var b strings.Builder
		for _, name := range names {
			fmt.Fprintf(&b, "%s: %s\n", name, payload.Profile[name])
		}
		fields = append(fields, slackx.Field{Title: "Tenant Profile", Value: strings.TrimSpace(b.String())})
	}

	if len(payload.RecentMessages) > 0 {
		var b strings.Builder
		for _, msg := range payload.RecentMessages {
			fmt.Fprintf(&b, "*%s*: %s\n", msg.Role, msg.Content)
		}
		fields = append(fields, slackx.Field{Title: "Recent Messages", Value: strings.TrimSpace(b.String())})
	}

	attachment := slackx.Attachment{
		Color:  color,
		Title:  fmt.Sprintf("Handoff Required - %s Priority", strings.ToUpper(payload.Priority)),
		Text:   payload.ConversationSum,
		Fields: fields,
	}

	return slackx.Message{
		Text:        fmt.Sprintf("A conversation needs human attention (session %s)", payload.SessionID),
		Attachments: []slackx.Attachment{attachment},
	}
}
