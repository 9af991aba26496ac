package engine

import (
	"fmt"
	"strings"

	statex "github.com/rentalgenie/rental-genie-agent/agent/state"
)

const summaryContextTurns = 3

// conversationSummary renders the operator-facing summary embedded in a
// handoff notification: collected profile fields plus the last few exchanges.
func conversationSummary(session *statex.ConversationSession, profile *statex.TenantProfile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Conversation Summary (Session: %s)\n", session.SessionID)
	fmt.Fprintf(&b, "- Total turns: %d\n", profile.ConversationTurns)
	fmt.Fprintf(&b, "- Status: %s\n", profile.Status)

	known := profile.Known()
	if len(known) > 0 {
		b.WriteString("\nCollected information:\n")
		for _, name := range []string{
			statex.FieldAge, statex.FieldSex, statex.FieldOccupation,
			statex.FieldMoveInDate, statex.FieldRentalDuration,
			statex.FieldGuarantorStatus, statex.FieldGuarantorDetails,
			statex.FieldViewingInterest, statex.FieldAvailability,
			statex.FieldLanguagePreference, statex.FieldPropertyInterest,
		} {
			if v, ok := known[name]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", name, v)
			}
		}
	}

	if missing := profile.MissingRequired(); len(missing) > 0 {
		fmt.Fprintf(&b, "\nStill missing: %s\n", strings.Join(missing, ", "))
	}

	recent := session.Recent(summaryContextTurns * 2)
	if len(recent) > 0 {
		b.WriteString("\nRecent context:\n")
		for _, msg := range recent {
			fmt.Fprintf(&b, "- %s: %s\n", msg.Role, truncate(msg.Content, 100))
		}
	}

	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
