package state

import (
	"time"

	contractx "github.com/rentalgenie/rental-genie-agent/agent/contract"
)

// Platform identifies the inbound channel a session arrived on.
type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformWeb      Platform = "web"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformTelegram Platform = "telegram"
	PlatformEmail    Platform = "email"
)

func (p Platform) IsValid() bool {
	switch p {
	case PlatformFacebook, PlatformWeb, PlatformWhatsApp, PlatformTelegram, PlatformEmail:
		return true
	}
	return false
}

// Role is the author of a conversation message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Priority is the escalation level attached to a handoff decision.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Message is one entry in a session's ordered conversation log.
type Message struct {
	ID        string                              `json:"id"`
	Role      Role                                `json:"role"`
	Content   string                              `json:"content"`
	Extracted map[string]contractx.ExtractedField `json:"extracted,omitempty"`
	// Confidence is the extractor's overall confidence for the turn that
	// produced this message, when one was computed.
	Confidence *float64  `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConversationSession is one continuous conversation thread. It owns the
// message log and the one-way handoff latch; the tenant profile lives beside
// it under the same session id.
type ConversationSession struct {
	SessionID string   `json:"session_id"`
	Platform  Platform `json:"platform"`
	UserID    string   `json:"user_id,omitempty"`

	Messages []Message `json:"messages"`

	HandoffCompleted   bool       `json:"handoff_completed"`
	HandoffReason      string     `json:"handoff_reason,omitempty"`
	HandoffAt          *time.Time `json:"handoff_at,omitempty"`
	EscalationPriority Priority   `json:"escalation_priority,omitempty"`

	// ConfidenceLevel is the last computed agent confidence in [0,1].
	ConfidenceLevel float64 `json:"confidence_level"`

	// ExtractionMisses counts consecutive processed turns where no extracted
	// field was accepted. Reset on any accepted field.
	ExtractionMisses int `json:"extraction_misses"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func newConversationSession(sessionID string, platform Platform, userID string, now time.Time) *ConversationSession {
	return &ConversationSession{
		SessionID:       sessionID,
		Platform:        platform,
		UserID:          userID,
		ConfidenceLevel: 1.0,
		CreatedAt:       now.UTC(),
		LastActivity:    now.UTC(),
	}
}

// LatestUserMessage returns the content of the most recent user message, or
// the empty string when none exists.
func (s *ConversationSession) LatestUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Recent returns up to n trailing messages in chronological order.
func (s *ConversationSession) Recent(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	start := len(s.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

func (s *ConversationSession) clone() *ConversationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	for i := range out.Messages {
		if src := s.Messages[i].Extracted; src != nil {
			dst := make(map[string]contractx.ExtractedField, len(src))
			for k, v := range src {
				dst[k] = v
			}
			out.Messages[i].Extracted = dst
		}
		if src := s.Messages[i].Confidence; src != nil {
			c := *src
			out.Messages[i].Confidence = &c
		}
	}
	if s.HandoffAt != nil {
		at := *s.HandoffAt
		out.HandoffAt = &at
	}
	return &out
}
