package contract

import "time"

// ExtractedField is one candidate profile field produced by the extractor
// for a single user message.
type ExtractedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult carries the full extractor output for one message.
// OverallConfidence is the extractor's certainty about the turn as a whole,
// independent of per-field confidence.
type ExtractionResult struct {
	Fields            map[string]ExtractedField `json:"fields"`
	OverallConfidence float64                   `json:"overall_confidence"`
}

// ProfileContext is the read-only profile view handed to the extractor so it
// can disambiguate follow-up answers ("yes, in March" etc.) against what is
// already known.
type ProfileContext struct {
	Known   map[string]string `json:"known"`
	Missing []string          `json:"missing"`
}

// RecentMessage is one entry of the trailing conversation window included in
// a handoff payload.
type RecentMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HandoffPayload is the contract a Notifier implementation must accept.
type HandoffPayload struct {
	SessionID       string            `json:"session_id"`
	Platform        string            `json:"platform"`
	Profile         map[string]string `json:"profile_snapshot"`
	Status          string            `json:"status"`
	Reason          string            `json:"reason"`
	Priority        string            `json:"priority"`
	ConversationSum string            `json:"conversation_summary,omitempty"`
	RecentMessages  []RecentMessage   `json:"recent_messages"`
}
