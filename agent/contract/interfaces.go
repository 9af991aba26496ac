package contract

import "context"

// Extractor turns free text into candidate structured fields with per-field
// confidence in [0,1]. Implementations must not mutate their inputs.
type Extractor interface {
	Extract(ctx context.Context, text string, profile ProfileContext) (ExtractionResult, error)
}

// ResponseGenerator produces the assistant's outbound text for a turn.
type ResponseGenerator interface {
	Reply(ctx context.Context, text string, profile ProfileContext) (string, error)
}

// Notifier delivers a handoff payload to whoever takes over the conversation.
// Delivery is fire-and-forget from the engine's perspective; retry policy, if
// any, lives behind this interface.
type Notifier interface {
	Notify(ctx context.Context, payload HandoffPayload) error
}
