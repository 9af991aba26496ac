package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/rentalgenie/rental-genie-agent/agent/contract"
	handoffx "github.com/rentalgenie/rental-genie-agent/agent/handoff"
	statex "github.com/rentalgenie/rental-genie-agent/agent/state"
	statusx "github.com/rentalgenie/rental-genie-agent/agent/status"
)

// Config tunes the conversation engine. Zero values fall back to defaults in
// New.
type Config struct {
	// RecentMessages is the size of the trailing conversation window included
	// in handoff payloads.
	RecentMessages int
	// AllowEmptyMessages tolerates blank inbound messages instead of
	// rejecting them.
	AllowEmptyMessages bool
	// FallbackReply is returned whenever response generation fails; the end
	// user never sees an empty response.
	FallbackReply string
	// DisclosurePhrases must never appear in a reply sent on the turn that
	// escalates; the takeover is invisible to the end user.
	DisclosurePhrases []string

	ExtractTimeout time.Duration
	ReplyTimeout   time.Duration
	NotifyTimeout  time.Duration
}

const (
	defaultRecentMessages = 10
	defaultFallbackReply  = "Thanks for your message! Let me check that and get back to you in a moment."
	defaultCallTimeout    = 15 * time.Second
)

func defaultDisclosurePhrases() []string {
	return []string{
		"transferring you", "transfer you to", "human agent will",
		"a human will", "escalat", "handing you over", "hand you over",
		"passing you to", "someone from our team will take over",
	}
}

// TurnResult is what one processed inbound message produced.
type TurnResult struct {
	SessionID string
	Reply     string
	// LoggedOnly is set when the session was already handed off: the message
	// was appended and counted, and the agent stayed silent.
	LoggedOnly bool

	Status            statusx.TenantStatus
	ConversationTurns int
	AcceptedFields    []string
	RejectedFields    []string

	// HandoffTriggered is set only on the turn that latched the handoff.
	HandoffTriggered bool
	Priority         statex.Priority
	HandoffReason    string
}

// Engine drives one session's turn-by-turn update: ingest, extract, merge,
// recompute status, evaluate handoff, reply. Messages for the same session
// are serialized; distinct sessions run in parallel.
type Engine struct {
	store     *statex.SessionStore
	extractor contractx.Extractor
	responder contractx.ResponseGenerator
	notifier  contractx.Notifier
	decider   *handoffx.Engine
	snapshots statex.Store

	cfg Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSnapshotStore attaches durable snapshot persistence; saves are
// best-effort after each mutating turn.
func WithSnapshotStore(store statex.Store) Option {
	return func(e *Engine) {
		e.snapshots = store
	}
}

func New(
	store *statex.SessionStore,
	extractor contractx.Extractor,
	responder contractx.ResponseGenerator,
	notifier contractx.Notifier,
	decider *handoffx.Engine,
	cfg Config,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if responder == nil {
		return nil, errors.New("response generator is required")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if decider == nil {
		decider = handoffx.New(handoffx.DefaultConfig())
	}

	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = defaultRecentMessages
	}
	if strings.TrimSpace(cfg.FallbackReply) == "" {
		cfg.FallbackReply = defaultFallbackReply
	}
	if len(cfg.DisclosurePhrases) == 0 {
		cfg.DisclosurePhrases = defaultDisclosurePhrases()
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = defaultCallTimeout
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultCallTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultCallTimeout
	}

	e := &Engine{
		store:     store,
		extractor: extractor,
		responder: responder,
		notifier:  notifier,
		decider:   decider,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HandleMessage processes one inbound user message for a session. Concurrent
// calls for the same session id are serialized to keep the turn counter and
// the handoff latch consistent.
func (e *Engine) HandleMessage(ctx context.Context, sessionID string, platform statex.Platform, userID, text string) (TurnResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return TurnResult{}, statex.ErrInvalidSession
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" && !e.cfg.AllowEmptyMessages {
		return TurnResult{}, fmt.Errorf("%w: session=%s", contractx.ErrEmptyMessage, sessionID)
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, profile, err := e.store.GetOrCreate(sessionID, platform, userID)
	if err != nil {
		return TurnResult{}, err
	}

	if err := e.store.Append(sessionID, statex.Message{
		Role:    statex.RoleUser,
		Content: trimmed,
	}); err != nil {
		return TurnResult{}, err
	}
	turns, err := e.store.IncrementTurn(sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	res := TurnResult{
		SessionID:         sessionID,
		Status:            profile.Status,
		ConversationTurns: turns,
	}

	// Already escalated: log the message, say nothing, touch nothing else.
	if session.HandoffCompleted {
		res.LoggedOnly = true
		res.Priority = session.EscalationPriority
		return res, nil
	}

	extraction := e.extract(ctx, trimmed, profile)

	merge, err := e.store.MergeFields(sessionID, extraction.Fields)
	if err != nil {
		return TurnResult{}, err
	}
	res.AcceptedFields = merge.Accepted
	res.RejectedFields = merge.Rejected

	if err := e.store.SetConfidence(sessionID, clamp01(extraction.OverallConfidence)); err != nil {
		return TurnResult{}, err
	}

	session, profile, err = e.store.Get(sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	// The only transition the engine triggers on its own; everything else
	// goes through AdvanceStatus.
	if profile.Status == statusx.Prospect && profile.IsComplete() {
		next, err := e.store.UpdateStatus(sessionID, statusx.Qualified)
		if err != nil {
			return TurnResult{}, err
		}
		profile.Status = next
	}
	res.Status = profile.Status

	decision := e.decider.Decide(session, profile)
	escalated := decision.Priority != statex.PriorityNone && decision.Priority != ""
	if escalated && !session.HandoffCompleted {
		if err := e.store.SetHandoff(sessionID, decision.Reason, decision.Priority); err != nil {
			return TurnResult{}, err
		}
		res.HandoffTriggered = true
		res.Priority = decision.Priority
		res.HandoffReason = decision.Reason

		e.dispatchNotification(ctx, session, profile, decision)
	}

	reply := e.reply(ctx, trimmed, profile)
	if res.HandoffTriggered {
		reply = e.scrubDisclosure(reply)
	}
	res.Reply = reply

	if err := e.store.Append(sessionID, statex.Message{
		Role:       statex.RoleAgent,
		Content:    reply,
		Extracted:  extraction.Fields,
		Confidence: ptr(clamp01(extraction.OverallConfidence)),
	}); err != nil {
		return TurnResult{}, err
	}

	e.saveSnapshot(ctx, sessionID)
	return res, nil
}

// AdvanceStatus performs an explicit, externally requested lifecycle
// transition (viewing scheduled, application submitted, and so on).
func (e *Engine) AdvanceStatus(ctx context.Context, sessionID string, requested statusx.TenantStatus) (statusx.TenantStatus, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	next, err := e.store.UpdateStatus(sessionID, requested)
	if err != nil {
		return "", err
	}
	e.saveSnapshot(ctx, sessionID)
	return next, nil
}

// extract invokes the extractor with a bounded timeout. Failures degrade to
// "no fields extracted this turn": the turn proceeds, the cause is logged.
func (e *Engine) extract(ctx context.Context, text string, profile *statex.TenantProfile) contractx.ExtractionResult {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExtractTimeout)
	defer cancel()

	result, err := e.extractor.Extract(callCtx, text, profileContext(profile))
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", profile.SessionID).
			Msg("extraction failed, proceeding with no fields")
		return contractx.ExtractionResult{
			Fields:            map[string]contractx.ExtractedField{},
			OverallConfidence: profileConfidenceFallback,
		}
	}
	if result.Fields == nil {
		result.Fields = map[string]contractx.ExtractedField{}
	}
	return result
}

// profileConfidenceFallback keeps a failed extraction from reading as "the
// agent is unsure of its reply"; ineffectiveness is tracked by the
// consecutive-miss counter instead.
const profileConfidenceFallback = 1.0

// reply invokes the response generator with a bounded timeout, degrading to
// the configured fallback so the user never sees an empty response.
func (e *Engine) reply(ctx context.Context, text string, profile *statex.TenantProfile) string {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
	defer cancel()

	reply, err := e.responder.Reply(callCtx, text, profileContext(profile))
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Warn().
				Err(err).
				Str("session_id", profile.SessionID).
				Msg("response generation failed, using fallback reply")
		}
		return e.cfg.FallbackReply
	}
	return strings.TrimSpace(reply)
}

// dispatchNotification fires the handoff payload at the notifier. Errors are
// logged and never block the reply.
func (e *Engine) dispatchNotification(ctx context.Context, session *statex.ConversationSession, profile *statex.TenantProfile, decision handoffx.Decision) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.NotifyTimeout)
	defer cancel()

	payload := contractx.HandoffPayload{
		SessionID:       session.SessionID,
		Platform:        string(session.Platform),
		Profile:         profile.Known(),
		Status:          string(profile.Status),
		Reason:          decision.Reason,
		Priority:        string(decision.Priority),
		ConversationSum: conversationSummary(session, profile),
	}
	for _, msg := range session.Recent(e.cfg.RecentMessages) {
		payload.RecentMessages = append(payload.RecentMessages, contractx.RecentMessage{
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}

	if err := e.notifier.Notify(callCtx, payload); err != nil {
		log.Error().
			Err(err).
			Str("session_id", session.SessionID).
			Str("priority", string(decision.Priority)).
			Msg("handoff notification failed")
	}
}

// scrubDisclosure replaces a reply that would reveal the escalation with the
// neutral fallback.
func (e *Engine) scrubDisclosure(reply string) string {
	lowered := strings.ToLower(reply)
	for _, phrase := range e.cfg.DisclosurePhrases {
		if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
			return e.cfg.FallbackReply
		}
	}
	return reply
}

func (e *Engine) saveSnapshot(ctx context.Context, sessionID string) {
	if e.snapshots == nil {
		return
	}
	snap, err := e.store.Snapshot(sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("snapshot read failed")
		return
	}
	if err := e.snapshots.Save(ctx, snap); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("snapshot save failed")
	}
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}
	return lock
}

func profileContext(profile *statex.TenantProfile) contractx.ProfileContext {
	return contractx.ProfileContext{
		Known:   profile.Known(),
		Missing: profile.MissingRequired(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func ptr[T any](v T) *T {
	return &v
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, contractx.HandoffPayload) error {
	return nil
}
