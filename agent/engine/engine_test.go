package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	contractx "github.com/rentalgenie/rental-genie-agent/agent/contract"
	handoffx "github.com/rentalgenie/rental-genie-agent/agent/handoff"
	statex "github.com/rentalgenie/rental-genie-agent/agent/state"
	statusx "github.com/rentalgenie/rental-genie-agent/agent/status"
)

type fakeExtractor struct {
	mu      sync.Mutex
	fn      func(text string) (contractx.ExtractionResult, error)
	calls   int
	lastCtx []string
}

func (f *fakeExtractor) Extract(_ context.Context, text string, profile contractx.ProfileContext) (contractx.ExtractionResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastCtx = profile.Missing
	f.mu.Unlock()
	if f.fn == nil {
		return contractx.ExtractionResult{OverallConfidence: 0.9}, nil
	}
	return f.fn(text)
}

type fakeResponder struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeResponder) Reply(context.Context, string, contractx.ProfileContext) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.reply == "" {
		return "Noted, thank you!", nil
	}
	return f.reply, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	payloads []contractx.HandoffPayload
}

func (f *fakeNotifier) Notify(_ context.Context, payload contractx.HandoffPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeSnapshots struct {
	mu    sync.Mutex
	saves []string
}

func (f *fakeSnapshots) Load(context.Context, string) (*statex.Snapshot, error) {
	return nil, statex.ErrSnapshotNotFound
}

func (f *fakeSnapshots) Save(_ context.Context, snap *statex.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, snap.Session.SessionID)
	return nil
}

func (f *fakeSnapshots) Delete(context.Context, string) error {
	return nil
}

func newTestEngine(t *testing.T, extractor *fakeExtractor, responder *fakeResponder, notifier *fakeNotifier, opts ...Option) *Engine {
	t.Helper()
	e, err := New(
		statex.NewSessionStore(),
		extractor,
		responder,
		notifier,
		handoffx.New(handoffx.DefaultConfig()),
		Config{},
		opts...,
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func fields(pairs map[string]float64) map[string]contractx.ExtractedField {
	out := make(map[string]contractx.ExtractedField, len(pairs))
	for name, conf := range pairs {
		out[name] = contractx.ExtractedField{Value: name + "-value", Confidence: conf}
	}
	return out
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExtractor{}, &fakeResponder{}, &fakeNotifier{})

	if _, err := e.HandleMessage(context.Background(), "  ", statex.PlatformWeb, "u1", "hello"); !errors.Is(err, statex.ErrInvalidSession) {
		t.Fatalf("empty session id error = %v, want ErrInvalidSession", err)
	}
	if _, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "   "); !errors.Is(err, contractx.ErrEmptyMessage) {
		t.Fatalf("blank message error = %v, want ErrEmptyMessage", err)
	}
}

func TestEndToEndQualification(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{
		fn: func(text string) (contractx.ExtractionResult, error) {
			switch {
			case strings.Contains(text, "I am 25"):
				return contractx.ExtractionResult{
					Fields: map[string]contractx.ExtractedField{
						"age": {Value: "25", Confidence: 0.9},
					},
					OverallConfidence: 0.9,
				}, nil
			case strings.Contains(text, "engineer"):
				return contractx.ExtractionResult{
					Fields: map[string]contractx.ExtractedField{
						"occupation": {Value: "engineer", Confidence: 0.85},
					},
					OverallConfidence: 0.85,
				}, nil
			case strings.Contains(text, "March"):
				return contractx.ExtractionResult{
					Fields: map[string]contractx.ExtractedField{
						"move_in_date":     {Value: "March", Confidence: 0.8},
						"rental_duration":  {Value: "12 months", Confidence: 0.8},
						"guarantor_status": {Value: "has guarantor", Confidence: 0.75},
					},
					OverallConfidence: 0.8,
				}, nil
			default:
				return contractx.ExtractionResult{OverallConfidence: 0.9}, nil
			}
		},
	}
	notifier := &fakeNotifier{}
	e := newTestEngine(t, extractor, &fakeResponder{}, notifier)

	messages := []string{
		"Hi",
		"I am 25",
		"I work as an engineer",
		"I want to move in March for 12 months, I have a guarantor",
	}

	var res TurnResult
	var err error
	for _, msg := range messages {
		res, err = e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", msg)
		if err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", msg, err)
		}
	}

	if res.ConversationTurns != 4 {
		t.Fatalf("ConversationTurns = %d, want 4", res.ConversationTurns)
	}
	if res.Status != statusx.Qualified {
		t.Fatalf("Status = %s, want qualified", res.Status)
	}
	if res.HandoffTriggered {
		t.Fatal("unexpected handoff")
	}
	if len(notifier.payloads) != 0 {
		t.Fatalf("notifier called %d times, want 0", len(notifier.payloads))
	}
	if res.Reply == "" {
		t.Fatal("empty reply")
	}
}

func TestHandoffOnHumanRequest(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	e := newTestEngine(t, &fakeExtractor{}, &fakeResponder{}, notifier)

	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "Please, I want to speak to someone")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !res.HandoffTriggered {
		t.Fatal("expected handoff")
	}
	if res.Priority != statex.PriorityUrgent {
		t.Fatalf("Priority = %s, want urgent", res.Priority)
	}
	if res.HandoffReason != handoffx.ReasonHumanRequest {
		t.Fatalf("Reason = %q", res.HandoffReason)
	}
	if res.Reply == "" {
		t.Fatal("escalating turn must still return a reply")
	}

	if len(notifier.payloads) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.payloads))
	}
	payload := notifier.payloads[0]
	if payload.SessionID != "s1" || payload.Priority != "urgent" {
		t.Fatalf("payload = %+v", payload)
	}
	if len(payload.RecentMessages) == 0 || len(payload.RecentMessages) > defaultRecentMessages {
		t.Fatalf("recent messages = %d", len(payload.RecentMessages))
	}
	if payload.ConversationSum == "" {
		t.Fatal("payload missing conversation summary")
	}
}

func TestNoInterventionPostHandoff(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	responder := &fakeResponder{}
	e := newTestEngine(t, extractor, responder, &fakeNotifier{})

	if _, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "talk to human now"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	extractorCallsBefore := extractor.calls
	responderCallsBefore := responder.calls

	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "hello?")
	if err != nil {
		t.Fatalf("post-handoff HandleMessage() error = %v", err)
	}
	if !res.LoggedOnly {
		t.Fatal("expected logged-only result after handoff")
	}
	if res.Reply != "" {
		t.Fatalf("agent spoke after handoff: %q", res.Reply)
	}
	if res.ConversationTurns != 2 {
		t.Fatalf("ConversationTurns = %d, want 2", res.ConversationTurns)
	}
	if extractor.calls != extractorCallsBefore {
		t.Fatal("extractor invoked after handoff")
	}
	if responder.calls != responderCallsBefore {
		t.Fatal("responder invoked after handoff")
	}
}

func TestEscalationInvisibility(t *testing.T) {
	t.Parallel()

	responder := &fakeResponder{reply: "Sure - I am transferring you to a human agent right away!"}
	e := newTestEngine(t, &fakeExtractor{}, responder, &fakeNotifier{})

	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "give me a real person")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !res.HandoffTriggered {
		t.Fatal("expected handoff")
	}
	for _, phrase := range defaultDisclosurePhrases() {
		if strings.Contains(strings.ToLower(res.Reply), phrase) {
			t.Fatalf("reply discloses escalation: %q", res.Reply)
		}
	}
	if res.Reply == "" {
		t.Fatal("scrubbed reply must not be empty")
	}
}

func TestExtractorFailureDegrades(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{
		fn: func(string) (contractx.ExtractionResult, error) {
			return contractx.ExtractionResult{}, contractx.ErrExtraction
		},
	}
	e := newTestEngine(t, extractor, &fakeResponder{}, &fakeNotifier{})

	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "my name is Ana")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v, extractor failures must degrade", err)
	}
	if len(res.AcceptedFields) != 0 {
		t.Fatalf("AcceptedFields = %v, want none", res.AcceptedFields)
	}
	if res.Reply == "" {
		t.Fatal("turn must still produce a reply")
	}
}

func TestRepeatedExtractionFailureEscalates(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{
		fn: func(string) (contractx.ExtractionResult, error) {
			return contractx.ExtractionResult{OverallConfidence: 0.9}, nil
		},
	}
	notifier := &fakeNotifier{}
	e := newTestEngine(t, extractor, &fakeResponder{}, notifier)

	var res TurnResult
	var err error
	for _, msg := range []string{"one", "two", "three"} {
		res, err = e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", msg)
		if err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", msg, err)
		}
	}

	if !res.HandoffTriggered {
		t.Fatal("expected handoff after three zero-accept turns")
	}
	if res.Priority != statex.PriorityHigh || res.HandoffReason != handoffx.ReasonRepeatedMiss {
		t.Fatalf("result = %+v", res)
	}
}

func TestNotifierFailureDoesNotBlockReply(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{err: errors.New("slack down")}
	e := newTestEngine(t, &fakeExtractor{}, &fakeResponder{}, notifier)

	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "human help please")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v, notifier failures must not block", err)
	}
	if !res.HandoffTriggered {
		t.Fatal("expected handoff despite notifier failure")
	}
	if res.Reply == "" {
		t.Fatal("expected reply despite notifier failure")
	}
}

func TestResponderFailureFallsBack(t *testing.T) {
	t.Parallel()

	responder := &fakeResponder{err: errors.New("model down")}
	e := newTestEngine(t, &fakeExtractor{}, responder, &fakeNotifier{})

	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "hello")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if res.Reply != defaultFallbackReply {
		t.Fatalf("Reply = %q, want fallback", res.Reply)
	}
}

func TestConfidenceGatingAcrossTurns(t *testing.T) {
	t.Parallel()

	turn := 0
	extractor := &fakeExtractor{
		fn: func(string) (contractx.ExtractionResult, error) {
			turn++
			if turn == 1 {
				return contractx.ExtractionResult{
					Fields:            fields(map[string]float64{"age": 0.9}),
					OverallConfidence: 0.9,
				}, nil
			}
			return contractx.ExtractionResult{
				Fields:            fields(map[string]float64{"age": 0.5}),
				OverallConfidence: 0.9,
			}, nil
		},
	}
	e := newTestEngine(t, extractor, &fakeResponder{}, &fakeNotifier{})

	if _, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "first"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "second")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(res.RejectedFields) != 1 || res.RejectedFields[0] != "age" {
		t.Fatalf("RejectedFields = %v, want [age]", res.RejectedFields)
	}
	if len(res.AcceptedFields) != 0 {
		t.Fatalf("AcceptedFields = %v, want none", res.AcceptedFields)
	}
}

func TestAdvanceStatus(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExtractor{}, &fakeResponder{}, &fakeNotifier{})
	if _, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "hello"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	next, err := e.AdvanceStatus(context.Background(), "s1", statusx.Withdrawn)
	if err != nil {
		t.Fatalf("AdvanceStatus() error = %v", err)
	}
	if next != statusx.Withdrawn {
		t.Fatalf("AdvanceStatus() = %s", next)
	}

	if _, err := e.AdvanceStatus(context.Background(), "s1", statusx.Qualified); !errors.Is(err, statusx.ErrInvalidTransition) {
		t.Fatalf("AdvanceStatus(terminal) error = %v, want ErrInvalidTransition", err)
	}
}

func TestSnapshotSavedAfterTurn(t *testing.T) {
	t.Parallel()

	snapshots := &fakeSnapshots{}
	e := newTestEngine(t, &fakeExtractor{}, &fakeResponder{}, &fakeNotifier{}, WithSnapshotStore(snapshots))

	if _, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "hello"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(snapshots.saves) != 1 || snapshots.saves[0] != "s1" {
		t.Fatalf("snapshot saves = %v, want [s1]", snapshots.saves)
	}
}

func TestConcurrentSameSessionSerialized(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExtractor{}, &fakeResponder{}, &fakeNotifier{})

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "counting turns"); err != nil {
				t.Errorf("HandleMessage() error = %v", err)
			}
		}()
	}
	wg.Wait()

	res, err := e.HandleMessage(context.Background(), "s1", statex.PlatformWeb, "u1", "final")
	if err != nil {
		t.Fatalf("final HandleMessage() error = %v", err)
	}
	if res.ConversationTurns != workers+1 {
		t.Fatalf("ConversationTurns = %d, want %d", res.ConversationTurns, workers+1)
	}
}
