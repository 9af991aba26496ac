package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	contractx "github.com/rentalgenie/rental-genie-agent/agent/contract"
	statusx "github.com/rentalgenie/rental-genie-agent/agent/status"
)

var (
	ErrInvalidSession   = errors.New("session id is empty")
	ErrInvalidPlatform  = errors.New("unknown platform")
	ErrUnknownSession   = errors.New("unknown session")
	ErrAlreadyHandedOff = errors.New("session already handed off")
)

// DefaultMinConfidence is the extraction confidence below which a field write
// is discarded.
const DefaultMinConfidence = 0.7

// MergeResult reports which candidate fields survived confidence gating.
// Rejections are not errors; they are the extraction-accuracy test surface.
type MergeResult struct {
	Accepted []string
	Rejected []string
}

type sessionEntry struct {
	session *ConversationSession
	profile *TenantProfile
}

// SessionStore is the in-memory source of truth for sessions and tenant
// profiles during a process's lifetime. Every mutating operation is atomic
// under the store lock; returned sessions and profiles are defensive copies.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	minConfidence float64
	now           func() time.Time
}

// StoreOption customizes a SessionStore.
type StoreOption func(*SessionStore)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMinConfidence overrides the confidence-gating threshold.
func WithMinConfidence(min float64) StoreOption {
	return func(s *SessionStore) {
		if min >= 0 && min <= 1 {
			s.minConfidence = min
		}
	}
}

func NewSessionStore(opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		sessions:      make(map[string]*sessionEntry),
		minConfidence: DefaultMinConfidence,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GetOrCreate returns the session and profile for sessionID, creating both
// with status prospect when absent. Idempotent: a second call returns the
// existing pair untouched.
func (s *SessionStore) GetOrCreate(sessionID string, platform Platform, userID string) (*ConversationSession, *TenantProfile, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, ErrInvalidSession
	}
	if !platform.IsValid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		now := s.now()
		entry = &sessionEntry{
			session: newConversationSession(sessionID, platform, userID, now),
			profile: newTenantProfile(sessionID, now),
		}
		s.sessions[sessionID] = entry
	}
	return entry.session.clone(), entry.profile.clone(), nil
}

// Get returns the current session and profile for sessionID.
func (s *SessionStore) Get(sessionID string) (*ConversationSession, *TenantProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, nil, err
	}
	return entry.session.clone(), entry.profile.clone(), nil
}

// Append adds a message to the session's ordered log and refreshes
// last_activity. Missing message ids and timestamps are filled in.
func (s *SessionStore) Append(sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	entry.session.Messages = append(entry.session.Messages, msg)
	entry.session.LastActivity = now
	return nil
}

// MergeFields applies confidence-gated overwrite of extracted fields onto the
// profile. A candidate is written only when its confidence clears the store
// threshold and is not below the confidence of the field's previous accepted
// write; everything else lands in Rejected. Also maintains the session's
// consecutive extraction-miss counter.
func (s *SessionStore) MergeFields(sessionID string, fields map[string]contractx.ExtractedField) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return MergeResult{}, err
	}

	var res MergeResult
	for name, field := range fields {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if field.Confidence < s.minConfidence || field.Confidence < entry.profile.FieldConfidence[name] {
			res.Rejected = append(res.Rejected, name)
			continue
		}
		entry.profile.setField(name, field.Value)
		entry.profile.FieldConfidence[name] = field.Confidence
		res.Accepted = append(res.Accepted, name)
	}
	sort.Strings(res.Accepted)
	sort.Strings(res.Rejected)

	if len(res.Accepted) == 0 {
		entry.session.ExtractionMisses++
	} else {
		entry.session.ExtractionMisses = 0
		entry.profile.UpdatedAt = s.now().UTC()
	}
	return res, nil
}

// IncrementTurn bumps the profile's conversation turn counter by exactly one
// and returns the new count.
func (s *SessionStore) IncrementTurn(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return 0, err
	}
	entry.profile.ConversationTurns++
	entry.profile.UpdatedAt = s.now().UTC()
	return entry.profile.ConversationTurns, nil
}

// SetConfidence records the last computed agent confidence for the session.
func (s *SessionStore) SetConfidence(sessionID string, level float64) error {
	if level < 0 || level > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", contractx.ErrValidation, level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}
	entry.session.ConfidenceLevel = level
	return nil
}

// SetHandoff latches the session as handed off. The latch is one-way: a
// second call fails with ErrAlreadyHandedOff and leaves the original reason
// and priority in place.
func (s *SessionStore) SetHandoff(sessionID, reason string, priority Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}
	if entry.session.HandoffCompleted {
		return fmt.Errorf("%w: %s", ErrAlreadyHandedOff, sessionID)
	}

	now := s.now().UTC()
	entry.session.HandoffCompleted = true
	entry.session.HandoffReason = reason
	entry.session.EscalationPriority = priority
	entry.session.HandoffAt = &now
	entry.session.LastActivity = now
	return nil
}

// UpdateStatus transitions the profile's status through the lifecycle
// registry and returns the new status.
func (s *SessionStore) UpdateStatus(sessionID string, requested statusx.TenantStatus) (statusx.TenantStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return "", err
	}

	next, err := statusx.Transition(entry.profile.Status, requested)
	if err != nil {
		return "", err
	}
	entry.profile.Status = next
	entry.profile.UpdatedAt = s.now().UTC()
	return next, nil
}

// ListByStatus returns profile snapshots for every session currently in the
// given status.
func (s *SessionStore) ListByStatus(st statusx.TenantStatus) []*TenantProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TenantProfile
	for _, entry := range s.sessions {
		if entry.profile.Status == st {
			out = append(out, entry.profile.clone())
		}
	}
	sortProfiles(out)
	return out
}

// All returns profile snapshots for every known session.
func (s *SessionStore) All() []*TenantProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TenantProfile, 0, len(s.sessions))
	for _, entry := range s.sessions {
		out = append(out, entry.profile.clone())
	}
	sortProfiles(out)
	return out
}

// Snapshot returns a persistence-ready copy of one session and its profile.
func (s *SessionStore) Snapshot(sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Session: *entry.session.clone(),
		Profile: *entry.profile.clone(),
	}, nil
}

// Restore seeds the store with a snapshot loaded from durable storage.
// Existing in-memory state for the session is replaced.
func (s *SessionStore) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", contractx.ErrValidation)
	}
	if strings.TrimSpace(snap.Session.SessionID) == "" {
		return ErrInvalidSession
	}
	if snap.Session.SessionID != snap.Profile.SessionID {
		return fmt.Errorf("%w: snapshot session/profile id mismatch", contractx.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session := snap.Session
	profile := snap.Profile
	if profile.Extra == nil {
		profile.Extra = make(map[string]string)
	}
	if profile.FieldConfidence == nil {
		profile.FieldConfidence = make(map[string]float64)
	}
	s.sessions[session.SessionID] = &sessionEntry{
		session: session.clone(),
		profile: profile.clone(),
	}
	return nil
}

func (s *SessionStore) entry(sessionID string) (*sessionEntry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return entry, nil
}

func sortProfiles(profiles []*TenantProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].SessionID < profiles[j].SessionID
	})
}
