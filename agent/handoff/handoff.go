package handoff

import (
	"strings"

	statex "github.com/rentalgenie/rental-genie-agent/agent/state"
)

// Decision is the outcome of evaluating one turn against the escalation
// rules. Priority none means the agent keeps the conversation.
type Decision struct {
	Priority statex.Priority
	Reason   string
}

// Reason strings are part of the notification surface; operators filter
// Slack alerts on them.
const (
	ReasonHumanRequest  = "explicit human request"
	ReasonRepeatedMiss  = "repeated failure to extract information"
	ReasonEmotional     = "emotional situation detected"
	ReasonLowConfidence = "low agent confidence"
	ReasonOutOfScope    = "out-of-scope query"
)

// Config holds the externally tunable thresholds and keyword sets.
type Config struct {
	// HumanRequestKeywords escalate immediately when present in the latest
	// user message.
	HumanRequestKeywords []string
	// EmotionalKeywords escalate when at least EmotionalThreshold of them
	// appear in one message.
	EmotionalKeywords  []string
	EmotionalThreshold int
	// OutOfScopeKeywords mark legal/financial/policy questions the agent
	// must not answer.
	OutOfScopeKeywords []string
	// MaxExtractionMisses is the consecutive zero-accept turn count that
	// marks the agent as ineffective.
	MaxExtractionMisses int
	// MinConfidence is the confidence level below which the agent no longer
	// trusts its own replies.
	MinConfidence float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HumanRequestKeywords: []string{
			"speak to someone", "human agent", "real person", "talk to owner",
			"speak to landlord", "talk to human", "speak to manager",
			"contact owner", "speak to property owner", "talk to someone real",
			"human help", "speak with owner", "contact landlord",
		},
		EmotionalKeywords: []string{
			"frustrated", "angry", "upset", "disappointed", "not happy",
			"unhappy", "urgent", "emergency", "asap", "immediately",
			"right now", "complicated", "complex", "difficult", "problem",
			"issue", "trouble",
		},
		EmotionalThreshold: 2,
		OutOfScopeKeywords: []string{
			"lawyer", "legal action", "sue", "lawsuit", "discrimination",
			"eviction", "deposit dispute", "contract clause", "tax",
			"insurance claim", "housing benefit", "subsidy",
		},
		MaxExtractionMisses: 3,
		MinConfidence:       0.70,
	}
}

// rule pairs a predicate with its fixed outcome. Rules are evaluated in
// order and the first match wins; ordering is the tie-break policy.
type rule struct {
	name string
	eval func(in input) (Decision, bool)
}

type input struct {
	latestMessage    string
	extractionMisses int
	confidenceLevel  float64
}

// Engine evaluates escalation rules. It never mutates session or profile
// state.
type Engine struct {
	cfg   Config
	rules []rule
}

func New(cfg Config) *Engine {
	if cfg.EmotionalThreshold <= 0 {
		cfg.EmotionalThreshold = 2
	}
	if cfg.MaxExtractionMisses <= 0 {
		cfg.MaxExtractionMisses = 3
	}
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 1 {
		cfg.MinConfidence = 0.70
	}

	e := &Engine{cfg: cfg}
	e.rules = []rule{
		{name: "human_request", eval: e.humanRequest},
		{name: "repeated_miss", eval: e.repeatedMiss},
		{name: "emotional", eval: e.emotional},
		{name: "low_confidence", eval: e.lowConfidence},
		{name: "out_of_scope", eval: e.outOfScope},
	}
	return e
}

// Decide evaluates the session and profile after a processed turn and
// returns the first matching escalation, or priority none.
func (e *Engine) Decide(session *statex.ConversationSession, _ *statex.TenantProfile) Decision {
	if session == nil {
		return Decision{Priority: statex.PriorityNone}
	}

	in := input{
		latestMessage:    strings.ToLower(session.LatestUserMessage()),
		extractionMisses: session.ExtractionMisses,
		confidenceLevel:  session.ConfidenceLevel,
	}

	for _, r := range e.rules {
		if d, ok := r.eval(in); ok {
			return d
		}
	}
	return Decision{Priority: statex.PriorityNone}
}

func (e *Engine) humanRequest(in input) (Decision, bool) {
	if containsAny(in.latestMessage, e.cfg.HumanRequestKeywords) {
		return Decision{Priority: statex.PriorityUrgent, Reason: ReasonHumanRequest}, true
	}
	return Decision{}, false
}

func (e *Engine) repeatedMiss(in input) (Decision, bool) {
	if in.extractionMisses >= e.cfg.MaxExtractionMisses {
		return Decision{Priority: statex.PriorityHigh, Reason: ReasonRepeatedMiss}, true
	}
	return Decision{}, false
}

func (e *Engine) emotional(in input) (Decision, bool) {
	count := 0
	for _, kw := range e.cfg.EmotionalKeywords {
		if kw != "" && strings.Contains(in.latestMessage, kw) {
			count++
		}
	}
	if count >= e.cfg.EmotionalThreshold {
		return Decision{Priority: statex.PriorityHigh, Reason: ReasonEmotional}, true
	}
	return Decision{}, false
}

func (e *Engine) lowConfidence(in input) (Decision, bool) {
	if in.confidenceLevel < e.cfg.MinConfidence {
		return Decision{Priority: statex.PriorityMedium, Reason: ReasonLowConfidence}, true
	}
	return Decision{}, false
}

func (e *Engine) outOfScope(in input) (Decision, bool) {
	if containsAny(in.latestMessage, e.cfg.OutOfScopeKeywords) {
		return Decision{Priority: statex.PriorityMedium, Reason: ReasonOutOfScope}, true
	}
	return Decision{}, false
}

func containsAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
