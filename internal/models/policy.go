package models

import "time"

// ErrorKind classifies a reported node failure for the policy engine.
type ErrorKind string

const (
	ErrorTransient           ErrorKind = "TRANSIENT"
	ErrorPermanent           ErrorKind = "PERMANENT"
	ErrorTimeout             ErrorKind = "TIMEOUT"
	ErrorValidation          ErrorKind = "VALIDATION"
	ErrorExternalUnavailable ErrorKind = "EXTERNAL_UNAVAILABLE"
	ErrorUILocateFailure     ErrorKind = "UI_LOCATE_FAILURE"
	ErrorAuth                ErrorKind = "AUTH"
	ErrorUnknown             ErrorKind = "UNKNOWN"
)

// ErrorContext describes one failure reported by a robot for a node within
// a running job, the input to the Per-Job Recovery Policy Engine.
type ErrorContext struct {
	JobID      string
	NodeID     string
	NodeKind   string
	RobotID    string
	ErrorKind  ErrorKind
	Severity   int
	RetryCount int
	Message    string
}

// ActionKind is the recovery action selected by a policy rule.
type ActionKind string

const (
	ActionRetry      ActionKind = "RETRY"
	ActionSkip       ActionKind = "SKIP"
	ActionFallback   ActionKind = "FALLBACK"
	ActionCompensate ActionKind = "COMPENSATE"
	ActionAbort      ActionKind = "ABORT"
	ActionEscalate   ActionKind = "ESCALATE"
)

// Action is the decision returned by the policy engine for one ErrorContext.
type Action struct {
	Kind ActionKind

	// RETRY
	DelayMS int64

	// FALLBACK
	FallbackValue  string
	FallbackNodeID string

	// COMPENSATE
	CompensateNodeIDs []string

	// ESCALATE
	Message          string
	WaitForResponse  bool
	TimeoutSeconds   int
	DefaultOnTimeout ActionKind
}

// BreakerState is the circuit breaker FSM state, per spec §3/§4.7.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSnapshot is a read-only view of one circuit breaker's state,
// returned by GetDispatcherStats-style observability reads.
type BreakerSnapshot struct {
	Key               string
	State             BreakerState
	FailureCount      int
	SuccessCount      int
	LastFailureAt     time.Time
	LastTransitionAt  time.Time
}

// PolicyRule matches an ErrorContext and names the Action to apply when it
// is the first rule, in list order, whose Matches predicate succeeds.
type PolicyRule struct {
	Name       string
	NodeKind   string // "" matches any node kind
	ErrorKinds []ErrorKind // empty matches any error kind
	MaxRetries int
	Action     ActionKind
	// Parameters feeding the constructed Action when Action requires them.
	FallbackValue     string
	FallbackNodeID    string
	CompensateNodeIDs []string
	EscalateMessage   string
	WaitForResponse   bool
	TimeoutSeconds    int
	DefaultOnTimeout  ActionKind
}

// Matches reports whether rule applies to ec.
func (rule PolicyRule) Matches(ec ErrorContext) bool {
	if rule.NodeKind != "" && rule.NodeKind != ec.NodeKind {
		return false
	}
	if len(rule.ErrorKinds) > 0 {
		found := false
		for _, k := range rule.ErrorKinds {
			if k == ec.ErrorKind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
