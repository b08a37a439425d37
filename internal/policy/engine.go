// Package policy implements the per-job recovery policy engine
// (component C7): given a reported node failure, decide whether to retry,
// skip, fall back, compensate, abort, or escalate, gating RETRY on a
// circuit breaker registry. Grounded on the teacher's
// pkg/resilience/circuit_breaker.go for the breaker half and the spec's
// own ordering rule for rule evaluation (no teacher analogue exists for
// per-node recovery policy — workflow-level retry policy in
// pkg/models/job.go's RetryPolicy is the closest precedent).
package policy

import (
	"fmt"

	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/recovery"
	"casare-orchestrator/internal/resilience"
	"casare-orchestrator/internal/telemetry"
)

// Engine evaluates an ordered list of PolicyRule against reported error
// contexts and holds the circuit breaker registry keyed by (robot_id,
// node_kind) or node_id, per spec §4.7.
type Engine struct {
	rules    []models.PolicyRule
	breakers *resilience.Registry
	backoff  []int
}

// New constructs an Engine from rules, evaluated top-to-bottom per spec
// §4.7 "Ordering": the first matching rule's action applies.
func New(rules []models.PolicyRule, breakerCfg resilience.Config, backoffSeconds []int) *Engine {
	return &Engine{
		rules:    rules,
		breakers: resilience.NewRegistry(breakerCfg),
		backoff:  backoffSeconds,
	}
}

// BreakerKey formats the circuit breaker key for an error context, keyed by
// (robot_id, node_kind) as the primary axis per spec §3/§4.7.
func BreakerKey(ec models.ErrorContext) string {
	if ec.RobotID != "" && ec.NodeKind != "" {
		return fmt.Sprintf("%s:%s", ec.RobotID, ec.NodeKind)
	}
	return ec.NodeID
}

// Decide applies the first matching rule to ec and returns the resulting
// Action. If the matched action is RETRY but the relevant circuit breaker
// is OPEN, RETRY is denied and the engine returns ESCALATE instead; later
// rules are not consulted.
func (e *Engine) Decide(ec models.ErrorContext) models.Action {
	rule, ok := e.match(ec)
	if !ok {
		return e.defaultAction(ec)
	}

	action := buildAction(rule, ec, e.backoff)

	if action.Kind == models.ActionRetry {
		breaker := e.breakers.Get(BreakerKey(ec))
		if !breaker.Allow() {
			telemetry.PolicyActionsTotal.WithLabelValues("retry_denied_breaker_open").Inc()
			action = e.fallthroughAfterDeniedRetry(ec)
		}
	}

	telemetry.PolicyActionsTotal.WithLabelValues(string(action.Kind)).Inc()
	return action
}

// RecordOutcome reports whether the node execution that followed a RETRY
// decision succeeded, feeding the circuit breaker's state machine (spec
// §4.7 CLOSED/OPEN/HALF_OPEN transitions).
func (e *Engine) RecordOutcome(ec models.ErrorContext, succeeded bool) {
	breaker := e.breakers.Get(BreakerKey(ec))
	if succeeded {
		breaker.RecordResult(nil)
	} else {
		breaker.RecordResult(resilience.ErrCircuitOpen)
	}
}

// Snapshots exposes every tracked breaker's state for observability.
func (e *Engine) Snapshots() []models.BreakerSnapshot {
	return e.breakers.Snapshots()
}

func (e *Engine) match(ec models.ErrorContext) (models.PolicyRule, bool) {
	for _, rule := range e.rules {
		if rule.Matches(ec) {
			return rule, true
		}
	}
	return models.PolicyRule{}, false
}

// defaultAction is applied when no configured rule matches: retry while
// budget remains, otherwise abort, per the queue-level retry/DLQ default in
// spec §4.1 generalized to the per-node case.
func (e *Engine) defaultAction(ec models.ErrorContext) models.Action {
	if ec.RetryCount < defaultMaxRetries {
		return models.Action{Kind: models.ActionRetry, DelayMS: recovery.Backoff(ec.RetryCount, e.backoff).Milliseconds()}
	}
	return models.Action{Kind: models.ActionAbort}
}

// fallthroughAfterDeniedRetry is applied when a rule says RETRY but the
// breaker is OPEN. It always returns ESCALATE, with a message naming the
// breaker key; it does not look for a fallback in the rule or in later
// rules.
func (e *Engine) fallthroughAfterDeniedRetry(ec models.ErrorContext) models.Action {
	return models.Action{
		Kind:    models.ActionEscalate,
		Message: fmt.Sprintf("retry denied: circuit breaker open for %s", BreakerKey(ec)),
	}
}

const defaultMaxRetries = 3

func buildAction(rule models.PolicyRule, ec models.ErrorContext, backoff []int) models.Action {
	switch rule.Action {
	case models.ActionRetry:
		if rule.MaxRetries > 0 && ec.RetryCount >= rule.MaxRetries {
			return models.Action{Kind: models.ActionAbort}
		}
		return models.Action{Kind: models.ActionRetry, DelayMS: recovery.Backoff(ec.RetryCount, backoff).Milliseconds()}
	case models.ActionFallback:
		return models.Action{Kind: models.ActionFallback, FallbackValue: rule.FallbackValue, FallbackNodeID: rule.FallbackNodeID}
	case models.ActionCompensate:
		return models.Action{Kind: models.ActionCompensate, CompensateNodeIDs: rule.CompensateNodeIDs}
	case models.ActionEscalate:
		return models.Action{
			Kind:             models.ActionEscalate,
			Message:          rule.EscalateMessage,
			WaitForResponse:  rule.WaitForResponse,
			TimeoutSeconds:   rule.TimeoutSeconds,
			DefaultOnTimeout: rule.DefaultOnTimeout,
		}
	case models.ActionSkip:
		return models.Action{Kind: models.ActionSkip}
	default:
		return models.Action{Kind: models.ActionAbort}
	}
}
