// Package runner defines the pluggable step-execution interface the robot
// agent drives, generalized from the teacher's pkg/executor/runner
// (JobRunner/ShellRunner) from a single shell-command runner into a
// workflow-of-steps runner matching this domain's Job.WorkflowDefinition.
package runner

import (
	"context"
	"time"
)

// Step is one node of a parsed workflow, opaque beyond its identifier and
// kind — the robot never interprets step semantics, it only reports which
// step it is on, matching spec §3's "the orchestrator never parses
// workflow_definition" invariant extended to the robot side.
type Step struct {
	NodeID   string                 `json:"node_id"`
	NodeKind string                 `json:"node_kind"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// Result captures the outcome of running one Step.
type Result struct {
	ExitCode int
	Output   string
	Error    error
	Duration time.Duration
}

// StepRunner executes a single workflow step. Implementations range from a
// real RPA action driver to, as here, a simulated runner for exercising the
// orchestrator's checkpoint/recovery/retry machinery end to end.
type StepRunner interface {
	RunStep(ctx context.Context, step Step) Result
}
