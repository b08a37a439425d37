package runner

import (
	"context"
	"fmt"
	"time"
)

// SimulatedRunner executes a step by sleeping for a configured duration and
// failing deterministically on node kinds named in FailingKinds, standing in
// for a real RPA action driver (UI locate, HTTP call, desktop automation)
// the way the teacher's ShellRunner stands in for a real job payload.
type SimulatedRunner struct {
	StepDuration time.Duration
	FailingKinds map[string]int // node kind -> number of times to fail before succeeding
	attempts     map[string]int
}

func NewSimulatedRunner(stepDuration time.Duration) *SimulatedRunner {
	if stepDuration <= 0 {
		stepDuration = 200 * time.Millisecond
	}
	return &SimulatedRunner{
		StepDuration: stepDuration,
		FailingKinds: map[string]int{},
		attempts:     map[string]int{},
	}
}

func (r *SimulatedRunner) RunStep(ctx context.Context, step Step) Result {
	start := time.Now()

	select {
	case <-ctx.Done():
		return Result{ExitCode: -1, Error: ctx.Err(), Duration: time.Since(start)}
	case <-time.After(r.StepDuration):
	}

	if budget, ok := r.FailingKinds[step.NodeKind]; ok {
		r.attempts[step.NodeID]++
		if r.attempts[step.NodeID] <= budget {
			return Result{
				ExitCode: 1,
				Error:    fmt.Errorf("simulated failure on node %s (attempt %d)", step.NodeID, r.attempts[step.NodeID]),
				Duration: time.Since(start),
			}
		}
	}

	return Result{
		ExitCode: 0,
		Output:   fmt.Sprintf("step %s (%s) completed", step.NodeID, step.NodeKind),
		Duration: time.Since(start),
	}
}
