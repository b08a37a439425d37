// Package agent implements the Robot side of the job-execution protocol
// (spec §6): register, heartbeat, long-poll for an assignment, run it
// step by step with checkpointing, and report the outcome. Grounded on the
// teacher's pkg/executor/core.go Executor (heartbeat goroutine + worker-pool
// main loop shape), adapted from a direct-storage consumer into an
// HTTP client of the Orchestrator Facade.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"casare-orchestrator/internal/agent/runner"
	"casare-orchestrator/internal/logging"
	"casare-orchestrator/internal/models"
)

// Config configures one robot process.
type Config struct {
	Name              string
	Environment       string
	Tags              []string
	AffinityKey       string
	MaxConcurrentJobs int
	OrchestratorURL   string
	APIKey            string
	HeartbeatInterval time.Duration
	PollTimeoutSecs   int
}

// Agent is a single robot process: one identity, one worker pool, one
// heartbeat loop, polling the orchestrator for work.
type Agent struct {
	id       string
	hostname string
	cfg      Config

	client *Client
	runner runner.StepRunner

	totalCPU      int
	totalMemoryMB uint64
}

func New(cfg Config, stepRunner runner.StepRunner) *Agent {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])

	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = runtime.NumCPU()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.PollTimeoutSecs <= 0 {
		cfg.PollTimeoutSecs = 20
	}

	return &Agent{
		id:            id,
		hostname:      hostname,
		cfg:           cfg,
		client:        NewClient(cfg.OrchestratorURL, cfg.APIKey, 0),
		runner:        stepRunner,
		totalCPU:      runtime.NumCPU(),
		totalMemoryMB: detectTotalMemory(),
	}
}

func detectTotalMemory() uint64 {
	v, err := mem.VirtualMemory()
	if err != nil {
		logging.Warn("agent: failed to detect memory, defaulting to 1GB", zap.Error(err))
		return 1024
	}
	return v.Total / 1024 / 1024
}

// Start registers the robot, then runs the heartbeat loop and the
// poll-and-execute worker pool until ctx is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	robot, err := a.client.RegisterRobot(ctx, RegisterRobotRequest{
		Name:              a.cfg.Name,
		Environment:       a.cfg.Environment,
		Tags:              a.cfg.Tags,
		MaxConcurrentJobs: a.cfg.MaxConcurrentJobs,
		AffinityKey:       a.cfg.AffinityKey,
		TotalCPU:          a.totalCPU,
		TotalMemoryMB:     a.totalMemoryMB,
	})
	if err != nil {
		return fmt.Errorf("agent: register: %w", err)
	}
	a.id = robot.RobotID
	logging.Info("agent: registered", zap.String("robot_id", a.id), zap.Int("max_concurrent_jobs", a.cfg.MaxConcurrentJobs))

	go a.heartbeatLoop(ctx)

	sem := make(chan struct{}, a.cfg.MaxConcurrentJobs)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sem <- struct{}{}:
			go func() {
				defer func() { <-sem }()
				a.pollAndRun(ctx)
			}()
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.client.Heartbeat(ctx, a.id, models.RobotOnline, 0); err != nil {
				logging.Warn("agent: heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (a *Agent) pollAndRun(ctx context.Context) {
	job, err := a.client.WaitForAssignment(ctx, a.id, a.cfg.PollTimeoutSecs)
	if err != nil {
		logging.Warn("agent: poll assignment failed", zap.Error(err))
		time.Sleep(time.Second)
		return
	}
	if job == nil {
		return
	}
	a.run(ctx, job)
}

// run executes job's steps in order, checkpointing after each, and reports
// the outcome — the protocol named verbatim in spec §6.
func (a *Agent) run(ctx context.Context, job *models.Job) {
	logger := logging.WithFields(zap.String("job_id", job.JobID), zap.String("robot_id", a.id))
	logger.Info("agent: starting job")

	steps, err := parseSteps(job.WorkflowDefinition)
	if err != nil {
		a.fail(ctx, job.JobID, fmt.Sprintf("invalid workflow definition: %v", err))
		return
	}
	if len(steps) == 0 {
		if err := a.client.CompleteJob(ctx, job.JobID, "no-op: empty workflow"); err != nil {
			logger.Warn("agent: complete empty job", zap.Error(err))
		}
		return
	}

	for i, step := range steps {
		if err := a.client.UpdateProgress(ctx, job.JobID, (i*100)/len(steps), step.NodeID); err != nil {
			logger.Warn("agent: update progress", zap.Error(err))
		}

		result := a.runner.RunStep(ctx, step)

		cp := models.Checkpoint{
			State:         models.CheckpointRunning,
			CurrentStep:   i,
			ExecutedNodes: append(executedSoFar(steps, i), step.NodeID),
		}
		if err := a.client.PutCheckpoint(ctx, job.JobID, cp); err != nil {
			logger.Warn("agent: put checkpoint", zap.Error(err))
		}

		if result.Error != nil {
			if !a.handleStepFailure(ctx, job, step, result) {
				return
			}
		}
	}

	if err := a.client.CompleteJob(ctx, job.JobID, "completed"); err != nil {
		logger.Warn("agent: complete job", zap.Error(err))
	}
}

// handleStepFailure asks the per-job recovery policy (component C7) what to
// do about a failed node and carries out that decision. It reports whether
// the step loop in run should continue to the next node (SKIP, FALLBACK) or
// stop because the job has already been terminated (everything else).
func (a *Agent) handleStepFailure(ctx context.Context, job *models.Job, step runner.Step, result runner.Result) bool {
	logger := logging.WithFields(zap.String("job_id", job.JobID), zap.String("node_id", step.NodeID))

	action, err := a.client.ReportNodeFailure(ctx, job.JobID, ReportNodeFailureRequest{
		NodeID:     step.NodeID,
		NodeKind:   step.NodeKind,
		RobotID:    a.id,
		ErrorKind:  models.ErrorTransient,
		RetryCount: job.RetryCount,
		Message:    result.Error.Error(),
	})
	if err != nil {
		logger.Warn("agent: report node failure", zap.Error(err))
		a.fail(ctx, job.JobID, result.Error.Error())
		return false
	}

	switch action.Kind {
	case models.ActionSkip:
		logger.Warn("agent: skipping failed node", zap.Error(result.Error))
		return true
	case models.ActionFallback:
		logger.Warn("agent: falling back past failed node", zap.String("fallback_node_id", action.FallbackNodeID), zap.Error(result.Error))
		return true
	case models.ActionRetry:
		// The policy engine permits a retry, but a robot only ever runs a
		// step once per assignment; the queue-level FailJob/Requeue path
		// (with backoff) is what actually hands the job back for another
		// attempt.
		a.fail(ctx, job.JobID, fmt.Sprintf("node %s: %v (policy: %s)", step.NodeID, result.Error, action.Kind))
		return false
	default:
		a.fail(ctx, job.JobID, result.Error.Error())
		return false
	}
}

func (a *Agent) fail(ctx context.Context, jobID, reason string) {
	if err := a.client.FailJob(ctx, jobID, reason); err != nil {
		logging.Warn("agent: fail job", zap.String("job_id", jobID), zap.Error(err))
	}
}

func parseSteps(def string) ([]runner.Step, error) {
	if def == "" {
		return nil, nil
	}
	var steps []runner.Step
	if err := json.Unmarshal([]byte(def), &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func executedSoFar(steps []runner.Step, upTo int) []string {
	out := make([]string, 0, upTo)
	for i := 0; i < upTo; i++ {
		out = append(out, steps[i].NodeID)
	}
	return out
}
