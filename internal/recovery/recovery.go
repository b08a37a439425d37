// Package recovery implements the failure detector and per-job recovery
// pipeline (component C5), grounded on the teacher's
// pkg/scheduler/core.go Reconcile/RetryFailures and calculateBackoff.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"casare-orchestrator/internal/coordination"
	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/logging"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
	"casare-orchestrator/internal/telemetry"
)

// ElectionKey is the leader election campaign name for the recovery loop.
const ElectionKey = "recovery"

// Outcome is the result of recovering one job, per spec §4.5.
type Outcome string

const (
	ResumedFromCheckpoint Outcome = "RESUMED_FROM_CHECKPOINT"
	RequeuedForRetry      Outcome = "REQUEUED_FOR_RETRY"
	MovedToDLQ            Outcome = "MOVED_TO_DLQ"
	RecoveryFailed        Outcome = "RECOVERY_FAILED"
)

// Config holds the recovery manager's tunables, per spec §6.
type Config struct {
	MonitorInterval           time.Duration
	HeartbeatTimeout          time.Duration
	DefaultRequeueDelay       time.Duration
	DefaultJobTimeout         time.Duration
	CheckpointRecoveryEnabled bool
	DLQEnabled                bool
	BackoffSeconds            []int
}

// Manager runs the C5 detection loop and exposes ManuallyRecover for
// operator-triggered recovery.
type Manager struct {
	jobs        store.JobStore
	robots      store.RobotStore
	checkpoints store.CheckpointStore
	dlq         store.DLQStore
	election    coordination.Election
	identity    string
	bus         events.Bus
	cfg         Config
}

// New constructs a recovery Manager.
func New(jobs store.JobStore, robots store.RobotStore, checkpoints store.CheckpointStore, dlq store.DLQStore, election coordination.Election, identity string, bus events.Bus, cfg Config) *Manager {
	return &Manager{
		jobs:        jobs,
		robots:      robots,
		checkpoints: checkpoints,
		dlq:         dlq,
		election:    election,
		identity:    identity,
		bus:         bus,
		cfg:         cfg,
	}
}

// Run blocks, ticking every cfg.MonitorInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leader, err := m.election.Leader(ctx)
			if err != nil {
				logging.Warn("recovery: leadership check failed", zap.Error(err))
				continue
			}
			if leader != m.identity {
				continue
			}
			if err := m.RunOnce(ctx); err != nil {
				logging.Error("recovery: cycle failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs one detection cycle: it finds stale robots, marks them
// FAILED, and recovers every job they were running, per spec §4.5 steps
// 1-2. It also sweeps jobs whose execution exceeded default_job_timeout
// (spec §5 "Cancellation & timeouts") even on robots that are still live.
func (m *Manager) RunOnce(ctx context.Context) error {
	stale, err := m.robots.ListStale(ctx, m.cfg.HeartbeatTimeout)
	if err != nil {
		return fmt.Errorf("recovery: list stale robots: %w", err)
	}

	for _, robot := range stale {
		if robot.Status != models.RobotOnline && robot.Status != models.RobotBusy {
			continue
		}
		if err := m.robots.UpdateStatus(ctx, robot.RobotID, models.RobotFailed); err != nil {
			logging.Warn("recovery: mark robot failed", zap.String("robot_id", robot.RobotID), zap.Error(err))
			continue
		}
		m.bus.Publish(ctx, events.Event{Kind: events.RobotOffline, RobotID: robot.RobotID})

		if err := m.recoverRobotJobs(ctx, robot.RobotID); err != nil {
			logging.Error("recovery: recover robot jobs", zap.String("robot_id", robot.RobotID), zap.Error(err))
		}
	}

	return m.sweepTimedOut(ctx)
}

// ManuallyRecover runs the same per-job recovery for robotID's jobs
// regardless of heartbeat staleness, per spec §4.5 "Manual recovery".
func (m *Manager) ManuallyRecover(ctx context.Context, robotID, reason string) error {
	if err := m.robots.UpdateStatus(ctx, robotID, models.RobotFailed); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return m.recoverRobotJobs(ctx, robotID)
}

func (m *Manager) recoverRobotJobs(ctx context.Context, robotID string) error {
	running, err := m.jobs.ListOrphaned(ctx, nil)
	if err != nil {
		return err
	}
	for _, job := range running {
		if job.RobotID == nil || *job.RobotID != robotID {
			continue
		}
		outcome := m.recoverJob(ctx, job)
		telemetry.RecoveryActionsTotal.WithLabelValues(string(outcome)).Inc()
		if outcome != RecoveryFailed {
			telemetry.OrphansReaped.Inc()
		}
	}
	return nil
}

// sweepTimedOut applies the per-job recovery algorithm to RUNNING jobs
// whose started_at + default_job_timeout has elapsed, independent of robot
// liveness, per spec §5.
func (m *Manager) sweepTimedOut(ctx context.Context) error {
	running, err := m.jobs.ListByStatus(ctx, models.JobRunning, 500)
	if err != nil {
		return fmt.Errorf("recovery: list running jobs: %w", err)
	}
	now := time.Now()
	for _, job := range running {
		if job.StartedAt == nil || now.Sub(*job.StartedAt) < m.cfg.DefaultJobTimeout {
			continue
		}
		outcome := m.recoverJob(ctx, job)
		telemetry.RecoveryActionsTotal.WithLabelValues(string(outcome)).Inc()
	}
	return nil
}

// recoverJob implements the five-step algorithm in spec §4.5. It is safe
// to re-run on the same job: every store call here is predicated on the
// job's current status, so a second invocation after another worker (or
// process) already recovered the row is a no-op that returns
// RecoveryFailed quietly.
func (m *Manager) recoverJob(ctx context.Context, job models.Job) Outcome {
	cp, err := m.checkpoints.Get(ctx, job.JobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("recovery: get checkpoint", zap.String("job_id", job.JobID), zap.Error(err))
		return RecoveryFailed
	}

	if err == nil && cp.State == models.CheckpointPending && m.cfg.CheckpointRecoveryEnabled {
		note := fmt.Sprintf("resume from checkpoint at step %d", cp.CurrentStep)
		if err := m.jobs.Release(ctx, job.JobID, time.Now().Add(m.cfg.DefaultRequeueDelay), note); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return RecoveryFailed
			}
			logging.Error("recovery: release for checkpoint resume", zap.String("job_id", job.JobID), zap.Error(err))
			return RecoveryFailed
		}
		m.decrementLoad(ctx, job)
		m.bus.Publish(ctx, events.Event{Kind: events.JobRequeued, JobID: job.JobID, Attrs: map[string]interface{}{"outcome": string(ResumedFromCheckpoint)}})
		return ResumedFromCheckpoint
	}

	if job.RetryCount < job.MaxRetries {
		delay := Backoff(job.RetryCount, m.cfg.BackoffSeconds)
		if err := m.jobs.Requeue(ctx, job.JobID, time.Now().Add(delay), "robot failure, recovered by monitor"); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return RecoveryFailed
			}
			logging.Error("recovery: requeue for retry", zap.String("job_id", job.JobID), zap.Error(err))
			return RecoveryFailed
		}
		m.decrementLoad(ctx, job)
		telemetry.RetriesTotal.WithLabelValues(job.WorkflowID).Inc()
		m.bus.Publish(ctx, events.Event{Kind: events.JobRequeued, JobID: job.JobID, Attrs: map[string]interface{}{"outcome": string(RequeuedForRetry)}})
		return RequeuedForRetry
	}

	if !m.cfg.DLQEnabled {
		return RecoveryFailed
	}
	if err := m.promoteToDLQ(ctx, job, "retries exhausted after robot failure"); err != nil {
		logging.Error("recovery: promote to dlq", zap.String("job_id", job.JobID), zap.Error(err))
		return RecoveryFailed
	}
	m.decrementLoad(ctx, job)
	m.bus.Publish(ctx, events.Event{Kind: events.JobFailed, JobID: job.JobID, Attrs: map[string]interface{}{"outcome": string(MovedToDLQ)}})
	return MovedToDLQ
}

func (m *Manager) decrementLoad(ctx context.Context, job models.Job) {
	if job.RobotID == nil {
		return
	}
	if err := m.robots.IncrementJobCount(ctx, *job.RobotID, -1); err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Warn("recovery: decrement robot load", zap.String("robot_id", *job.RobotID), zap.Error(err))
	}
}

func (m *Manager) promoteToDLQ(ctx context.Context, job models.Job, finalError string) error {
	entry := &models.DLQEntry{
		JobID:              job.JobID,
		WorkflowID:         job.WorkflowID,
		WorkflowName:       job.WorkflowName,
		WorkflowDefinition: job.WorkflowDefinition,
		Variables:          job.Variables,
		TenantID:           job.TenantID,
		Tags:               job.Tags,
		Priority:           job.Priority,
		RetryCount:         job.RetryCount,
		MaxRetries:         job.MaxRetries,
		CreatedAt:          job.CreatedAt,
		FinalError:         finalError,
		RetryHistory:       job.LastError,
	}
	if err := m.dlq.Move(ctx, entry); err != nil {
		return err
	}
	if err := m.jobs.Delete(ctx, job.JobID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Backoff computes the retry delay for attempt k using the configured
// schedule, with ±20% jitter, per spec §4.1 "Backoff schedule".
func Backoff(attempt int, schedule []int) time.Duration {
	if len(schedule) == 0 {
		schedule = []int{10, 60, 300, 900, 3600}
	}
	idx := attempt
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	if idx < 0 {
		idx = 0
	}
	base := float64(schedule[idx])
	jitter := 0.8 + rand.Float64()*0.4
	seconds := base * jitter
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds * float64(time.Second))
}
