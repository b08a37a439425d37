// Package schedule implements the recurring-schedule engine (component
// C6): it never executes workflows itself, only submits jobs through the
// ordinary queue at computed instants. Loop shape grounded on the
// teacher's pkg/scheduler/core.go Run ticker structure; this package has
// no direct teacher analogue for cron-to-job materialization since the
// teacher's Core *is* the job executor, not a job producer.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"casare-orchestrator/internal/coordination"
	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/logging"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
	"casare-orchestrator/internal/telemetry"
)

// ElectionKey is the leader election campaign name for the schedule loop.
const ElectionKey = "schedule"

// JobSubmitter is the subset of the Orchestrator Facade the schedule
// engine needs: submitting a job for a fired schedule without importing
// the full facade (which itself depends on this package for CRUD).
type JobSubmitter interface {
	SubmitScheduled(ctx context.Context, workflowID string, priority int, scheduleID string) (*models.Job, error)
}

// Config holds the schedule engine's tunables, per spec §6.
type Config struct {
	TickInterval    time.Duration
	HistoryRetain   time.Duration
	MaxConcurrent   int
}

// Engine runs the C6 firing loop and exposes the schedule CRUD operations.
type Engine struct {
	store    store.ScheduleStore
	submit   JobSubmitter
	election coordination.Election
	identity string
	bus      events.Bus
	cfg      Config
}

// New constructs a schedule Engine.
func New(sstore store.ScheduleStore, submit JobSubmitter, election coordination.Election, identity string, bus events.Bus, cfg Config) *Engine {
	return &Engine{store: sstore, submit: submit, election: election, identity: identity, bus: bus, cfg: cfg}
}

// Run blocks, ticking every cfg.TickInterval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leader, err := e.election.Leader(ctx)
			if err != nil {
				logging.Warn("schedule: leadership check failed", zap.Error(err))
				continue
			}
			if leader != e.identity {
				continue
			}
			if err := e.Tick(ctx); err != nil {
				logging.Error("schedule: tick failed", zap.Error(err))
			}
		}
	}
}

// Tick finds every due schedule and fires it once, per spec §4.6. A
// schedule whose next_run fell in the past (a misfire, e.g. after a
// restart) still fires exactly once here: next_run is recomputed from
// "now", not replayed for every missed instant.
func (e *Engine) Tick(ctx context.Context) error {
	now := time.Now()
	due, err := e.store.ListDue(ctx, now, 100)
	if err != nil {
		return fmt.Errorf("schedule: list due: %w", err)
	}

	for _, sched := range due {
		e.fire(ctx, sched, now)
	}
	return nil
}

func (e *Engine) fire(ctx context.Context, sched models.Schedule, firedAt time.Time) {
	nextRun, err := NextRun(sched, firedAt)
	if err != nil {
		logging.Error("schedule: compute next_run", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
		nextRun = &firedAt // retry on the next tick rather than getting stuck
	}

	var zero time.Time
	nr := zero
	if nextRun != nil {
		nr = *nextRun
	}

	job, err := e.submit.SubmitScheduled(ctx, sched.WorkflowID, sched.Priority, sched.ScheduleID)
	outcome := models.OutcomeSubmitted
	jobID, detail := "", ""
	if err != nil {
		outcome = models.OutcomeSubmitFailed
		detail = err.Error()
		logging.Error("schedule: submit failed", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
	} else {
		jobID = job.JobID
	}

	if err := e.store.RecordFiring(ctx, sched.ScheduleID, nr, outcome, jobID, detail); err != nil {
		logging.Error("schedule: record firing", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
	}
	if nextRun == nil {
		_ = e.store.SetEnabled(ctx, sched.ScheduleID, false)
	}

	telemetry.ScheduleFirings.WithLabelValues(string(outcome)).Inc()
	e.bus.Publish(ctx, events.Event{Kind: events.ScheduleFired, JobID: jobID, Attrs: map[string]interface{}{
		"schedule_id": sched.ScheduleID,
		"outcome":     string(outcome),
	}})
}

// AddSchedule validates and persists a new schedule, computing its first
// next_run from now.
func (e *Engine) AddSchedule(ctx context.Context, sched models.Schedule) (*models.Schedule, error) {
	if sched.ScheduleID == "" {
		sched.ScheduleID = uuid.New().String()
	}
	sched.Enabled = true
	next, err := NextRun(sched, time.Now())
	if err != nil {
		return nil, err
	}
	sched.NextRun = next
	if err := e.store.Create(ctx, &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

// UpdateSchedule persists changes to an existing schedule and recomputes
// next_run from the new rule parameters.
func (e *Engine) UpdateSchedule(ctx context.Context, sched models.Schedule) (*models.Schedule, error) {
	next, err := NextRun(sched, time.Now())
	if err != nil {
		return nil, err
	}
	sched.NextRun = next
	if err := e.store.Update(ctx, &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

func (e *Engine) DeleteSchedule(ctx context.Context, scheduleID string) error {
	return e.store.Delete(ctx, scheduleID)
}

func (e *Engine) EnableSchedule(ctx context.Context, scheduleID string, enabled bool) error {
	if enabled {
		sched, err := e.store.Get(ctx, scheduleID)
		if err != nil {
			return err
		}
		next, err := NextRun(*sched, time.Now())
		if err != nil {
			return err
		}
		sched.NextRun = next
		sched.Enabled = true
		return e.store.Update(ctx, sched)
	}
	return e.store.SetEnabled(ctx, scheduleID, false)
}

func (e *Engine) GetUpcoming(ctx context.Context, limit int) ([]models.Schedule, error) {
	return e.store.ListUpcoming(ctx, limit)
}

// RecordOutcome relays a submitted job's terminal state back to its
// originating schedule's counters, once the orchestrator facade's
// CompleteJob/FailJob observes it (spec §4.6(c)'s asynchronous listener).
func (e *Engine) RecordOutcome(ctx context.Context, scheduleID, jobID string, outcome models.ExecutionOutcome, detail string) error {
	return e.store.RecordOutcome(ctx, scheduleID, jobID, outcome, detail)
}

func (e *Engine) Get(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	sched, err := e.store.Get(ctx, scheduleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	return sched, err
}
