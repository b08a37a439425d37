package orchestrator

import (
	"context"
	"errors"
	"time"

	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/orcherr"
	"casare-orchestrator/internal/store"
)

// GetJob fetches a single job by ID, resolving an offloaded workflow
// definition back to its inline content.
func (f *Facade) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := f.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, orcherr.ErrNotFound
		}
		return nil, orcherr.Wrap(orcherr.Transient, "get job", err)
	}
	job.WorkflowDefinition = f.resolve(ctx, job.WorkflowDefinition)
	return job, nil
}

// ListJobs returns jobs filtered by status, or the most recent jobs of any
// status when status is empty.
func (f *Facade) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if status == "" {
		jobs, err := f.jobs.ListAll(ctx, limit)
		if err != nil {
			return nil, orcherr.Wrap(orcherr.Transient, "list jobs", err)
		}
		return jobs, nil
	}
	jobs, err := f.jobs.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "list jobs by status", err)
	}
	return jobs, nil
}

// ListRobots returns every registered robot.
func (f *Facade) ListRobots(ctx context.Context) ([]models.Robot, error) {
	robots, err := f.robots.ListAll(ctx)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "list robots", err)
	}
	return robots, nil
}

func (f *Facade) GetRobot(ctx context.Context, robotID string) (*models.Robot, error) {
	robot, err := f.robots.Get(ctx, robotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, orcherr.ErrNotFound
		}
		return nil, orcherr.Wrap(orcherr.Transient, "get robot", err)
	}
	return robot, nil
}

func (f *Facade) GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	sched, err := f.schedEng.Get(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, orcherr.ErrNotFound
		}
		return nil, orcherr.Wrap(orcherr.Transient, "get schedule", err)
	}
	return sched, nil
}

// ListDLQ returns the most recent dead-lettered jobs.
func (f *Facade) ListDLQ(ctx context.Context, limit int) ([]models.DLQEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := f.dlq.List(ctx, limit)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "list dlq", err)
	}
	return entries, nil
}

// ReplayDLQEntry resubmits a dead-lettered job as a brand new job, then
// removes the DLQ entry, per spec §6's administrative replay route. The new
// job gets a fresh retry budget; the original's fingerprint is not carried
// over so it cannot collide with the very entry being replayed.
func (f *Facade) ReplayDLQEntry(ctx context.Context, jobID string) (*models.Job, error) {
	entry, err := f.dlq.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, orcherr.ErrNotFound
		}
		return nil, orcherr.Wrap(orcherr.Transient, "get dlq entry", err)
	}

	job, err := f.SubmitJob(ctx, SubmitJobRequest{
		WorkflowID:         entry.WorkflowID,
		WorkflowName:       entry.WorkflowName,
		WorkflowDefinition: entry.WorkflowDefinition,
		Variables:          entry.Variables,
		TenantID:           entry.TenantID,
		Tags:               entry.Tags,
		Priority:           entry.Priority,
		MaxRetries:         entry.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	if err := f.dlq.Delete(ctx, jobID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return job, orcherr.Wrap(orcherr.Transient, "delete replayed dlq entry", err)
	}
	return job, nil
}

// PutCheckpoint persists a robot-reported checkpoint for an in-flight job.
func (f *Facade) PutCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	if err := f.checkpoints.Upsert(ctx, cp); err != nil {
		return orcherr.Wrap(orcherr.Transient, "upsert checkpoint", err)
	}
	return nil
}

func (f *Facade) GetCheckpoint(ctx context.Context, workflowInstanceID string) (*models.Checkpoint, error) {
	cp, err := f.checkpoints.Get(ctx, workflowInstanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, orcherr.ErrNotFound
		}
		return nil, orcherr.Wrap(orcherr.Transient, "get checkpoint", err)
	}
	return cp, nil
}

// WaitForAssignment implements the robot long-poll assignment endpoint of
// spec §6: it first checks for a job already CLAIMED for robotID, then
// subscribes to the event bus and waits up to timeout for a matching
// job.claimed event from the dispatcher's handoff step, re-verifying
// against the store before returning (the event bus is best-effort, so the
// store read is the source of truth). Returns (nil, nil) on timeout with
// nothing assigned.
func (f *Facade) WaitForAssignment(ctx context.Context, robotID string, timeout time.Duration) (*models.Job, error) {
	if job := f.firstClaimedFor(ctx, robotID); job != nil {
		return job, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, unsubscribe, err := f.bus.Subscribe(waitCtx)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "subscribe to assignment events", err)
	}
	defer unsubscribe()

	for {
		select {
		case <-waitCtx.Done():
			return nil, nil
		case ev, ok := <-ch:
			if !ok {
				return nil, nil
			}
			if ev.Kind != events.JobClaimed || ev.RobotID != robotID {
				continue
			}
			if job := f.firstClaimedFor(ctx, robotID); job != nil {
				return job, nil
			}
		}
	}
}

func (f *Facade) firstClaimedFor(ctx context.Context, robotID string) *models.Job {
	jobs, err := f.jobs.ListClaimedForRobot(ctx, robotID)
	if err != nil || len(jobs) == 0 {
		return nil
	}
	job := &jobs[0]
	job.WorkflowDefinition = f.resolve(ctx, job.WorkflowDefinition)
	return job
}
