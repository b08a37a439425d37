// Package store defines the persistence interfaces backing every
// orchestrator component (queue, robot registry, schedules, checkpoints,
// dead letter queue), grounded on the teacher's pkg/storage/interface.go.
package store

import (
	"context"
	"errors"
	"time"

	"casare-orchestrator/internal/models"
)

var (
	ErrNotFound         = errors.New("store: record not found")
	ErrConflict         = errors.New("store: optimistic update precondition failed")
	ErrCapacityExceeded = errors.New("store: robot load update would exceed max_concurrent_jobs")
)

// OrchestratorRobotID is the synthetic claimant identity the dispatcher
// uses for JobStore.Claim before it has chosen a specific target robot
// (spec §4.4 step 3): claiming to this identity first, then handing off,
// keeps a second orchestrator instance from claiming the same row while
// this instance is still evaluating its load-balancing policy.
const OrchestratorRobotID = "__orchestrator__"

// JobStore is the priority queue's durable backing store (component C1).
type JobStore interface {
	// CreateJob persists a new job in PENDING or QUEUED status. If a job
	// with the same fingerprint is already PENDING, QUEUED, CLAIMED or
	// RUNNING, CreateJob
	// returns the existing job instead of inserting a duplicate, per the
	// submission-time deduplication rule in spec §4.1.
	CreateJob(ctx context.Context, job *models.Job) (*models.Job, bool, error)

	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// Claim atomically selects and locks up to limit visible jobs for
	// robotID using SELECT ... FOR UPDATE SKIP LOCKED, transitioning them
	// QUEUED/PENDING -> CLAIMED. Implements the atomic-claim invariant of
	// spec §4.1/§8.
	Claim(ctx context.Context, robotID string, limit int) ([]models.Job, error)

	// ListVisible returns jobs eligible for dispatch ordered by priority
	// then creation time (highest priority, then FIFO), without claiming.
	ListVisible(ctx context.Context, limit int) ([]models.Job, error)

	// Transition performs an optimistic status update: it succeeds only if
	// the row's current status equals fromStatus.
	Transition(ctx context.Context, jobID string, fromStatus, toStatus models.JobStatus, mutate func(*models.Job)) error

	UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error

	// Requeue returns a CLAIMED/RUNNING job to QUEUED, clearing robot
	// assignment, after incrementing retry_count and setting visible_after.
	Requeue(ctx context.Context, jobID string, visibleAfter time.Time, lastError string) error

	Cancel(ctx context.Context, jobID string) error

	// Delete hard-deletes a job row, the second half of DLQ promotion
	// (spec §4.1 PromoteToDLQ: "copy the job into dlq, delete it from the
	// primary table"). Callers insert the DLQStore copy first; Delete is
	// idempotent (ErrNotFound on a second call is expected, not an error
	// the caller need surface).
	Delete(ctx context.Context, jobID string) error

	// Handoff reassigns a job claimed by the orchestrator's synthetic
	// identity to the chosen target robot, per spec §4.4 step 4. It fails
	// with ErrConflict if the job is no longer claimed by fromRobotID
	// (e.g. cancelled concurrently).
	Handoff(ctx context.Context, jobID, fromRobotID, toRobotID string) error

	// Release returns a CLAIMED/RUNNING job to QUEUED with no robot
	// assignment and a new visibility delay, without touching retry_count;
	// note is written to last_error — used for failed handoffs and
	// checkpoint-based resume
	// (spec §4.1 Release, §4.5 step 2).
	Release(ctx context.Context, jobID string, visibleAfter time.Time, note string) error

	// ListOrphaned returns CLAIMED/RUNNING jobs assigned to robots not in
	// activeRobotIDs, used by the recovery manager (component C5).
	ListOrphaned(ctx context.Context, activeRobotIDs []string) ([]models.Job, error)

	ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error)

	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)

	// ListAll returns the most recently created jobs regardless of status,
	// for the unfiltered "GET /api/v1/jobs" listing endpoint.
	ListAll(ctx context.Context, limit int) ([]models.Job, error)

	// ListClaimedForRobot returns jobs currently CLAIMED for robotID, used by
	// the robot long-poll assignment endpoint (spec §6) both as the initial
	// check before subscribing to live events and as a catch-up read for a
	// robot that reconnects after missing the handoff event.
	ListClaimedForRobot(ctx context.Context, robotID string) ([]models.Job, error)
}

// RobotStore is the robot registry's backing store (component C3).
type RobotStore interface {
	Register(ctx context.Context, robot *models.Robot) error
	Heartbeat(ctx context.Context, robotID string, status models.RobotStatus, currentJobCount int) error
	UpdateStatus(ctx context.Context, robotID string, status models.RobotStatus) error
	Get(ctx context.Context, robotID string) (*models.Robot, error)
	ListDispatchable(ctx context.Context, heartbeatTimeout time.Duration) ([]models.Robot, error)
	ListStale(ctx context.Context, heartbeatTimeout time.Duration) ([]models.Robot, error)
	IncrementJobCount(ctx context.Context, robotID string, delta int) error
	ListAll(ctx context.Context) ([]models.Robot, error)
}

// ScheduleStore persists Schedule definitions and firing history (component C6).
type ScheduleStore interface {
	Create(ctx context.Context, sched *models.Schedule) error
	Update(ctx context.Context, sched *models.Schedule) error
	Delete(ctx context.Context, scheduleID string) error
	SetEnabled(ctx context.Context, scheduleID string, enabled bool) error
	Get(ctx context.Context, scheduleID string) (*models.Schedule, error)
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.Schedule, error)
	ListUpcoming(ctx context.Context, limit int) ([]models.Schedule, error)
	RecordFiring(ctx context.Context, scheduleID string, nextRun time.Time, outcome models.ExecutionOutcome, jobID, detail string) error
	RecordOutcome(ctx context.Context, scheduleID, jobID string, outcome models.ExecutionOutcome, detail string) error
}

// CheckpointStore persists per-job resumable execution state (component C2).
type CheckpointStore interface {
	Upsert(ctx context.Context, cp *models.Checkpoint) error
	Get(ctx context.Context, workflowInstanceID string) (*models.Checkpoint, error)
	Delete(ctx context.Context, workflowInstanceID string) error
}

// DLQStore persists jobs that exhausted their retry budget (spec §4.4).
type DLQStore interface {
	Move(ctx context.Context, entry *models.DLQEntry) error
	List(ctx context.Context, limit int) ([]models.DLQEntry, error)
	Get(ctx context.Context, jobID string) (*models.DLQEntry, error)
	Delete(ctx context.Context, jobID string) error
	Count(ctx context.Context) (int64, error)
}
