// Package orchestrator implements the Orchestrator Facade (component C8):
// the single public entry point that owns every background loop's
// lifetime and enforces the cross-component invariants of spec §5.
// Grounded on the teacher's cmd/scheduler + cmd/api wiring style (explicit
// dependency construction, no global state) per spec §9's replacement of
// "per-call lazy singletons" with constructor-injected dependencies.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"casare-orchestrator/internal/artifacts"
	"casare-orchestrator/internal/coordination"
	"casare-orchestrator/internal/dispatch"
	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/logging"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/orcherr"
	"casare-orchestrator/internal/policy"
	"casare-orchestrator/internal/recovery"
	"casare-orchestrator/internal/schedule"
	"casare-orchestrator/internal/store"
	"casare-orchestrator/internal/telemetry"
)

// artifactRefPrefix marks a WorkflowDefinition/error string as an artifact
// store reference rather than inline content, per spec §6's artifact store
// addition: oversized workflow_definition and error detail overflow into
// internal/artifacts instead of bloating the jobs/job_dlq rows.
const artifactRefPrefix = "artifact-ref:"

// Deps bundles the Facade's constructor-injected dependencies. No
// component here is resolved lazily or via a global — spec §9 explicitly
// replaces the teacher's per-call lazy singletons with this shape.
type Deps struct {
	Jobs        store.JobStore
	Robots      store.RobotStore
	Schedules   store.ScheduleStore
	Checkpoints store.CheckpointStore
	DLQ         store.DLQStore
	Coordinator coordination.Coordinator
	Bus         events.Bus
	Policy      *policy.Engine

	DispatchConfig dispatch.Config
	RecoveryConfig recovery.Config
	ScheduleConfig schedule.Config

	// Artifacts and InlinePayloadMaxSize implement spec §6's artifact store
	// addition: a workflow_definition or error detail larger than the
	// threshold is offloaded to Artifacts and the job/DLQ row keeps only a
	// reference. Artifacts may be nil, in which case nothing is offloaded
	// regardless of size (matching a deployment with no configured backend).
	Artifacts            artifacts.Store
	InlinePayloadMaxSize int64
}

// SubmitJobRequest is the normative shape of a SubmitJob call, per spec
// §4.8 and §3's Job payload fields.
type SubmitJobRequest struct {
	WorkflowID         string
	WorkflowName       string
	WorkflowDefinition string
	Variables          models.Variables
	TenantID           string
	Tags               []string
	AffinityKey        string
	Priority           int
	MaxRetries         int
	Deduplicate        bool
	DelaySeconds       int
	// ScheduleID links a job back to the schedule that fired it, so its
	// terminal state can be relayed to that schedule's counters. Empty for
	// an ad hoc submission.
	ScheduleID string
}

// Facade is the orchestrator's single public entry point.
type Facade struct {
	jobs        store.JobStore
	robots      store.RobotStore
	schedules   store.ScheduleStore
	checkpoints store.CheckpointStore
	dlq         store.DLQStore
	coordinator coordination.Coordinator
	bus         events.Bus
	policy      *policy.Engine

	artifacts     artifacts.Store
	inlineMaxSize int64

	identity   string
	dispatcher *dispatch.Dispatcher
	recovery   *recovery.Manager
	schedEng   *schedule.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every background component but does not start any loop; call
// Start to begin serving.
func New(deps Deps) *Facade {
	identity := uuid.New().String()

	inlineMax := deps.InlinePayloadMaxSize
	if inlineMax <= 0 {
		inlineMax = 32 * 1024 // 32KiB, matching the teacher's Redis payload-size caution
	}

	f := &Facade{
		jobs:          deps.Jobs,
		robots:        deps.Robots,
		schedules:     deps.Schedules,
		checkpoints:   deps.Checkpoints,
		dlq:           deps.DLQ,
		coordinator:   deps.Coordinator,
		bus:           deps.Bus,
		policy:        deps.Policy,
		artifacts:     deps.Artifacts,
		inlineMaxSize: inlineMax,
		identity:      identity,
	}

	dispatchElection := deps.Coordinator.NewElection(dispatch.ElectionKey)
	f.dispatcher = dispatch.New(deps.Jobs, deps.Robots, dispatchElection, identity, deps.Bus, deps.DispatchConfig)

	recoveryElection := deps.Coordinator.NewElection(recovery.ElectionKey)
	f.recovery = recovery.New(deps.Jobs, deps.Robots, deps.Checkpoints, deps.DLQ, recoveryElection, identity, deps.Bus, deps.RecoveryConfig)

	scheduleElection := deps.Coordinator.NewElection(schedule.ElectionKey)
	f.schedEng = schedule.New(deps.Schedules, f, scheduleElection, identity, deps.Bus, deps.ScheduleConfig)

	return f
}

// Start campaigns for all three leader-election keys and launches the
// dispatcher, recovery, and schedule loops, per spec §4.8 Lifecycle. Every
// replica runs every loop; only the one holding a given key's election
// does real work on it (spec §7).
func (f *Facade) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.runLoop(ctx, "dispatch-election", func(ctx context.Context) {
		f.campaign(ctx, dispatch.ElectionKey)
	})
	f.runLoop(ctx, "recovery-election", func(ctx context.Context) {
		f.campaign(ctx, recovery.ElectionKey)
	})
	f.runLoop(ctx, "schedule-election", func(ctx context.Context) {
		f.campaign(ctx, schedule.ElectionKey)
	})

	f.runLoop(ctx, "dispatch", f.dispatcher.Run)
	f.runLoop(ctx, "recovery", f.recovery.Run)
	f.runLoop(ctx, "schedule", f.schedEng.Run)
	f.runLoop(ctx, "metrics-refresh", f.refreshMetricsLoop)
}

// Stop cancels every loop and waits for them to drain, then resigns every
// election this replica may be holding, per spec §4.8.
func (f *Facade) Stop(ctx context.Context) {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()

	for _, key := range []string{dispatch.ElectionKey, recovery.ElectionKey, schedule.ElectionKey} {
		election := f.coordinator.NewElection(key)
		if err := election.Resign(ctx); err != nil {
			logging.Warn("orchestrator: resign election", zap.String("key", key), zap.Error(err))
		}
	}
}

func (f *Facade) runLoop(ctx context.Context, name string, fn func(context.Context)) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Error("orchestrator: loop panicked", zap.String("loop", name), zap.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
}

func (f *Facade) campaign(ctx context.Context, key string) {
	election := f.coordinator.NewElection(key)
	if err := election.Campaign(ctx, f.identity); err != nil && ctx.Err() == nil {
		logging.Warn("orchestrator: campaign failed", zap.String("key", key), zap.Error(err))
	}
}

func (f *Facade) refreshMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.refreshMetrics(ctx)
		}
	}
}

func (f *Facade) refreshMetrics(ctx context.Context) {
	counts, err := f.jobs.CountByStatus(ctx)
	if err != nil {
		logging.Warn("orchestrator: refresh job metrics", zap.Error(err))
		return
	}
	for status, count := range counts {
		telemetry.JobsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	telemetry.QueueDepth.Set(float64(counts[models.JobPending] + counts[models.JobQueued]))

	if depth, err := f.dlq.Count(ctx); err == nil {
		telemetry.DLQDepth.Set(float64(depth))
	}

	robots, err := f.robots.ListAll(ctx)
	if err != nil {
		return
	}
	byStatus := map[models.RobotStatus]int{}
	for _, r := range robots {
		byStatus[r.Status]++
	}
	for status, count := range byStatus {
		telemetry.ActiveRobots.WithLabelValues(string(status)).Set(float64(count))
	}
}

// offload stores data in the artifact backend and returns a reference
// string if data exceeds the inline threshold, otherwise it returns data
// unchanged. key scopes the stored object within the backend (e.g.
// "workflows/<job-id>" or "errors/<job-id>/<retry-count>").
func (f *Facade) offload(ctx context.Context, key, data string) (string, error) {
	if f.artifacts == nil || int64(len(data)) <= f.inlineMaxSize {
		return data, nil
	}
	ref, err := f.artifacts.Store(ctx, key, []byte(data))
	if err != nil {
		return "", fmt.Errorf("offload %s: %w", key, err)
	}
	return artifactRefPrefix + ref, nil
}

// resolve reverses offload: if data carries the artifact reference prefix
// it is fetched from the backend, otherwise it is returned unchanged. A
// failed fetch logs and falls back to returning the raw reference so
// callers still get something to show rather than an error.
func (f *Facade) resolve(ctx context.Context, data string) string {
	if f.artifacts == nil || !strings.HasPrefix(data, artifactRefPrefix) {
		return data
	}
	ref := strings.TrimPrefix(data, artifactRefPrefix)
	raw, err := f.artifacts.Retrieve(ctx, ref)
	if err != nil {
		logging.Warn("orchestrator: resolve artifact reference", zap.String("ref", ref), zap.Error(err))
		return data
	}
	return string(raw)
}

// SubmitJob validates, deduplicates (if requested), and persists a new
// job, per spec §4.8.
func (f *Facade) SubmitJob(ctx context.Context, req SubmitJobRequest) (*models.Job, error) {
	if req.WorkflowID == "" {
		return nil, orcherr.New(orcherr.Permanent, "workflow_id is required")
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	jobID := uuid.New().String()
	definition, err := f.offload(ctx, "workflows/"+jobID, req.WorkflowDefinition)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "offload workflow definition", err)
	}

	job := &models.Job{
		JobID:              jobID,
		WorkflowID:         req.WorkflowID,
		WorkflowName:       req.WorkflowName,
		WorkflowDefinition: definition,
		Variables:          req.Variables,
		TenantID:           req.TenantID,
		Tags:               models.Tags(req.Tags),
		AffinityKey:        req.AffinityKey,
		Priority:           req.Priority,
		VisibleAfter:       time.Now().Add(time.Duration(req.DelaySeconds) * time.Second),
		Status:             models.JobPending,
		MaxRetries:         maxRetries,
		ScheduleID:         req.ScheduleID,
	}
	if req.Deduplicate {
		job.Fingerprint = fingerprint(req.WorkflowID, req.Variables)
	}

	created, deduped, err := f.jobs.CreateJob(ctx, job)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "create job", err)
	}
	if deduped {
		return created, orcherr.New(orcherr.Conflict, "duplicate submission")
	}

	telemetry.JobsSubmitted.Inc()
	f.bus.Publish(ctx, events.Event{Kind: events.JobSubmitted, JobID: created.JobID})
	return created, nil
}

// SubmitScheduled satisfies schedule.JobSubmitter: it submits a job on
// behalf of a fired schedule, never deduplicating (each firing is
// intentionally distinct even if variables repeat).
func (f *Facade) SubmitScheduled(ctx context.Context, workflowID string, priority int, scheduleID string) (*models.Job, error) {
	job, err := f.SubmitJob(ctx, SubmitJobRequest{
		WorkflowID: workflowID,
		Priority:   priority,
		Tags:       []string{"scheduled:" + scheduleID},
		ScheduleID: scheduleID,
	})
	if err != nil && orcherr.CodeOf(err) != orcherr.Conflict {
		return nil, err
	}
	return job, nil
}

// CancelJob moves a non-terminal job directly to CANCELLED.
func (f *Facade) CancelJob(ctx context.Context, jobID, reason string) (bool, error) {
	err := f.jobs.Cancel(ctx, jobID)
	if err == nil {
		f.bus.Publish(ctx, events.Event{Kind: events.JobCancelled, JobID: jobID, Attrs: map[string]interface{}{"reason": reason}})
		return true, nil
	}
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	return false, orcherr.Wrap(orcherr.Transient, "cancel job", err)
}

// RetryJob creates a fresh job with the same payload if jobID is currently
// FAILED or CANCELLED, per spec §4.8.
func (f *Facade) RetryJob(ctx context.Context, jobID string) (*models.Job, error) {
	original, err := f.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, orcherr.ErrNotFound
		}
		return nil, orcherr.Wrap(orcherr.Transient, "get job", err)
	}
	if original.Status != models.JobFailed && original.Status != models.JobCancelled {
		return nil, orcherr.New(orcherr.PreconditionFailed, "job is not in a retryable terminal state")
	}

	return f.SubmitJob(ctx, SubmitJobRequest{
		WorkflowID:         original.WorkflowID,
		WorkflowName:       original.WorkflowName,
		WorkflowDefinition: original.WorkflowDefinition,
		Variables:          original.Variables,
		TenantID:           original.TenantID,
		Tags:               original.Tags,
		AffinityKey:        original.AffinityKey,
		Priority:           original.Priority,
		MaxRetries:         original.MaxRetries,
	})
}

// MarkRunning transitions a job from CLAIMED to RUNNING, the first step of
// the robot execution protocol (spec §6).
func (f *Facade) MarkRunning(ctx context.Context, jobID string) error {
	err := f.jobs.Transition(ctx, jobID, models.JobClaimed, models.JobRunning, func(j *models.Job) {
		now := time.Now()
		j.StartedAt = &now
	})
	return wrapTransitionErr(err, "mark running")
}

// UpdateJobProgress is idempotent and a no-op if the job is not RUNNING,
// per spec §4.8.
func (f *Facade) UpdateJobProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	job, err := f.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return orcherr.ErrNotFound
		}
		return orcherr.Wrap(orcherr.Transient, "get job", err)
	}
	if job.Status != models.JobRunning {
		return nil
	}
	if err := f.jobs.UpdateProgress(ctx, jobID, progress, currentStep); err != nil {
		return orcherr.Wrap(orcherr.Transient, "update progress", err)
	}
	f.bus.Publish(ctx, events.Event{Kind: events.JobProgressed, JobID: jobID, Attrs: map[string]interface{}{"progress": progress}})
	return nil
}

// CompleteJob transitions a RUNNING job to COMPLETED, releases the robot's
// load slot, and clears its checkpoint, per spec §3 Checkpoint lifecycle.
func (f *Facade) CompleteJob(ctx context.Context, jobID, result string) error {
	job, err := f.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return orcherr.ErrNotFound
		}
		return orcherr.Wrap(orcherr.Transient, "get job", err)
	}

	err = f.jobs.Transition(ctx, jobID, models.JobRunning, models.JobCompleted, func(j *models.Job) {
		now := time.Now()
		j.CompletedAt = &now
	})
	if err := wrapTransitionErr(err, "complete job"); err != nil {
		return err
	}

	f.releaseRobotSlot(ctx, job.RobotID)
	_ = f.checkpoints.Delete(ctx, jobID)
	f.recordScheduleOutcome(ctx, job, models.OutcomeCompleted, result)

	if job.StartedAt != nil {
		telemetry.RecordJobCompletion(job.WorkflowID, string(models.JobCompleted), time.Since(*job.StartedAt).Seconds())
	}
	f.bus.Publish(ctx, events.Event{Kind: events.JobCompleted, JobID: jobID, Attrs: map[string]interface{}{"result": result}})
	return nil
}

// FailJob applies the queue-level Fail operation of spec §4.1: retry with
// backoff if budget remains, otherwise promote to DLQ.
func (f *Facade) FailJob(ctx context.Context, jobID, errMsg string) error {
	job, err := f.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return orcherr.ErrNotFound
		}
		return orcherr.Wrap(orcherr.Transient, "get job", err)
	}
	if job.Status.IsTerminal() {
		return orcherr.New(orcherr.PreconditionFailed, "job already terminal")
	}

	f.releaseRobotSlot(ctx, job.RobotID)

	storedErr, offloadErr := f.offload(ctx, fmt.Sprintf("errors/%s/%d", jobID, job.RetryCount), errMsg)
	if offloadErr != nil {
		logging.Warn("orchestrator: offload error detail", zap.String("job_id", jobID), zap.Error(offloadErr))
		storedErr = errMsg
	}

	if job.RetryCount < job.MaxRetries {
		delay := recovery.Backoff(job.RetryCount, nil)
		if err := f.jobs.Requeue(ctx, jobID, time.Now().Add(delay), storedErr); err != nil {
			return orcherr.Wrap(orcherr.Transient, "requeue job", err)
		}
		telemetry.RetriesTotal.WithLabelValues(job.WorkflowID).Inc()
		f.bus.Publish(ctx, events.Event{Kind: events.JobRequeued, JobID: jobID})
		return nil
	}

	entry := &models.DLQEntry{
		JobID: jobID, WorkflowID: job.WorkflowID, WorkflowName: job.WorkflowName,
		WorkflowDefinition: job.WorkflowDefinition, Variables: job.Variables,
		TenantID: job.TenantID, Tags: job.Tags, Priority: job.Priority,
		RetryCount: job.RetryCount, MaxRetries: job.MaxRetries, CreatedAt: job.CreatedAt,
		FinalError: storedErr, RetryHistory: job.LastError,
	}
	if err := f.dlq.Move(ctx, entry); err != nil {
		return orcherr.Wrap(orcherr.Transient, "dlq move", err)
	}
	if err := f.jobs.Delete(ctx, jobID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return orcherr.Wrap(orcherr.Transient, "delete job after dlq move", err)
	}
	_ = f.checkpoints.Delete(ctx, jobID)
	f.recordScheduleOutcome(ctx, job, models.OutcomeFailed, storedErr)

	if job.StartedAt != nil {
		telemetry.RecordJobCompletion(job.WorkflowID, string(models.JobFailed), time.Since(*job.StartedAt).Seconds())
	}
	f.bus.Publish(ctx, events.Event{Kind: events.JobFailed, JobID: jobID, Attrs: map[string]interface{}{"error": errMsg}})
	return nil
}

// ReportNodeFailure runs the per-job recovery policy engine (component C7)
// over a reported node error and returns the decided Action.
func (f *Facade) ReportNodeFailure(ec models.ErrorContext) models.Action {
	return f.policy.Decide(ec)
}

// recordScheduleOutcome relays a job's real terminal state back to the
// schedule that submitted it, satisfying spec §4.6(c)'s requirement that
// success_count/failure_count track the submitted job rather than the
// submission call. A no-op for ad hoc jobs with no ScheduleID.
func (f *Facade) recordScheduleOutcome(ctx context.Context, job *models.Job, outcome models.ExecutionOutcome, detail string) {
	if job.ScheduleID == "" {
		return
	}
	if err := f.schedEng.RecordOutcome(ctx, job.ScheduleID, job.JobID, outcome, detail); err != nil {
		logging.Warn("orchestrator: record schedule outcome", zap.String("schedule_id", job.ScheduleID), zap.String("job_id", job.JobID), zap.Error(err))
	}
}

func (f *Facade) releaseRobotSlot(ctx context.Context, robotID *string) {
	if robotID == nil {
		return
	}
	if err := f.robots.IncrementJobCount(ctx, *robotID, -1); err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Warn("orchestrator: release robot slot", zap.String("robot_id", *robotID), zap.Error(err))
	}
}

func wrapTransitionErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return orcherr.ErrNotFound
	}
	if errors.Is(err, store.ErrConflict) {
		return orcherr.New(orcherr.PreconditionFailed, op+": precondition failed")
	}
	return orcherr.Wrap(orcherr.Transient, op, err)
}

// RegisterRobot upserts a robot's identity and resets it to ONLINE.
func (f *Facade) RegisterRobot(ctx context.Context, robot *models.Robot) (*models.Robot, error) {
	if robot.RobotID == "" {
		robot.RobotID = uuid.New().String()
	}
	robot.Status = models.RobotOnline
	robot.LastHeartbeat = time.Now()
	if err := f.robots.Register(ctx, robot); err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "register robot", err)
	}
	f.bus.Publish(ctx, events.Event{Kind: events.RobotOnline, RobotID: robot.RobotID})
	return robot, nil
}

// Heartbeat refreshes a robot's liveness, per spec §4.3.
func (f *Facade) Heartbeat(ctx context.Context, robotID string, status models.RobotStatus, currentJobCount int) error {
	telemetry.HeartbeatsReceived.Inc()
	err := f.robots.Heartbeat(ctx, robotID, status, currentJobCount)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return orcherr.ErrNotFound
		}
		return orcherr.Wrap(orcherr.Transient, "heartbeat", err)
	}
	return nil
}

func (f *Facade) UpdateRobotStatus(ctx context.Context, robotID string, status models.RobotStatus) error {
	if err := f.robots.UpdateStatus(ctx, robotID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return orcherr.ErrNotFound
		}
		return orcherr.Wrap(orcherr.Transient, "update robot status", err)
	}
	kind := events.RobotOnline
	if status == models.RobotOffline || status == models.RobotFailed {
		kind = events.RobotOffline
	}
	f.bus.Publish(ctx, events.Event{Kind: kind, RobotID: robotID})
	return nil
}

// CreateSchedule, ToggleSchedule, DeleteSchedule, and GetUpcomingSchedules
// delegate to the schedule engine (component C6), per spec §4.8.
func (f *Facade) CreateSchedule(ctx context.Context, sched models.Schedule) (*models.Schedule, error) {
	created, err := f.schedEng.AddSchedule(ctx, sched)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Permanent, "create schedule", err)
	}
	return created, nil
}

func (f *Facade) UpdateSchedule(ctx context.Context, sched models.Schedule) (*models.Schedule, error) {
	updated, err := f.schedEng.UpdateSchedule(ctx, sched)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, orcherr.ErrNotFound
		}
		return nil, orcherr.Wrap(orcherr.Transient, "update schedule", err)
	}
	return updated, nil
}

func (f *Facade) ToggleSchedule(ctx context.Context, scheduleID string, enabled bool) error {
	if err := f.schedEng.EnableSchedule(ctx, scheduleID, enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return orcherr.ErrNotFound
		}
		return orcherr.Wrap(orcherr.Transient, "toggle schedule", err)
	}
	return nil
}

func (f *Facade) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if err := f.schedEng.DeleteSchedule(ctx, scheduleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return orcherr.ErrNotFound
		}
		return orcherr.Wrap(orcherr.Transient, "delete schedule", err)
	}
	return nil
}

func (f *Facade) GetUpcomingSchedules(ctx context.Context, limit int) ([]models.Schedule, error) {
	return f.schedEng.GetUpcoming(ctx, limit)
}

// GetQueueStats reports the job count by status and current DLQ depth.
func (f *Facade) GetQueueStats(ctx context.Context) (map[models.JobStatus]int64, int64, error) {
	counts, err := f.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, 0, orcherr.Wrap(orcherr.Transient, "count jobs", err)
	}
	depth, err := f.dlq.Count(ctx)
	if err != nil {
		return nil, 0, orcherr.Wrap(orcherr.Transient, "count dlq", err)
	}
	return counts, depth, nil
}

// DispatcherStats summarizes fleet capacity and breaker health.
type DispatcherStats struct {
	DispatchableRobots int
	TotalRobots        int
	Breakers           []models.BreakerSnapshot
}

func (f *Facade) GetDispatcherStats(ctx context.Context, heartbeatTimeout time.Duration) (*DispatcherStats, error) {
	all, err := f.robots.ListAll(ctx)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "list robots", err)
	}
	dispatchable, err := f.robots.ListDispatchable(ctx, heartbeatTimeout)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Transient, "list dispatchable robots", err)
	}
	return &DispatcherStats{
		DispatchableRobots: len(dispatchable),
		TotalRobots:        len(all),
		Breakers:           f.policy.Snapshots(),
	}, nil
}

// ManuallyRecover triggers recovery for a robot's jobs regardless of
// heartbeat staleness, per spec §4.5 "Manual recovery".
func (f *Facade) ManuallyRecover(ctx context.Context, robotID, reason string) error {
	if err := f.recovery.ManuallyRecover(ctx, robotID, reason); err != nil {
		return orcherr.Wrap(orcherr.Transient, "manual recovery", err)
	}
	return nil
}
