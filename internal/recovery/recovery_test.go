package recovery

import (
	"context"
	"testing"
	"time"

	"casare-orchestrator/internal/coordination/local"
	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
)

func TestBackoff_UsesConfiguredScheduleWithJitter(t *testing.T) {
	schedule := []int{10, 60, 300}
	for attempt, base := range schedule {
		d := Backoff(attempt, schedule)
		min := time.Duration(float64(base)*0.8) * time.Second
		max := time.Duration(float64(base)*1.2) * time.Second
		if d < min || d > max {
			t.Errorf("attempt %d: backoff %v out of expected range [%v, %v]", attempt, d, min, max)
		}
	}
}

func TestBackoff_ClampsToLastEntryPastScheduleLength(t *testing.T) {
	schedule := []int{10, 60}
	d := Backoff(10, schedule)
	min := time.Duration(float64(60)*0.8) * time.Second
	max := time.Duration(float64(60)*1.2) * time.Second
	if d < min || d > max {
		t.Errorf("expected backoff clamped to last schedule entry, got %v", d)
	}
}

func TestBackoff_DefaultsWhenScheduleEmpty(t *testing.T) {
	d := Backoff(0, nil)
	if d < 8*time.Second || d > 12*time.Second {
		t.Errorf("expected default first backoff near 10s, got %v", d)
	}
}

// fakeJobs is a minimal in-memory store.JobStore recording which recovery
// path a test exercised.
type fakeJobs struct {
	releaseCalls int
	requeueCalls int
	deleteCalls  int
}

func (f *fakeJobs) CreateJob(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	return job, false, nil
}
func (f *fakeJobs) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (f *fakeJobs) Claim(ctx context.Context, robotID string, limit int) ([]models.Job, error) {
	return nil, nil
}
func (f *fakeJobs) ListVisible(ctx context.Context, limit int) ([]models.Job, error) {
	return nil, nil
}
func (f *fakeJobs) Transition(ctx context.Context, jobID string, fromStatus, toStatus models.JobStatus, mutate func(*models.Job)) error {
	return nil
}
func (f *fakeJobs) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	return nil
}
func (f *fakeJobs) Requeue(ctx context.Context, jobID string, visibleAfter time.Time, lastError string) error {
	f.requeueCalls++
	return nil
}
func (f *fakeJobs) Cancel(ctx context.Context, jobID string) error { return nil }
func (f *fakeJobs) Delete(ctx context.Context, jobID string) error {
	f.deleteCalls++
	return nil
}
func (f *fakeJobs) Handoff(ctx context.Context, jobID, fromRobotID, toRobotID string) error {
	return nil
}
func (f *fakeJobs) Release(ctx context.Context, jobID string, visibleAfter time.Time, note string) error {
	f.releaseCalls++
	return nil
}
func (f *fakeJobs) ListOrphaned(ctx context.Context, activeRobotIDs []string) ([]models.Job, error) {
	return nil, nil
}
func (f *fakeJobs) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	return nil, nil
}
func (f *fakeJobs) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	return nil, nil
}
func (f *fakeJobs) ListAll(ctx context.Context, limit int) ([]models.Job, error) { return nil, nil }
func (f *fakeJobs) ListClaimedForRobot(ctx context.Context, robotID string) ([]models.Job, error) {
	return nil, nil
}

type fakeRobots struct{}

func (fakeRobots) Register(ctx context.Context, robot *models.Robot) error { return nil }
func (fakeRobots) Heartbeat(ctx context.Context, robotID string, status models.RobotStatus, currentJobCount int) error {
	return nil
}
func (fakeRobots) UpdateStatus(ctx context.Context, robotID string, status models.RobotStatus) error {
	return nil
}
func (fakeRobots) Get(ctx context.Context, robotID string) (*models.Robot, error) {
	return nil, store.ErrNotFound
}
func (fakeRobots) ListDispatchable(ctx context.Context, heartbeatTimeout time.Duration) ([]models.Robot, error) {
	return nil, nil
}
func (fakeRobots) ListStale(ctx context.Context, heartbeatTimeout time.Duration) ([]models.Robot, error) {
	return nil, nil
}
func (fakeRobots) IncrementJobCount(ctx context.Context, robotID string, delta int) error {
	return nil
}
func (fakeRobots) ListAll(ctx context.Context) ([]models.Robot, error) { return nil, nil }

type fakeCheckpoints struct {
	cp  *models.Checkpoint
	err error
}

func (f *fakeCheckpoints) Upsert(ctx context.Context, cp *models.Checkpoint) error { return nil }
func (f *fakeCheckpoints) Get(ctx context.Context, workflowInstanceID string) (*models.Checkpoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cp, nil
}
func (f *fakeCheckpoints) Delete(ctx context.Context, workflowInstanceID string) error { return nil }

type fakeDLQ struct {
	moveCalls int
}

func (f *fakeDLQ) Move(ctx context.Context, entry *models.DLQEntry) error {
	f.moveCalls++
	return nil
}
func (f *fakeDLQ) List(ctx context.Context, limit int) ([]models.DLQEntry, error) { return nil, nil }
func (f *fakeDLQ) Get(ctx context.Context, jobID string) (*models.DLQEntry, error) {
	return nil, store.ErrNotFound
}
func (f *fakeDLQ) Delete(ctx context.Context, jobID string) error { return nil }
func (f *fakeDLQ) Count(ctx context.Context) (int64, error)       { return 0, nil }

func newTestManager(jobs *fakeJobs, robots fakeRobots, checkpoints *fakeCheckpoints, dlq *fakeDLQ, cfg Config) *Manager {
	election := local.New().NewElection(ElectionKey)
	return New(jobs, robots, checkpoints, dlq, election, "test-identity", events.NewLocalBus(), cfg)
}

func TestRecoverJob_ResumesFromCheckpointWithoutRetryIncrement(t *testing.T) {
	jobs := &fakeJobs{}
	checkpoints := &fakeCheckpoints{cp: &models.Checkpoint{State: models.CheckpointPending, CurrentStep: 2}}
	dlq := &fakeDLQ{}
	m := newTestManager(jobs, fakeRobots{}, checkpoints, dlq, Config{
		CheckpointRecoveryEnabled: true,
		DefaultRequeueDelay:      time.Second,
		BackoffSeconds:           []int{10, 60},
	})

	job := models.Job{JobID: "job-1", RetryCount: 0, MaxRetries: 5}
	outcome := m.recoverJob(context.Background(), job)

	if outcome != ResumedFromCheckpoint {
		t.Fatalf("expected ResumedFromCheckpoint, got %s", outcome)
	}
	if jobs.releaseCalls != 1 {
		t.Errorf("expected Release to be called once, got %d", jobs.releaseCalls)
	}
	if jobs.requeueCalls != 0 {
		t.Errorf("checkpoint resume must not go through Requeue (which increments retry_count), got %d calls", jobs.requeueCalls)
	}
}

func TestRecoverJob_RequeuesForRetryWithoutCheckpoint(t *testing.T) {
	jobs := &fakeJobs{}
	checkpoints := &fakeCheckpoints{err: store.ErrNotFound}
	dlq := &fakeDLQ{}
	m := newTestManager(jobs, fakeRobots{}, checkpoints, dlq, Config{
		CheckpointRecoveryEnabled: true,
		DefaultRequeueDelay:      time.Second,
		BackoffSeconds:           []int{10, 60},
	})

	job := models.Job{JobID: "job-2", RetryCount: 0, MaxRetries: 5}
	outcome := m.recoverJob(context.Background(), job)

	if outcome != RequeuedForRetry {
		t.Fatalf("expected RequeuedForRetry, got %s", outcome)
	}
	if jobs.requeueCalls != 1 {
		t.Errorf("expected Requeue to be called once, got %d", jobs.requeueCalls)
	}
	if jobs.releaseCalls != 0 {
		t.Errorf("expected Release not to be called, got %d", jobs.releaseCalls)
	}
}

func TestRecoverJob_PromotesToDLQWhenRetriesExhausted(t *testing.T) {
	jobs := &fakeJobs{}
	checkpoints := &fakeCheckpoints{err: store.ErrNotFound}
	dlq := &fakeDLQ{}
	m := newTestManager(jobs, fakeRobots{}, checkpoints, dlq, Config{
		DLQEnabled:     true,
		BackoffSeconds: []int{10, 60},
	})

	job := models.Job{JobID: "job-3", RetryCount: 5, MaxRetries: 5}
	outcome := m.recoverJob(context.Background(), job)

	if outcome != MovedToDLQ {
		t.Fatalf("expected MovedToDLQ, got %s", outcome)
	}
	if dlq.moveCalls != 1 {
		t.Errorf("expected dlq.Move to be called once, got %d", dlq.moveCalls)
	}
	if jobs.deleteCalls != 1 {
		t.Errorf("expected the job row to be deleted after dlq move, got %d", jobs.deleteCalls)
	}
}

func TestRecoverJob_RetriesExhaustedButDLQDisabledFailsQuietly(t *testing.T) {
	jobs := &fakeJobs{}
	checkpoints := &fakeCheckpoints{err: store.ErrNotFound}
	dlq := &fakeDLQ{}
	m := newTestManager(jobs, fakeRobots{}, checkpoints, dlq, Config{
		DLQEnabled: false,
	})

	job := models.Job{JobID: "job-4", RetryCount: 5, MaxRetries: 5}
	outcome := m.recoverJob(context.Background(), job)

	if outcome != RecoveryFailed {
		t.Fatalf("expected RecoveryFailed when DLQ is disabled, got %s", outcome)
	}
	if dlq.moveCalls != 0 {
		t.Errorf("expected dlq.Move not to be called, got %d", dlq.moveCalls)
	}
}
