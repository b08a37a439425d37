//go:build integration

package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"casare-orchestrator/internal/coordination/local"
	"casare-orchestrator/internal/dispatch"
	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/orchestrator"
	"casare-orchestrator/internal/policy"
	"casare-orchestrator/internal/recovery"
	"casare-orchestrator/internal/resilience"
	"casare-orchestrator/internal/schedule"
	"casare-orchestrator/internal/store/postgres"
)

// JobLifecycleSuite exercises submit -> dispatch -> complete against a real
// Postgres instance, skipping if one isn't reachable (the teacher's own
// tests/integration/job_lifecycle_test.go convention). Coordination and the
// event bus use the in-process local implementations rather than etcd/Redis,
// since a single orchestrator replica under test needs neither.
type JobLifecycleSuite struct {
	suite.Suite
	facade *orchestrator.Facade
	cancel context.CancelFunc
}

func (s *JobLifecycleSuite) SetupSuite() {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		s.T().Skip("skipping integration tests (SKIP_INTEGRATION_TESTS=true)")
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "orchestrator"),
		getEnv("TEST_DB_PASS", "password"),
		getEnv("TEST_DB_NAME", "orchestrator_test"),
	)
	db, err := postgres.Open(connStr)
	if err != nil {
		s.T().Skipf("skipping integration tests: %v", err)
	}

	coordinator := local.New()
	bus := events.NewLocalBus()
	policyEngine := policy.New(nil, resilience.DefaultConfig(), []int{1, 2, 5})

	s.facade = orchestrator.New(orchestrator.Deps{
		Jobs:        db.Jobs(),
		Robots:      db.Robots(),
		Schedules:   db.Schedules(),
		Checkpoints: db.Checkpoints(),
		DLQ:         db.DLQ(),
		Coordinator: coordinator,
		Bus:         bus,
		Policy:      policyEngine,
		DispatchConfig: dispatch.Config{
			Interval:         50 * time.Millisecond,
			BatchSize:        10,
			HeartbeatTimeout: 30 * time.Second,
			LoadBalancing:    "least-loaded",
		},
		RecoveryConfig: recovery.Config{
			MonitorInterval:     time.Second,
			HeartbeatTimeout:    30 * time.Second,
			DefaultRequeueDelay: time.Second,
			DefaultJobTimeout:   time.Minute,
			BackoffSeconds:      []int{1, 2, 5},
		},
		ScheduleConfig: schedule.Config{
			TickInterval:  time.Second,
			HistoryRetain: 24 * time.Hour,
			MaxConcurrent: 1,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.facade.Start(ctx)
}

func (s *JobLifecycleSuite) TearDownSuite() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.facade != nil {
		s.facade.Stop(context.Background())
	}
}

func (s *JobLifecycleSuite) TestSubmitDispatchComplete() {
	ctx := context.Background()

	robot, err := s.facade.RegisterRobot(ctx, &models.Robot{
		Name:              "integration-robot",
		MaxConcurrentJobs: 1,
	})
	require.NoError(s.T(), err)

	job, err := s.facade.SubmitJob(ctx, orchestrator.SubmitJobRequest{
		WorkflowID:         "integration-workflow",
		WorkflowDefinition: `[{"node_id":"n1","node_kind":"noop"}]`,
		MaxRetries:         1,
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), models.JobPending, job.Status)

	assigned, err := s.facade.WaitForAssignment(ctx, robot.RobotID, 5*time.Second)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), assigned)
	require.Equal(s.T(), job.JobID, assigned.JobID)

	require.NoError(s.T(), s.facade.MarkRunning(ctx, job.JobID))
	require.NoError(s.T(), s.facade.CompleteJob(ctx, job.JobID, "done"))

	final, err := s.facade.GetJob(ctx, job.JobID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), models.JobCompleted, final.Status)
}

func (s *JobLifecycleSuite) TestFailExhaustsRetriesIntoDLQ() {
	ctx := context.Background()

	robot, err := s.facade.RegisterRobot(ctx, &models.Robot{
		Name:              "integration-robot-2",
		MaxConcurrentJobs: 1,
	})
	require.NoError(s.T(), err)

	job, err := s.facade.SubmitJob(ctx, orchestrator.SubmitJobRequest{
		WorkflowID:         "integration-workflow-fail",
		WorkflowDefinition: `[{"node_id":"n1","node_kind":"noop"}]`,
		MaxRetries:         0,
	})
	require.NoError(s.T(), err)

	assigned, err := s.facade.WaitForAssignment(ctx, robot.RobotID, 5*time.Second)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), assigned)

	require.NoError(s.T(), s.facade.MarkRunning(ctx, job.JobID))
	require.NoError(s.T(), s.facade.FailJob(ctx, job.JobID, "simulated failure"))

	_, err = s.facade.GetJob(ctx, job.JobID)
	require.Error(s.T(), err, "job should have been moved out of the jobs table into the DLQ")

	entries, err := s.facade.ListDLQ(ctx, 10)
	require.NoError(s.T(), err)
	found := false
	for _, e := range entries {
		if e.JobID == job.JobID {
			found = true
		}
	}
	require.True(s.T(), found, "expected failed job to appear in the DLQ")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func TestJobLifecycle(t *testing.T) {
	suite.Run(t, new(JobLifecycleSuite))
}
