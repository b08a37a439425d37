// Package dispatch implements the periodic matching of claimable jobs to
// eligible robots (component C4), grounded on the teacher's
// pkg/scheduler/core.go Run/PollAndSchedule loop structure.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"casare-orchestrator/internal/coordination"
	"casare-orchestrator/internal/events"
	"casare-orchestrator/internal/logging"
	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
	"casare-orchestrator/internal/telemetry"
)

// ElectionKey is the fixed campaign name the dispatcher's leader election
// runs under (spec §4.8 "three fixed campaign names").
const ElectionKey = "dispatch"

// Config holds the dispatcher's tunables, per spec §6.
type Config struct {
	Interval         time.Duration
	BatchSize        int
	HeartbeatTimeout time.Duration
	LoadBalancing    string
}

// Dispatcher runs the C4 loop: it only acts while it holds the "dispatch"
// leader election key, and relies on Queue.Claim's SKIP LOCKED semantics as
// the actual safety net for multi-instance deployments (spec §4.4).
type Dispatcher struct {
	jobs     store.JobStore
	robots   store.RobotStore
	election coordination.Election
	identity string
	bus      events.Bus
	policy   Policy
	cfg      Config
}

// New constructs a Dispatcher over the given stores and election handle.
// identity is this orchestrator instance's campaign value, compared against
// the election's current leader on every tick.
func New(jobs store.JobStore, robots store.RobotStore, election coordination.Election, identity string, bus events.Bus, cfg Config) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		robots:   robots,
		election: election,
		identity: identity,
		bus:      bus,
		policy:   NewPolicy(cfg.LoadBalancing),
		cfg:      cfg,
	}
}

// Run blocks, ticking every cfg.Interval until ctx is cancelled. It follows
// the teacher's "for { select { <-cancel: return; <-tick: body } }" shape.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			isLeader, err := d.isLeader(ctx)
			if err != nil {
				logging.Warn("dispatch: leadership check failed", zap.Error(err))
				continue
			}
			if !isLeader {
				continue
			}
			if _, err := d.RunOnce(ctx); err != nil {
				logging.Error("dispatch: cycle failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) isLeader(ctx context.Context) (bool, error) {
	leader, err := d.election.Leader(ctx)
	if err != nil {
		return false, err
	}
	return leader == d.identity, nil
}

// RunOnce performs one dispatch cycle (spec §4.4 steps 1-4) and returns the
// number of jobs successfully handed off to a robot.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	telemetry.DispatchCycles.Inc()

	robots, err := d.robots.ListDispatchable(ctx, d.cfg.HeartbeatTimeout)
	if err != nil {
		return 0, err
	}
	if len(robots) == 0 {
		return 0, nil
	}

	capacity := 0
	for _, r := range robots {
		capacity += r.MaxConcurrentJobs - r.CurrentJobCount
	}
	if capacity <= 0 {
		return 0, nil
	}

	batch := d.cfg.BatchSize
	if capacity < batch {
		batch = capacity
	}

	candidates, err := d.jobs.Claim(ctx, store.OrchestratorRobotID, batch)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	dispatched := 0
	for _, job := range candidates {
		eligible := dispatchableNow(robots, d.cfg.HeartbeatTimeout)
		if len(eligible) == 0 {
			d.release(ctx, job.JobID, "no dispatchable robot remained in this cycle")
			continue
		}

		target := d.policy.Select(job, eligible)

		if err := d.robots.IncrementJobCount(ctx, target.RobotID, 1); err != nil {
			// Lost the capacity race (or robot vanished); try the next
			// cycle rather than stalling this job.
			d.release(ctx, job.JobID, "handoff target became unavailable: "+err.Error())
			continue
		}

		if err := d.jobs.Handoff(ctx, job.JobID, store.OrchestratorRobotID, target.RobotID); err != nil {
			_ = d.robots.IncrementJobCount(ctx, target.RobotID, -1)
			d.release(ctx, job.JobID, "handoff lost race: "+err.Error())
			continue
		}

		for i := range robots {
			if robots[i].RobotID == target.RobotID {
				robots[i].CurrentJobCount++
			}
		}

		telemetry.RecordDispatch(time.Since(job.VisibleAfter).Seconds())
		d.bus.Publish(ctx, events.Event{Kind: events.JobClaimed, JobID: job.JobID, RobotID: target.RobotID})
		dispatched++
	}

	return dispatched, nil
}

func (d *Dispatcher) release(ctx context.Context, jobID, note string) {
	if err := d.jobs.Release(ctx, jobID, time.Now(), note); err != nil {
		logging.Warn("dispatch: release after failed handoff failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func dispatchableNow(robots []models.Robot, heartbeatTimeout time.Duration) []models.Robot {
	now := time.Now()
	out := make([]models.Robot, 0, len(robots))
	for _, r := range robots {
		if r.Dispatchable(now, heartbeatTimeout) {
			out = append(out, r)
		}
	}
	return out
}
