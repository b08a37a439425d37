package dispatch

import (
	"math/rand"
	"sort"
	"sync"

	"casare-orchestrator/internal/models"
)

// Policy chooses a target robot for job among the eligible set, per the
// pluggable load-balancing policies of spec §4.4. robots is non-empty and
// in no particular order; each policy sorts its own copy by RobotID
// ascending (the tie-break order).
type Policy interface {
	Select(job models.Job, robots []models.Robot) models.Robot
}

// NewPolicy constructs the named policy, defaulting to LEAST_LOADED for an
// unrecognized name.
func NewPolicy(name string) Policy {
	switch name {
	case "ROUND_ROBIN":
		return &roundRobin{}
	case "RANDOM":
		return randomPolicy{}
	case "AFFINITY":
		return affinity{fallback: leastLoaded{}}
	default:
		return leastLoaded{}
	}
}

func sortByID(robots []models.Robot) []models.Robot {
	out := make([]models.Robot, len(robots))
	copy(out, robots)
	sort.Slice(out, func(i, j int) bool { return out[i].RobotID < out[j].RobotID })
	return out
}

// leastLoaded minimizes current_job_count/max_concurrent_jobs, breaking
// ties by the robot reporting more total memory (TotalMemoryMB),
// then by RobotID lexicographic order.
type leastLoaded struct{}

func (leastLoaded) Select(_ models.Job, robots []models.Robot) models.Robot {
	candidates := sortByID(robots)
	best := candidates[0]
	bestRatio := loadRatio(best)
	for _, r := range candidates[1:] {
		ratio := loadRatio(r)
		switch {
		case ratio < bestRatio:
			best, bestRatio = r, ratio
		case ratio == bestRatio && r.TotalMemoryMB > best.TotalMemoryMB:
			best = r
		}
	}
	return best
}

func loadRatio(r models.Robot) float64 {
	if r.MaxConcurrentJobs <= 0 {
		return 1
	}
	return float64(r.CurrentJobCount) / float64(r.MaxConcurrentJobs)
}

// roundRobin cycles through eligible robots in stable (RobotID) order.
// The cursor is shared across calls on one Policy instance, matching "one
// loop iteration at a time" dispatcher concurrency (spec §4.4).
type roundRobin struct {
	mu     sync.Mutex
	cursor int
}

func (p *roundRobin) Select(_ models.Job, robots []models.Robot) models.Robot {
	candidates := sortByID(robots)
	p.mu.Lock()
	idx := p.cursor % len(candidates)
	p.cursor++
	p.mu.Unlock()
	return candidates[idx]
}

// randomPolicy picks uniformly among eligible robots.
type randomPolicy struct{}

func (randomPolicy) Select(_ models.Job, robots []models.Robot) models.Robot {
	candidates := sortByID(robots)
	return candidates[rand.Intn(len(candidates))]
}

// affinity prefers a robot whose AffinityKey matches the job's, falling
// back to another policy (LEAST_LOADED) when none matches.
type affinity struct {
	fallback Policy
}

func (a affinity) Select(job models.Job, robots []models.Robot) models.Robot {
	if job.AffinityKey != "" {
		matches := make([]models.Robot, 0, len(robots))
		for _, r := range robots {
			if r.AffinityKey == job.AffinityKey {
				matches = append(matches, r)
			}
		}
		if len(matches) > 0 {
			return a.fallback.Select(job, matches)
		}
	}
	return a.fallback.Select(job, robots)
}
