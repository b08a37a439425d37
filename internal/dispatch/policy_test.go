package dispatch_test

import (
	"testing"

	. "casare-orchestrator/internal/dispatch"
	"casare-orchestrator/internal/models"
)

func robot(id string, current, max int, memMB uint64) models.Robot {
	return models.Robot{
		RobotID:           id,
		CurrentJobCount:   current,
		MaxConcurrentJobs: max,
		TotalMemoryMB:     memMB,
	}
}

func TestLeastLoaded_PicksLowerRatio(t *testing.T) {
	p := NewPolicy("LEAST_LOADED")
	robots := []models.Robot{
		robot("b", 4, 5, 1024),
		robot("a", 1, 5, 1024),
	}
	got := p.Select(models.Job{}, robots)
	if got.RobotID != "a" {
		t.Errorf("expected robot a (lower load ratio), got %s", got.RobotID)
	}
}

func TestLeastLoaded_TieBreaksOnMoreMemory(t *testing.T) {
	p := NewPolicy("LEAST_LOADED")
	robots := []models.Robot{
		robot("a", 1, 2, 2048),
		robot("b", 1, 2, 4096),
	}
	got := p.Select(models.Job{}, robots)
	if got.RobotID != "b" {
		t.Errorf("expected robot b (more spare memory) to win the tie, got %s", got.RobotID)
	}
}

func TestLeastLoaded_TieBreaksOnRobotIDWhenMemoryEqual(t *testing.T) {
	p := NewPolicy("LEAST_LOADED")
	robots := []models.Robot{
		robot("zeta", 1, 2, 2048),
		robot("alpha", 1, 2, 2048),
	}
	got := p.Select(models.Job{}, robots)
	if got.RobotID != "alpha" {
		t.Errorf("expected lexicographically first robot id to win a full tie, got %s", got.RobotID)
	}
}

func TestLeastLoaded_Deterministic(t *testing.T) {
	p := NewPolicy("LEAST_LOADED")
	robots := []models.Robot{
		robot("c", 2, 4, 1024),
		robot("a", 1, 4, 2048),
		robot("b", 1, 4, 4096),
	}
	var first models.Robot
	for i := 0; i < 20; i++ {
		got := p.Select(models.Job{}, robots)
		if i == 0 {
			first = got
			continue
		}
		if got.RobotID != first.RobotID {
			t.Fatalf("selection not deterministic across calls: got %s then %s", first.RobotID, got.RobotID)
		}
	}
	if first.RobotID != "b" {
		t.Errorf("expected robot b (lowest ratio, 0.25), got %s", first.RobotID)
	}
}

func TestRoundRobin_CyclesInStableOrder(t *testing.T) {
	p := NewPolicy("ROUND_ROBIN")
	robots := []models.Robot{
		robot("b", 0, 1, 0),
		robot("a", 0, 1, 0),
		robot("c", 0, 1, 0),
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	for i, w := range want {
		got := p.Select(models.Job{}, robots)
		if got.RobotID != w {
			t.Errorf("call %d: expected %s, got %s", i, w, got.RobotID)
		}
	}
}

func TestAffinity_PrefersMatchingRobot(t *testing.T) {
	p := NewPolicy("AFFINITY")
	job := models.Job{AffinityKey: "gpu"}
	robots := []models.Robot{
		{RobotID: "a", MaxConcurrentJobs: 1, AffinityKey: "gpu"},
		{RobotID: "b", MaxConcurrentJobs: 1},
	}
	got := p.Select(job, robots)
	if got.RobotID != "a" {
		t.Errorf("expected robot a with matching affinity key, got %s", got.RobotID)
	}
}

func TestAffinity_FallsBackWhenNoMatch(t *testing.T) {
	p := NewPolicy("AFFINITY")
	job := models.Job{AffinityKey: "gpu"}
	robots := []models.Robot{
		robot("a", 3, 4, 1024),
		robot("b", 1, 4, 1024),
	}
	got := p.Select(job, robots)
	if got.RobotID != "b" {
		t.Errorf("expected fallback to least-loaded robot b, got %s", got.RobotID)
	}
}
