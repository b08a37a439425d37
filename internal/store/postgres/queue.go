package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
)

// JobStore implements store.JobStore over Postgres via GORM.
type JobStore struct {
	db *gorm.DB
}

// CreateJob persists job, or returns the existing in-flight job sharing its
// fingerprint, per the submission-time dedup rule in spec §4.1.
func (s *JobStore) CreateJob(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	var created *models.Job
	var deduped bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if job.Fingerprint != "" {
			var existing models.Job
			err := tx.Where("fingerprint = ? AND status IN ?", job.Fingerprint,
				[]models.JobStatus{models.JobPending, models.JobQueued, models.JobClaimed, models.JobRunning}).
				First(&existing).Error
			if err == nil {
				created = &existing
				deduped = true
				return nil
			}
			if err != gorm.ErrRecordNotFound {
				return err
			}
		}

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		created = job
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return created, deduped, nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Claim selects up to limit visible jobs (status PENDING/QUEUED,
// visible_after <= now), locks them with SELECT ... FOR UPDATE SKIP LOCKED
// so concurrent orchestrator replicas never double-assign a row, and marks
// them CLAIMED for robotID. This is the queue's single atomic-claim
// primitive, per spec §4.1 invariant 1 and §8 invariant 1.
func (s *JobStore) Claim(ctx context.Context, robotID string, limit int) ([]models.Job, error) {
	var claimed []models.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ?", []models.JobStatus{models.JobPending, models.JobQueued}).
			Where("visible_after <= ?", time.Now()).
			Order("priority DESC, created_at ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("claim: select candidates: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		now := time.Now()
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.JobID
		}

		if err := tx.Model(&models.Job{}).
			Where("job_id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     models.JobClaimed,
				"robot_id":   robotID,
				"claimed_at": now,
			}).Error; err != nil {
			return fmt.Errorf("claim: update candidates: %w", err)
		}

		for i := range candidates {
			candidates[i].Status = models.JobClaimed
			candidates[i].RobotID = &robotID
			candidates[i].ClaimedAt = &now
		}
		claimed = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ListVisible returns eligible jobs without claiming them, for dispatcher
// dry-run decisions (load balancing policy evaluation happens over this
// list before Claim is called with the chosen robot).
func (s *JobStore) ListVisible(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.JobStatus{models.JobPending, models.JobQueued}).
		Where("visible_after <= ?", time.Now()).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list visible: %w", err)
	}
	return jobs, nil
}

// Transition performs job_id's status change only if its current status is
// fromStatus, implementing the optimistic-concurrency pattern used
// throughout the lifecycle (spec §8 invariant 3: no transition from a
// terminal state).
func (s *JobStore) Transition(ctx context.Context, jobID string, fromStatus, toStatus models.JobStatus, mutate func(*models.Job)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&job, "job_id = ?", jobID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return store.ErrNotFound
			}
			return err
		}
		if job.Status != fromStatus {
			return store.ErrConflict
		}
		job.Status = toStatus
		if mutate != nil {
			mutate(&job)
		}
		return tx.Save(&job).Error
	})
}

func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	result := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"progress":     progress,
			"current_step": currentStep,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Requeue returns a job to QUEUED after a failed attempt, bumping
// retry_count and setting the new visibility delay, per spec §4.1/§4.4.
func (s *JobStore) Requeue(ctx context.Context, jobID string, visibleAfter time.Time, lastError string) error {
	result := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status IN ?", jobID, []models.JobStatus{models.JobClaimed, models.JobRunning}).
		Updates(map[string]interface{}{
			"status":        models.JobQueued,
			"robot_id":      nil,
			"claimed_at":    nil,
			"started_at":    nil,
			"visible_after": visibleAfter,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrConflict
	}
	return nil
}

// Handoff reassigns jobID from the orchestrator's synthetic claimant to
// toRobotID, the final step of a dispatch decision (spec §4.4 step 4).
func (s *JobStore) Handoff(ctx context.Context, jobID, fromRobotID, toRobotID string) error {
	result := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND robot_id = ? AND status = ?", jobID, fromRobotID, models.JobClaimed).
		Updates(map[string]interface{}{
			"robot_id":   toRobotID,
			"claimed_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrConflict
	}
	return nil
}

// Release returns a CLAIMED/RUNNING job to QUEUED with no claimant,
// leaving retry_count untouched, per spec §4.1 Release / §4.5 step 2.
func (s *JobStore) Release(ctx context.Context, jobID string, visibleAfter time.Time, note string) error {
	result := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status IN ?", jobID, []models.JobStatus{models.JobClaimed, models.JobRunning}).
		Updates(map[string]interface{}{
			"status":        models.JobQueued,
			"robot_id":      nil,
			"claimed_at":    nil,
			"started_at":    nil,
			"visible_after": visibleAfter,
			"last_error":    note,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrConflict
	}
	return nil
}

// Cancel moves a non-terminal job directly to CANCELLED, per spec §4.1's
// CancelJob operation.
func (s *JobStore) Cancel(ctx context.Context, jobID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status NOT IN ?", jobID, []models.JobStatus{
			models.JobCompleted, models.JobFailed, models.JobCancelled,
		}).
		Updates(map[string]interface{}{
			"status":       models.JobCancelled,
			"completed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrConflict
	}
	return nil
}

// Delete hard-deletes jobID, the second half of DLQ promotion.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	result := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.Job{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListOrphaned returns CLAIMED/RUNNING jobs whose assigned robot is not in
// activeRobotIDs, the input to the recovery manager's detection loop
// (component C5, spec §4.4).
func (s *JobStore) ListOrphaned(ctx context.Context, activeRobotIDs []string) ([]models.Job, error) {
	query := s.db.WithContext(ctx).
		Where("status IN ?", []models.JobStatus{models.JobClaimed, models.JobRunning})

	if len(activeRobotIDs) > 0 {
		query = query.Where("robot_id IS NULL OR robot_id NOT IN ?", activeRobotIDs)
	}

	var jobs []models.Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list orphaned: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	return jobs, nil
}

// ListAll returns the most recently created jobs regardless of status.
func (s *JobStore) ListAll(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list all jobs: %w", err)
	}
	return jobs, nil
}

// ListClaimedForRobot returns robotID's currently CLAIMED jobs, the
// assignment endpoint's backing query (spec §6).
func (s *JobStore) ListClaimedForRobot(ctx context.Context, robotID string) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("robot_id = ? AND status = ?", robotID, models.JobClaimed).
		Order("claimed_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list claimed for robot: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	type row struct {
		Status models.JobStatus
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	out := make(map[models.JobStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
