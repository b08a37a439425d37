package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
)

// ScheduleStore implements store.ScheduleStore over Postgres via GORM.
type ScheduleStore struct {
	db *gorm.DB
}

func (s *ScheduleStore) Create(ctx context.Context, sched *models.Schedule) error {
	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Update(ctx context.Context, sched *models.Schedule) error {
	result := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("schedule_id = ?", sched.ScheduleID).
		Updates(sched)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ScheduleStore) Delete(ctx context.Context, scheduleID string) error {
	result := s.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Delete(&models.Schedule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ScheduleStore) SetEnabled(ctx context.Context, scheduleID string, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("schedule_id = ?", scheduleID).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ScheduleStore) Get(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	var sched models.Schedule
	err := s.db.WithContext(ctx).First(&sched, "schedule_id = ?", scheduleID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListDue returns enabled schedules whose next_run has arrived, the input
// to the schedule engine's firing loop (component C6, spec §4.6).
func (s *ScheduleStore) ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.Schedule, error) {
	var scheds []models.Schedule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("next_run <= ?", asOf).
		Order("next_run ASC").
		Limit(limit).
		Find(&scheds).Error
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return scheds, nil
}

func (s *ScheduleStore) ListUpcoming(ctx context.Context, limit int) ([]models.Schedule, error) {
	var scheds []models.Schedule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("next_run IS NOT NULL").
		Order("next_run ASC").
		Limit(limit).
		Find(&scheds).Error
	if err != nil {
		return nil, fmt.Errorf("list upcoming schedules: %w", err)
	}
	return scheds, nil
}

// RecordFiring advances a schedule's next_run/last_run/run_count and writes
// an ExecutionHistory row in one transaction. outcome here is only ever
// SUBMITTED or SUBMIT_FAILED: it reflects whether the fire-time call into
// the queue itself succeeded, not whether the resulting job ever completed.
// A submission failure never produces a job, so it is counted as a
// schedule failure immediately; a successful submission's success/failure
// is instead recorded later by RecordOutcome, once the job reaches a
// terminal state.
func (s *ScheduleStore) RecordFiring(ctx context.Context, scheduleID string, nextRun time.Time, outcome models.ExecutionOutcome, jobID, detail string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{
			"last_run":  now,
			"next_run":  nextRun,
			"run_count": gorm.Expr("run_count + 1"),
		}
		if outcome == models.OutcomeSubmitFailed {
			updates["failure_count"] = gorm.Expr("failure_count + 1")
		}

		if err := tx.Model(&models.Schedule{}).
			Where("schedule_id = ?", scheduleID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("record firing: update schedule: %w", err)
		}

		history := models.ExecutionHistory{
			ScheduleID: scheduleID,
			JobID:      jobID,
			Outcome:    outcome,
			Detail:     detail,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("record firing: insert history: %w", err)
		}
		return nil
	})
}

// RecordOutcome updates a schedule's success_count/failure_count and the
// execution_history row job_id belongs to once the submitted job reaches a
// terminal state (CompleteJob/FailJob calling back from
// internal/orchestrator, the asynchronous listener spec §4.6(c) requires).
// It is a no-op on the schedule row if scheduleID no longer exists (the
// schedule may have been deleted while its job was still running).
func (s *ScheduleStore) RecordOutcome(ctx context.Context, scheduleID, jobID string, outcome models.ExecutionOutcome, detail string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		switch outcome {
		case models.OutcomeCompleted:
			updates["success_count"] = gorm.Expr("success_count + 1")
		case models.OutcomeFailed:
			updates["failure_count"] = gorm.Expr("failure_count + 1")
		default:
			return fmt.Errorf("record outcome: unsupported terminal outcome %s", outcome)
		}

		if err := tx.Model(&models.Schedule{}).
			Where("schedule_id = ?", scheduleID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("record outcome: update schedule: %w", err)
		}

		if err := tx.Model(&models.ExecutionHistory{}).
			Where("schedule_id = ? AND job_id = ?", scheduleID, jobID).
			Updates(map[string]interface{}{"outcome": outcome, "detail": detail}).Error; err != nil {
			return fmt.Errorf("record outcome: update history: %w", err)
		}
		return nil
	})
}
