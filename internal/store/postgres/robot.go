package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
)

// RobotStore implements store.RobotStore over Postgres via GORM.
type RobotStore struct {
	db *gorm.DB
}

func (s *RobotStore) Register(ctx context.Context, robot *models.Robot) error {
	err := s.db.WithContext(ctx).
		Clauses(onConflictUpdateRobot()).
		Create(robot).Error
	if err != nil {
		return fmt.Errorf("register robot: %w", err)
	}
	return nil
}

func (s *RobotStore) Heartbeat(ctx context.Context, robotID string, status models.RobotStatus, currentJobCount int) error {
	result := s.db.WithContext(ctx).Model(&models.Robot{}).
		Where("robot_id = ?", robotID).
		Updates(map[string]interface{}{
			"status":            status,
			"current_job_count": currentJobCount,
			"last_heartbeat":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *RobotStore) UpdateStatus(ctx context.Context, robotID string, status models.RobotStatus) error {
	result := s.db.WithContext(ctx).Model(&models.Robot{}).
		Where("robot_id = ?", robotID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *RobotStore) Get(ctx context.Context, robotID string) (*models.Robot, error) {
	var robot models.Robot
	err := s.db.WithContext(ctx).First(&robot, "robot_id = ?", robotID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &robot, nil
}

// ListDispatchable returns robots with status ONLINE/BUSY, under capacity,
// and a heartbeat within heartbeatTimeout — the dispatcher's candidate set
// for load-balancing policy evaluation (spec §4.3 predicate in §3).
func (s *RobotStore) ListDispatchable(ctx context.Context, heartbeatTimeout time.Duration) ([]models.Robot, error) {
	var robots []models.Robot
	cutoff := time.Now().Add(-heartbeatTimeout)
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.RobotStatus{models.RobotOnline, models.RobotBusy}).
		Where("current_job_count < max_concurrent_jobs").
		Where("last_heartbeat >= ?", cutoff).
		Find(&robots).Error
	if err != nil {
		return nil, fmt.Errorf("list dispatchable: %w", err)
	}
	return robots, nil
}

// ListStale returns robots whose heartbeat has lapsed, for the recovery
// manager's detection loop.
func (s *RobotStore) ListStale(ctx context.Context, heartbeatTimeout time.Duration) ([]models.Robot, error) {
	var robots []models.Robot
	cutoff := time.Now().Add(-heartbeatTimeout)
	err := s.db.WithContext(ctx).
		Where("last_heartbeat < ?", cutoff).
		Where("status != ?", models.RobotOffline).
		Find(&robots).Error
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	return robots, nil
}

// IncrementJobCount adjusts a robot's load counter atomically. A positive
// delta (dispatch handoff) is rejected with ErrCapacityExceeded rather than
// applied if it would push current_job_count above max_concurrent_jobs,
// per spec §4.3 IncrementLoad and the shared-resource policy in §5. A
// non-positive delta (job completion/release) always clamps at zero.
func (s *RobotStore) IncrementJobCount(ctx context.Context, robotID string, delta int) error {
	query := s.db.WithContext(ctx).Model(&models.Robot{}).Where("robot_id = ?", robotID)

	var result *gorm.DB
	if delta > 0 {
		result = query.
			Where("current_job_count + ? <= max_concurrent_jobs", delta).
			Update("current_job_count", gorm.Expr("current_job_count + ?", delta))
	} else {
		result = query.
			Update("current_job_count", gorm.Expr("GREATEST(current_job_count + ?, 0)", delta))
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if delta <= 0 {
			return store.ErrNotFound
		}
		if _, err := s.Get(ctx, robotID); err != nil {
			return err
		}
		return store.ErrCapacityExceeded
	}
	return nil
}

func (s *RobotStore) ListAll(ctx context.Context) ([]models.Robot, error) {
	var robots []models.Robot
	if err := s.db.WithContext(ctx).Find(&robots).Error; err != nil {
		return nil, fmt.Errorf("list all robots: %w", err)
	}
	return robots, nil
}
