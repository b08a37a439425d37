package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
)

// CheckpointStore implements store.CheckpointStore over Postgres via GORM.
type CheckpointStore struct {
	db *gorm.DB
}

// Upsert writes or overwrites a job's checkpoint. Per spec §4.2, Put is
// idempotent on (job_id, current_step): a write with a current_step
// smaller than the stored one is a no-op (an equal step overwrites), so an
// out-of-order write from a
// robot that crashed and later reconnects can never regress state. GORM's
// OnConflict clause has no WHERE predicate support, so the guard is
// expressed as a raw upsert.
func (s *CheckpointStore) Upsert(ctx context.Context, cp *models.Checkpoint) error {
	executedNodes, err := cp.ExecutedNodes.Value()
	if err != nil {
		return fmt.Errorf("upsert checkpoint: encode executed_nodes: %w", err)
	}

	err = s.db.WithContext(ctx).Exec(`
		INSERT INTO checkpoints (workflow_instance_id, state, current_step, executed_nodes, updated_at)
		VALUES (?, ?, ?, ?, now())
		ON CONFLICT (workflow_instance_id) DO UPDATE
		SET state = EXCLUDED.state,
		    current_step = EXCLUDED.current_step,
		    executed_nodes = EXCLUDED.executed_nodes,
		    updated_at = EXCLUDED.updated_at
		WHERE checkpoints.current_step <= EXCLUDED.current_step
	`, cp.WorkflowInstanceID, cp.State, cp.CurrentStep, executedNodes).Error
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Get(ctx context.Context, workflowInstanceID string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.WithContext(ctx).First(&cp, "workflow_instance_id = ?", workflowInstanceID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *CheckpointStore) Delete(ctx context.Context, workflowInstanceID string) error {
	return s.db.WithContext(ctx).
		Where("workflow_instance_id = ?", workflowInstanceID).
		Delete(&models.Checkpoint{}).Error
}
