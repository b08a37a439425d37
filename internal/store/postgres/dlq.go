package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/store"
)

// DLQStore implements store.DLQStore over Postgres via GORM.
type DLQStore struct {
	db *gorm.DB
}

func (s *DLQStore) Move(ctx context.Context, entry *models.DLQEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("dlq move: %w", err)
	}
	return nil
}

func (s *DLQStore) List(ctx context.Context, limit int) ([]models.DLQEntry, error) {
	var entries []models.DLQEntry
	err := s.db.WithContext(ctx).
		Order("moved_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("dlq list: %w", err)
	}
	return entries, nil
}

func (s *DLQStore) Get(ctx context.Context, jobID string) (*models.DLQEntry, error) {
	var entry models.DLQEntry
	err := s.db.WithContext(ctx).First(&entry, "job_id = ?", jobID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *DLQStore) Delete(ctx context.Context, jobID string) error {
	result := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.DLQEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *DLQStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DLQEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("dlq count: %w", err)
	}
	return count, nil
}
