package state

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// Store provides access to file processing state.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new file record.
func (s *Store) Create(ctx context.Context, rec *domain.FileRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// GetByID loads a file record, returning domain.ErrFileNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id uint) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to load file record %d: %w", id, err)
	}
	return &rec, nil
}

// List returns file records ordered newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]domain.FileRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []domain.FileRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	return recs, nil
}

// SetSize records the object size reported after upload.
func (s *Store) SetSize(ctx context.Context, id uint, size int64) error {
	res := s.db.WithContext(ctx).
		Model(&domain.FileRecord{}).
		Where("id = ?", id).
		Update("size_bytes", size)
	if res.Error != nil {
		return fmt.Errorf("failed to set file size: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

// UpdateStatus transitions a file to the given status. The error message is
// stored for FAILED and cleared otherwise.
func (s *Store) UpdateStatus(ctx context.Context, id uint, status domain.FileStatus, errMsg string) error {
	updates := map[string]any{"status": status}
	if status == domain.StatusFailed {
		updates["error_message"] = errMsg
	} else {
		updates["error_message"] = ""
	}

	res := s.db.WithContext(ctx).
		Model(&domain.FileRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update file status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (s *Store) IncrementAttempts(ctx context.Context, id uint) (int, error) {
	res := s.db.WithContext(ctx).
		Model(&domain.FileRecord{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, domain.ErrFileNotFound
	}

	var rec domain.FileRecord
	if err := s.db.WithContext(ctx).Select("attempts").First(&rec, id).Error; err != nil {
		return 0, fmt.Errorf("failed to read attempts: %w", err)
	}
	return rec.Attempts, nil
}

// Checkpoint advances the processed position. The guard keeps the checkpoint
// monotonic: a stale writer racing a newer one cannot move the offset backwards.
func (s *Store) Checkpoint(ctx context.Context, id uint, offset, line int64) error {
	res := s.db.WithContext(ctx).
		Model(&domain.FileRecord{}).
		Where("id = ? AND last_processed_offset <= ?", id, offset).
		Updates(map[string]any{
			"last_processed_offset": offset,
			"last_processed_line":   line,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to checkpoint file %d: %w", id, res.Error)
	}
	return nil
}

// Delete removes a file record.
func (s *Store) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&domain.FileRecord{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete file record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}
