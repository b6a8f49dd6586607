package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillq/pkg/db/models"
)

// maxErrorLen bounds last_error so a verbose remote error cannot bloat the local store.
const maxErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, op *models.Operation) error {
	if op == nil {
		return errors.New("operation required")
	}
	return r.db.WithContext(ctx).Create(op).Error
}

// ListPending returns every queued operation in replay order.
func (r *Repository) ListPending(ctx context.Context) ([]models.Operation, error) {
	var rows []models.Operation
	err := r.db.WithContext(ctx).
		Order("seq ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	var row models.Operation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes one operation; zero rows affected means it was already gone.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Operation{})
	return res.RowsAffected, res.Error
}

func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Operation{})
	return res.RowsAffected, res.Error
}

func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, cause error, at time.Time) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return r.db.WithContext(ctx).Model(&models.Operation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":      msg,
			"last_attempt_at": at.UTC(),
			"attempt_count":   gorm.Expr("attempt_count + 1"),
		}).Error
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Operation{}).Count(&count).Error
	return count, err
}

// CountOlderThan counts operations created strictly before cutoff.
func (r *Repository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Operation{}).
		Where("created_at < ?", cutoff.UTC()).
		Count(&count).Error
	return count, err
}

// Oldest returns the head of the queue, or nil when it is empty.
func (r *Repository) Oldest(ctx context.Context) (*models.Operation, error) {
	var row models.Operation
	err := r.db.WithContext(ctx).Order("seq ASC").Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Seq == 0 {
		return nil, nil
	}
	return &row, nil
}
