package printqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, job *models.PrintJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// ListPending returns a tenant's pending jobs oldest first.
func (r *Repository) ListPending(ctx context.Context, tenantID string, limit int) ([]models.PrintJob, error) {
	var rows []models.PrintJob
	q := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, enums.PrintJobPending).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *Repository) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.PrintJob, error) {
	var row models.PrintJob
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// TransitionFromPending applies updates only while the job is still pending.
// It returns the number of rows changed; zero means another writer got there first.
func (r *Repository) TransitionFromPending(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.PrintJob{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, enums.PrintJobPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// DeleteFinishedBefore purges printed and failed jobs created before cutoff.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []enums.PrintJobStatus{enums.PrintJobPrinted, enums.PrintJobFailed}, cutoff.UTC()).
		Delete(&models.PrintJob{})
	return res.RowsAffected, res.Error
}
