package printqueue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/redis"
)

const maxErrorLen = 1024

// EnqueueInput describes a print request routed to the shared queue.
type EnqueueInput struct {
	TenantID  string
	CreatedBy string
	PrintType enums.PrintType
	Payload   json.RawMessage
}

// Service owns the lifecycle of rows in print_jobs.
type Service struct {
	repo *Repository
	feed redis.PubSub
	logg *logger.Logger
	now  func() time.Time
}

type ServiceParams struct {
	Repository *Repository
	Feed       redis.PubSub
	Logger     *logger.Logger
	Clock      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, errors.New("print job repository is required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: params.Repository,
		feed: params.Feed,
		logg: params.Logger,
		now:  now,
	}, nil
}

// Enqueue stores a pending job and announces it on the tenant's change feed.
func (s *Service) Enqueue(ctx context.Context, in EnqueueInput) (*models.PrintJob, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "created_by is required")
	}
	if !in.PrintType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid print type").
			WithDetails(map[string]any{"print_type": in.PrintType})
	}
	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload must be valid JSON")
	}

	job := &models.PrintJob{
		ID:        uuid.New(),
		TenantID:  in.TenantID,
		PrintType: in.PrintType,
		Payload:   datatypes.JSON(payload),
		Status:    enums.PrintJobPending,
		CreatedBy: in.CreatedBy,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert print job")
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(s.logg.WithPrintJobID(ctx, job.ID.String()), map[string]any{
			"tenant_id":  job.TenantID,
			"print_type": job.PrintType,
		})
		s.logg.Info(logCtx, "print job queued")
	}
	if s.feed != nil {
		// subscribers also poll, so a lost announcement only delays the job
		if err := s.feed.Publish(ctx, s.feed.PrintJobChannel(job.TenantID), job.ID.String()); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "print job announcement failed")
		}
	}
	return job, nil
}

// PollPending lists the tenant's pending jobs oldest first.
func (s *Service) PollPending(ctx context.Context, tenantID string, limit int) ([]models.PrintJob, error) {
	rows, err := s.repo.ListPending(ctx, tenantID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending print jobs")
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.PrintJob, error) {
	row, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "print job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load print job")
	}
	return row, nil
}

// MarkPrinted moves a pending job to printed on behalf of deviceID. When the job
// already left pending the call is a no-op that returns the current row and
// false; losing that race is not an error.
func (s *Service) MarkPrinted(ctx context.Context, tenantID string, id uuid.UUID, deviceID string) (*models.PrintJob, bool, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "device id is required")
	}
	return s.transition(ctx, tenantID, id, map[string]any{
		"status":            enums.PrintJobPrinted,
		"printed_at":        s.now().UTC(),
		"printed_by_device": deviceID,
	})
}

// MarkFailed moves a pending job to failed with reason; same no-op rule as MarkPrinted.
func (s *Service) MarkFailed(ctx context.Context, tenantID string, id uuid.UUID, reason string) (*models.PrintJob, bool, error) {
	if reason == "" {
		reason = "print failed"
	}
	if len(reason) > maxErrorLen {
		reason = reason[:maxErrorLen]
	}
	return s.transition(ctx, tenantID, id, map[string]any{
		"status":     enums.PrintJobFailed,
		"failed_at":  s.now().UTC(),
		"last_error": reason,
	})
}

func (s *Service) transition(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]any) (*models.PrintJob, bool, error) {
	changed, err := s.repo.TransitionFromPending(ctx, tenantID, id, updates)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update print job")
	}
	row, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, false, err
	}
	if changed == 0 && s.logg != nil {
		s.logg.Info(s.logg.WithFields(s.logg.WithPrintJobID(ctx, id.String()), map[string]any{
			"status":    row.Status,
			"requested": updates["status"],
		}), "print job already finalized")
	}
	return row, changed > 0, nil
}

// DeleteFinishedBefore removes printed and failed jobs older than cutoff.
func (s *Service) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := s.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge print jobs")
	}
	return removed, nil
}
