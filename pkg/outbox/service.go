package outbox

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
)

// DefaultStaleThreshold is the age after which a queued operation is reported as stale.
const DefaultStaleThreshold = time.Hour

// NewOperation is the caller-supplied part of an Operation.
type NewOperation struct {
	Action    enums.OperationAction
	Resource  string
	RecordID  string
	Payload   json.RawMessage
	DependsOn *uuid.UUID
}

// StaleReport summarises operations that have waited longer than a threshold.
type StaleReport struct {
	Count     int64
	Threshold time.Duration
	Oldest    *time.Time
}

// Service is the queue manager for the device-local outbox.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Enqueue validates and synchronously persists an operation. The operation is
// durable once this returns a nil error.
func (s *Service) Enqueue(ctx context.Context, in NewOperation) (uuid.UUID, error) {
	if err := validateNewOperation(in); err != nil {
		return uuid.Nil, err
	}
	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	row := models.Operation{
		ID:        uuid.New(),
		Action:    in.Action,
		Resource:  strings.TrimSpace(in.Resource),
		RecordID:  strings.TrimSpace(in.RecordID),
		Payload:   datatypes.JSON(payload),
		DependsOn: in.DependsOn,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, &row); err != nil {
		if pkgerrors.Dump(err).StoreBusy() {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "local store busy, retry the operation")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "persist operation")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOperationID(ctx, row.ID.String()), map[string]any{
			"action":    row.Action,
			"resource":  row.Resource,
			"record_id": row.RecordID,
		})
		s.logg.Info(logCtx, "outbox operation queued")
	}
	return row.ID, nil
}

// ListPending returns the queue in FIFO order without modifying it.
func (s *Service) ListPending(ctx context.Context) ([]models.Operation, error) {
	rows, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "list pending operations")
	}
	return rows, nil
}

// Remove deletes an acknowledged operation. Removing an unknown id is a no-op.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation id is required")
	}
	if _, err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "remove operation")
	}
	return nil
}

// Clear discards every queued operation and returns how many were dropped.
// Callers must obtain explicit user confirmation first.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "clear operations")
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "removed", removed), "outbox cleared")
	}
	return removed, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "operation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "load operation")
	}
	return row, nil
}

// RecordFailure keeps the operation queued and notes why its replay failed.
func (s *Service) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	if err := s.repo.RecordFailure(ctx, id, cause, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "record operation failure")
	}
	return nil
}

func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "count operations")
	}
	return count, nil
}

// CountStale counts operations older than threshold.
func (s *Service) CountStale(ctx context.Context, threshold time.Duration) (int64, error) {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	count, err := s.repo.CountOlderThan(ctx, s.now().Add(-threshold))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "count stale operations")
	}
	return count, nil
}

// CheckPendingOperations is the maintenance check run by the background scheduler.
func (s *Service) CheckPendingOperations(ctx context.Context, threshold time.Duration) (StaleReport, error) {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	report := StaleReport{Threshold: threshold}

	count, err := s.CountStale(ctx, threshold)
	if err != nil {
		return report, err
	}
	report.Count = count
	if count == 0 {
		return report, nil
	}

	oldest, err := s.repo.Oldest(ctx)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "load oldest operation")
	}
	if oldest != nil {
		created := oldest.CreatedAt
		report.Oldest = &created
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"stale_count": count,
			"threshold":   threshold.String(),
		}), "stale outbox operations detected")
	}
	return report, nil
}

func validateNewOperation(in NewOperation) error {
	if !in.Action.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid operation action").
			WithDetails(map[string]any{"action": in.Action})
	}
	if strings.TrimSpace(in.Resource) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "resource is required")
	}
	if in.Action.RequiresRecordID() && strings.TrimSpace(in.RecordID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "record id is required for "+string(in.Action))
	}
	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payload must be valid JSON")
	}
	if in.DependsOn != nil && *in.DependsOn == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "depends_on must be a valid operation id")
	}
	return nil
}
