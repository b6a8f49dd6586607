package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/tillq/pkg/enums"
)

// PrintJob is a row in the shared print queue. Only the claiming device writes
// PrintedAt and PrintedByDevice.
type PrintJob struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TenantID        string               `gorm:"column:tenant_id;type:text;not null;index:ix_print_jobs_tenant_status"`
	PrintType       enums.PrintType      `gorm:"column:print_type;type:text;not null"`
	Payload         datatypes.JSON       `gorm:"column:payload;not null"`
	Status          enums.PrintJobStatus `gorm:"column:status;type:text;not null;default:pending;index:ix_print_jobs_tenant_status"`
	CreatedBy       string               `gorm:"column:created_by;type:text;not null"`
	CreatedAt       time.Time            `gorm:"column:created_at;not null"`
	PrintedAt       *time.Time           `gorm:"column:printed_at"`
	PrintedByDevice *string              `gorm:"column:printed_by_device;type:text"`
	FailedAt        *time.Time           `gorm:"column:failed_at"`
	LastError       *string              `gorm:"column:last_error"`
}

func (PrintJob) TableName() string {
	return "print_jobs"
}
