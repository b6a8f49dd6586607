package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/tillq/pkg/enums"
)

// Operation is a mutation buffered on the device until it is replayed remotely.
// Seq is the replay order; ID is the stable identity handed to the remote side.
type Operation struct {
	Seq           int64                 `gorm:"column:seq;primaryKey;autoIncrement"`
	ID            uuid.UUID             `gorm:"column:id;type:uuid;uniqueIndex;not null"`
	Action        enums.OperationAction `gorm:"column:action;type:text;not null"`
	Resource      string                `gorm:"column:resource;type:text;not null;index"`
	RecordID      string                `gorm:"column:record_id;type:text"`
	Payload       datatypes.JSON        `gorm:"column:payload;not null"`
	DependsOn     *uuid.UUID            `gorm:"column:depends_on;type:uuid"`
	CreatedAt     time.Time             `gorm:"column:created_at;not null;index"`
	AttemptCount  int                   `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string               `gorm:"column:last_error"`
	LastAttemptAt *time.Time            `gorm:"column:last_attempt_at"`
}

func (Operation) TableName() string {
	return "outbox_operations"
}
