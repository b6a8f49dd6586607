package printing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tillq/pkg/db/models"
)

const (
	keyIsPrintServer = "is_print_server"
	keyUsePrintQueue = "use_print_queue"
)

// SettingsStore persists the routing flags in the device-local store.
type SettingsStore struct {
	db       *gorm.DB
	defaults PrintRoutingConfig
}

// NewSettingsStore returns a store that falls back to defaults for unset flags.
func NewSettingsStore(db *gorm.DB, defaults PrintRoutingConfig) (*SettingsStore, error) {
	if db == nil {
		return nil, errors.New("settings db is required")
	}
	return &SettingsStore{db: db, defaults: defaults}, nil
}

// Load reads both flags from storage on every call.
func (s *SettingsStore) Load(ctx context.Context) (PrintRoutingConfig, error) {
	var rows []models.DeviceSetting
	err := s.db.WithContext(ctx).
		Where("key IN ?", []string{keyIsPrintServer, keyUsePrintQueue}).
		Find(&rows).Error
	if err != nil {
		return PrintRoutingConfig{}, err
	}

	cfg := s.defaults
	for _, row := range rows {
		value, err := strconv.ParseBool(row.Value)
		if err != nil {
			continue
		}
		switch row.Key {
		case keyIsPrintServer:
			cfg.IsPrintServer = value
		case keyUsePrintQueue:
			cfg.UsePrintQueue = value
		}
	}
	return cfg, nil
}

// Save upserts both flags in one transaction.
func (s *SettingsStore) Save(ctx context.Context, cfg PrintRoutingConfig) error {
	now := time.Now().UTC()
	rows := []models.DeviceSetting{
		{Key: keyIsPrintServer, Value: strconv.FormatBool(cfg.IsPrintServer), UpdatedAt: now},
		{Key: keyUsePrintQueue, Value: strconv.FormatBool(cfg.UsePrintQueue), UpdatedAt: now},
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rows).Error
}
