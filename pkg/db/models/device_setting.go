package models

import "time"

// DeviceSetting persists a single device-scoped flag in the local store.
type DeviceSetting struct {
	Key       string    `gorm:"column:key;type:text;primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeviceSetting) TableName() string {
	return "device_settings"
}

// LocalModels lists the tables owned by the device-local store.
func LocalModels() []any {
	return []any{&Operation{}, &DeviceSetting{}}
}
