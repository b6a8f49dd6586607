// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/tillq/pkg/db/models"
)

// Open returns an isolated in-memory sqlite database with the given models migrated.
func Open(t testing.TB, schema ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// a shared-cache memory database lives as long as one connection does
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(schema) > 0 {
		if err := conn.AutoMigrate(schema...); err != nil {
			t.Fatalf("migrate sqlite: %v", err)
		}
	}
	return conn
}

// OpenLocal opens a database with the device-local tables.
func OpenLocal(t testing.TB) *gorm.DB {
	t.Helper()
	return Open(t, models.LocalModels()...)
}

// OpenHosted opens a database with the shared print queue table.
func OpenHosted(t testing.TB) *gorm.DB {
	t.Helper()
	return Open(t, &models.PrintJob{})
}
