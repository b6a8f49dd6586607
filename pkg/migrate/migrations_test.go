package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/tillq/pkg/migrate"
	"github.com/angelmondragon/tillq/pkg/migrate/migrations"
)

func TestPrintJobsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_print_jobs.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no print_jobs migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS print_jobs",
		"CHECK (status IN ('pending', 'printed', 'failed'))",
		"WHERE status = 'pending'",
		"printed_by_device text NULL",
		"DROP TABLE IF EXISTS print_jobs",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded=%d on disk=%d", len(embedded), len(onDisk))
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Print Job Copies")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_print_job_copies.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected sanitized-empty name error")
	}
}

func TestValidateDirRejectsDeviceTables(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nCREATE TABLE IF NOT EXISTS outbox_operations (id uuid);\n-- +goose Down\nDROP TABLE outbox_operations;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_local.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := migrate.ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "outbox_operations") {
		t.Fatalf("expected device table rejection, got %v", err)
	}
}
