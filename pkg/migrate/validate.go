package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

	// Device tables are created by gorm on each device's sqlite file and must
	// never be migrated into the shared hosted database.
	localTableRe = regexp.MustCompile(`(?i)create\s+table\s+(if\s+not\s+exists\s+)?"?(outbox_operations|device_settings)\b`)
)

// ValidateDir checks filenames, version uniqueness, goose markers, and that no
// migration creates a device-local table.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := make(map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := checkBody(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func checkBody(name, txt string) error {
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(txt, marker) {
			return fmt.Errorf("migration %q missing %q", name, marker)
		}
	}
	if m := localTableRe.FindStringSubmatch(txt); m != nil {
		return fmt.Errorf("migration %q creates device-local table %s", name, m[2])
	}
	return nil
}
