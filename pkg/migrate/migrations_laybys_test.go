package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestLaybysMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_laybys.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS laybys",
		"CHECK (balance_due = total - amount_paid)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_laybys_reference",
		"DROP TABLE IF EXISTS laybys",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInventoryLevelsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory_levels.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_levels",
		"CHECK (on_hand_qty >= 0)",
		"CHECK (reserved_qty >= 0)",
		"CHECK (reserved_qty <= on_hand_qty)",
		"DROP TABLE IF EXISTS inventory_levels",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSchedulesMigrationHasUniqueInstallmentIndex(t *testing.T) {
	content := readMigration(t, "*_create_layby_schedules.sql")

	if !strings.Contains(content, "ux_layby_schedules_layby_installment") {
		t.Errorf("missing unique installment index")
	}
	if !strings.Contains(content, "FOREIGN KEY (layby_id) REFERENCES laybys(id) ON DELETE CASCADE") {
		t.Errorf("missing layby FK cascade")
	}
}
