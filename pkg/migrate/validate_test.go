package migrate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BrightonDube/bizpilot-backend/pkg/migrate"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations should validate: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "001_bad_name.sql")
	if err := os.WriteFile(bad, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write bad migration: %v", err)
	}

	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected error for invalid filename")
	}
}

func TestValidateDirRejectsMissingDownHeader(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "20260712090000_create_things.sql")
	if err := os.WriteFile(f, []byte("-- +goose Up\nCREATE TABLE things (id int);\n"), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}

	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected error for missing down header")
	}
}
