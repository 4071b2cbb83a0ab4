package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"0002_claims.up.sql",
		"0001_init.up.sql",
		"0001_init.down.sql",
		"README.md",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0003_dir.up.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}

	want := []string{"0001_init.up.sql", "0002_claims.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	if _, err := migrationFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestMigrationFiles_Repository(t *testing.T) {
	got, err := migrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(got) == 0 || got[0] != "0001_init.up.sql" {
		t.Errorf("expected 0001_init.up.sql first, got %v", got)
	}
}
