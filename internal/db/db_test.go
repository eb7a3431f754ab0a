package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/eargollo/reclaim/internal/db"
)

func TestOpenCreatesParentDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "reclaim.db")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx, database); err != nil {
		t.Fatalf("first RunMigrations: %v", err)
	}
	if err := db.RunMigrations(ctx, database); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}

	var n int
	if err := database.QueryRow(`SELECT COUNT(*) FROM deletion_log`).Scan(&n); err != nil {
		t.Fatalf("deletion_log missing: %v", err)
	}

	var mode string
	if err := database.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil || mode != "wal" {
		t.Errorf("journal_mode = %q, %v", mode, err)
	}
}
