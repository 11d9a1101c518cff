package database

import (
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dining.db")

	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"sessions", "submissions"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}

	// Reopening an up-to-date database is not an error.
	again, err := NewDB(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	again.Close()
}
