package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"residence-dining/internal/report"
)

func TestReportStore(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewReportStore(filepath.Join(tempDir, "reports"))
	if err != nil {
		t.Fatalf("Failed to create ReportStore: %v", err)
	}

	date := "2026-10-16"
	first := &report.Daily{Date: date, Rooms: 1}
	second := &report.Daily{Date: date, Rooms: 2, Periods: []report.Period{{Name: "lunch", Lines: []report.Line{{Name: "Salmon", Quantity: 3}}}}}
	at := time.Date(2026, 10, 16, 6, 0, 0, 0, time.UTC)

	t.Run("CheckExists-False", func(t *testing.T) {
		if store.Exists(date) {
			t.Errorf("Expected report '%s' to not exist, but it does", date)
		}
	})

	t.Run("Save", func(t *testing.T) {
		path, err := store.Save(first, at)
		if err != nil {
			t.Fatalf("Failed to save report: %v", err)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Expected file '%s' to be created, but it wasn't", path)
		}
		if _, err := store.Save(second, at.Add(time.Hour)); err != nil {
			t.Fatalf("Failed to save second version: %v", err)
		}
	})

	t.Run("LatestWins", func(t *testing.T) {
		loaded, err := store.Latest(date)
		if err != nil {
			t.Fatalf("Failed to load report: %v", err)
		}
		if loaded.Rooms != 2 || loaded.Periods[0].Lines[0].Name != "Salmon" {
			t.Errorf("Expected newest version, got %+v", loaded)
		}
	})

	t.Run("RemoveStaleVersions", func(t *testing.T) {
		if err := store.RemoveStaleVersions(date); err != nil {
			t.Fatalf("Failed to remove stale versions: %v", err)
		}
		matches, _ := filepath.Glob(filepath.Join(tempDir, "reports", date+"_*.json"))
		if len(matches) != 1 {
			t.Errorf("Expected 1 version left, got %d", len(matches))
		}
		loaded, _ := store.Latest(date)
		if loaded == nil || loaded.Rooms != 2 {
			t.Errorf("Expected newest version kept, got %+v", loaded)
		}
	})

	t.Run("Latest-NotFound", func(t *testing.T) {
		_, err := store.Latest("2026-01-01")
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("Expected os.ErrNotExist, got %v", err)
		}
	})
}
