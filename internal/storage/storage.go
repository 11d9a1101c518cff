package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"residence-dining/internal/report"
)

// ReportStore provides a file-based archive of generated daily reports.
type ReportStore struct {
	basePath string
}

// NewReportStore creates a new ReportStore and ensures the base directory exists.
func NewReportStore(basePath string) (*ReportStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &ReportStore{basePath: basePath}, nil
}

// sanitizeTimestamp makes the timestamp safe for filenames.
func sanitizeTimestamp(ts time.Time) string {
	return strings.ReplaceAll(ts.UTC().Format("20060102T150405.000"), ".", "")
}

func (s *ReportStore) getVersionedPath(date string, generatedAt time.Time) string {
	filename := fmt.Sprintf("%s_%s.json", date, sanitizeTimestamp(generatedAt))
	return filepath.Join(s.basePath, filename)
}

func (s *ReportStore) versions(date string) ([]string, error) {
	pattern := filepath.Join(s.basePath, fmt.Sprintf("%s_*.json", date))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob report files: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Save stores a report as a new version for its date and returns the path.
// A report is regenerated whenever late orders arrive, so older versions are
// kept until RemoveStaleVersions is called.
func (s *ReportStore) Save(d *report.Daily, generatedAt time.Time) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	filePath := s.getVersionedPath(d.Date, generatedAt)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return filePath, nil
}

// Latest loads the most recent version of the report for date.
func (s *ReportStore) Latest(date string) (*report.Daily, error) {
	matches, err := s.versions(date)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no report archived for %s: %w", date, os.ErrNotExist)
	}

	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}
	var d report.Daily
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &d, nil
}

// Exists checks if any version of the report for date exists.
func (s *ReportStore) Exists(date string) bool {
	matches, err := s.versions(date)
	return err == nil && len(matches) > 0
}

// RemoveStaleVersions removes all but the newest version of the report for date.
func (s *ReportStore) RemoveStaleVersions(date string) error {
	matches, err := s.versions(date)
	if err != nil {
		return err
	}
	if len(matches) < 2 {
		return nil
	}
	for _, match := range matches[:len(matches)-1] {
		if err := os.Remove(match); err != nil {
			return fmt.Errorf("failed to remove stale file %s: %w", match, err)
		}
	}
	return nil
}
