package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout keeps created_at sortable as text.
const timeLayout = "2006-01-02 15:04:05"

// Submission records the outcome of one order submission.
type Submission struct {
	RequestID   string
	RoomID      int
	CurrentDate string
	Dates       int
	Items       int
	Latency     time.Duration
	Err         error
	Timestamp   time.Time
}

// Store handles persistence of the submission log to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a submission to the database.
func (s *Store) Record(ctx context.Context, m Submission) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	success, errText := 1, ""
	if m.Err != nil {
		success, errText = 0, m.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (request_id, room_id, service_date, dates, items, latency_ms, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RequestID, m.RoomID, m.CurrentDate, m.Dates, m.Items, m.Latency.Milliseconds(), success, errText, ts.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// DailyCounts represents submission totals for a single day.
type DailyCounts struct {
	Date         string
	Total        int
	Failed       int
	Items        int
	AvgLatencyMS int64
}

// GetDailyCounts retrieves submission counts for the last N days, newest first.
func (s *Store) GetDailyCounts(ctx context.Context, days int) ([]DailyCounts, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day,
		       COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       SUM(items),
		       CAST(AVG(latency_ms) AS INTEGER)
		FROM submissions
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var results []DailyCounts
	for rows.Next() {
		var (
			day sql.NullString
			c   DailyCounts
		)
		if err := rows.Scan(&day, &c.Total, &c.Failed, &c.Items, &c.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan submission counts: %w", err)
		}
		c.Date = "Unknown"
		if day.Valid {
			c.Date = day.String
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up submissions: %w", err)
	}
	return res.RowsAffected()
}
