package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Store persists at most one session.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory only.
type MemoryStore struct {
	mu sync.Mutex
	s  *Session
}

func (m *MemoryStore) Load(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// SQLStore persists the session of one device key in the sessions table.
type SQLStore struct {
	db        *sql.DB
	deviceKey string
}

// NewSQLStore creates a store for deviceKey, e.g. "tg:12345".
func NewSQLStore(db *sql.DB, deviceKey string) *SQLStore {
	return &SQLStore{db: db, deviceKey: deviceKey}
}

// Load returns the saved session, or nil when none exists.
func (s *SQLStore) Load(ctx context.Context) (*Session, error) {
	var token, profile string
	err := s.db.QueryRowContext(ctx,
		`SELECT token, profile FROM sessions WHERE device_key = ?`, s.deviceKey,
	).Scan(&token, &profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	sess := &Session{Token: token}
	if err := json.Unmarshal([]byte(profile), &sess.Profile); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save replaces the stored session.
func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (device_key, token, profile, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_key) DO UPDATE SET
			token = excluded.token,
			profile = excluded.profile,
			updated_at = excluded.updated_at`,
		s.deviceKey, sess.Token, string(profile), time.Now().UTC(),
	)
	return err
}

// Clear removes the stored session.
func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE device_key = ?`, s.deviceKey)
	return err
}
