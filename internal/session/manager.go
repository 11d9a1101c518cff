package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Manager is the session context of one device or chat. It is passed to
// every component that needs the token and owns the only teardown path.
type Manager struct {
	store Store
	now   func() time.Time

	mu         sync.Mutex
	current    *Session
	onTeardown []func()
}

// NewManager creates a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Restore loads a previously saved session from the store, if any.
func (m *Manager) Restore(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return nil
}

// Begin makes s the active session and persists it.
func (m *Manager) Begin(ctx context.Context, s *Session) error {
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return nil
}

// Current returns the active session. An expired session is torn down and
// reported as ErrNoSession.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil {
		return nil, ErrNoSession
	}
	if s.Expired(m.now()) {
		log.Printf("Session token expired for room %s, tearing down", s.Profile.RoomNo)
		if err := m.Teardown(context.Background()); err != nil {
			log.Printf("Warning: failed to clear expired session: %v", err)
		}
		return nil, ErrNoSession
	}
	return s, nil
}

// Token returns the bearer token of the active session.
func (m *Manager) Token() (string, error) {
	s, err := m.Current()
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// Profile returns the profile of the active session.
func (m *Manager) Profile() (Profile, error) {
	s, err := m.Current()
	if err != nil {
		return Profile{}, err
	}
	return s.Profile, nil
}

// OnTeardown registers fn to run after every teardown.
func (m *Manager) OnTeardown(fn func()) {
	m.mu.Lock()
	m.onTeardown = append(m.onTeardown, fn)
	m.mu.Unlock()
}

// Teardown clears the session from memory and storage in one step.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	hooks := append([]func(){}, m.onTeardown...)
	m.mu.Unlock()

	err := m.store.Clear(ctx)
	for _, fn := range hooks {
		fn()
	}
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
