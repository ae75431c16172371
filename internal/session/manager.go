package session

import (
	"sync"
	"time"
)

// Stage is the conversational state for a contact.
type Stage string

const (
	StageNew           Stage = "new"
	StageWaitingChoice Stage = "waiting_choice"
)

// Session is the ephemeral per-contact conversation state.
type Session struct {
	Stage     Stage
	CreatedAt time.Time
}

// Manager owns the in-memory session table. Sessions expire after the idle
// TTL and are replaced, never merged.
type Manager struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Touch returns the live session for the contact, refreshing its idle timer.
// An expired or missing session is atomically replaced with a fresh one in
// the "new" stage.
func (m *Manager) Touch(waID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[waID]
	if !ok || now.Sub(s.CreatedAt) > m.ttl {
		s = &Session{Stage: StageNew, CreatedAt: now}
		m.sessions[waID] = s
		return s
	}
	s.CreatedAt = now
	return s
}

// Reset unconditionally discards the contact's session and starts a new one.
func (m *Manager) Reset(waID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{Stage: StageNew, CreatedAt: m.now()}
	m.sessions[waID] = s
	return s
}
