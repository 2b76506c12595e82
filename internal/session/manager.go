package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusClosing    Status = "closing"
	StatusClosed     Status = "closed"
)

var ErrNotFound = errors.New("session not found")

// Params are the client-adjustable knobs of one connection.
type Params struct {
	Model     string `json:"model"`
	HistoryID string `json:"history_id"`
	UserID    string `json:"user_id"`
	Provider  string `json:"provider,omitempty"`
	Voice     string `json:"voice,omitempty"`
	Character string `json:"character,omitempty"`
	Emotion   string `json:"emotion,omitempty"`
}

// Merge applies non-empty fields of patch on top of p.
func (p Params) Merge(patch Params) Params {
	if patch.Model != "" {
		p.Model = patch.Model
	}
	if patch.HistoryID != "" {
		p.HistoryID = patch.HistoryID
	}
	if patch.UserID != "" {
		p.UserID = patch.UserID
	}
	if patch.Provider != "" {
		p.Provider = patch.Provider
	}
	if patch.Voice != "" {
		p.Voice = patch.Voice
	}
	if patch.Character != "" {
		p.Character = patch.Character
	}
	if patch.Emotion != "" {
		p.Emotion = patch.Emotion
	}
	return p
}

// Session is the registry view of one live connection.
type Session struct {
	ClientID          string    `json:"client_id"`
	Status            Status    `json:"status"`
	Params            Params    `json:"params"`
	Recording         bool      `json:"recording"`
	PlaybackActive    bool      `json:"playback_active"`
	PlaybackStartedAt time.Time `json:"playback_started_at,omitzero"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// Manager is the only cross-session shared structure: a registry from
// client id to session, mutated by connect/disconnect handlers and the
// inactivity janitor.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a new connection and assigns its client id.
func (m *Manager) Create() *Session {
	now := time.Now().UTC()
	s := &Session{
		ClientID:       uuid.NewString(),
		Status:         StatusConnecting,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ClientID] = s
	return clone(s)
}

func (m *Manager) Get(clientID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Activate marks the session live with its initial parameters.
func (m *Manager) Activate(clientID string, params Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	if !ok {
		return ErrNotFound
	}
	s.Status = StatusActive
	s.Params = s.Params.Merge(params)
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// UpdateParams merges a parameter patch and returns the effective set.
func (m *Manager) UpdateParams(clientID string, patch Params) (Params, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	if !ok {
		return Params{}, ErrNotFound
	}
	s.Params = s.Params.Merge(patch)
	s.LastActivityAt = time.Now().UTC()
	return s.Params, nil
}

func (m *Manager) SetRecording(clientID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	if !ok {
		return ErrNotFound
	}
	s.Recording = active
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// SetPlayback tracks client-side audio playback: set when a synthesized
// sentence is delivered, cleared by playback_complete/playback_error.
func (m *Manager) SetPlayback(clientID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	if !ok {
		return ErrNotFound
	}
	s.PlaybackActive = active
	if active {
		s.PlaybackStartedAt = time.Now().UTC()
	} else {
		s.PlaybackStartedAt = time.Time{}
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Close transitions the session to closed and removes it from the
// registry. Closing an unknown or already-removed session is not an
// error; teardown has to be idempotent.
func (m *Manager) Close(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	if !ok {
		return nil, false
	}
	s.Status = StatusClosed
	s.Recording = false
	s.PlaybackActive = false
	s.LastActivityAt = time.Now().UTC()
	delete(m.sessions, clientID)
	return clone(s), true
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive || s.Status == StatusConnecting {
			count++
		}
	}
	return count
}

// Snapshot returns a copy of every live session for status reporting.
func (m *Manager) Snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	return out
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusClosed
		s.Recording = false
		s.LastActivityAt = now
		expired = append(expired, clone(s))
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
