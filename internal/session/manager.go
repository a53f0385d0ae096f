package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/basinops/basinops-kernel/internal/metrics"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// DefaultIdentity is the fixed demo identity used when a caller creates a
// session without one, or calls without any session at all.
func DefaultIdentity() types.Identity {
	return types.Identity{
		UserID:       "demo-analyst",
		Role:         types.RoleAnalyst,
		DisplayName:  "Demo Analyst",
		Organization: "basinops",
	}
}

// Manager owns the session table. It is the only component that creates or
// destroys sessions.
type Manager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session table.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session. A nil identity falls back to the demo
// analyst; a nil preferences pointer means no preferences.
func (m *Manager) Create(identity *types.Identity, prefs *types.SessionPreferences) *Session {
	id := uuid.NewString()

	ident := DefaultIdentity()
	if identity != nil {
		ident = *identity
	}
	var p types.SessionPreferences
	if prefs != nil {
		p = *prefs
	}

	s := newSession(id, ident, p)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	m.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("user_id", ident.UserID),
		zap.String("role", string(ident.Role)),
	)
	return s
}

// Get returns the session for an id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Destroy removes a session and reports whether it existed.
func (m *Manager) Destroy(id string) bool {
	m.mu.Lock()
	_, existed := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if existed {
		metrics.SessionsActive.Dec()
		m.logger.Info("session destroyed", zap.String("session_id", id))
	}
	return existed
}

// List returns all live sessions in no particular order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
