package session

import (
	"sort"
	"sync"
	"time"

	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package session owns per-caller state: the pre-authenticated identity,
// preferences, and a result cache keyed by caller-chosen strings. Sessions
// are fully isolated from one another, and a single session is safe under
// concurrent access.

// Session holds one caller's state. The id and identity are immutable;
// everything else is guarded by the mutex.
type Session struct {
	id        string
	identity  types.Identity
	createdAt time.Time

	mu           sync.RWMutex
	prefs        types.SessionPreferences
	lastActivity time.Time
	results      map[string]*types.ToolResponse
}

func newSession(id string, identity types.Identity, prefs types.SessionPreferences) *Session {
	now := time.Now().UTC()
	return &Session{
		id:           id,
		identity:     identity,
		createdAt:    now,
		prefs:        prefs,
		lastActivity: now,
		results:      make(map[string]*types.ToolResponse),
	}
}

// ID returns the session's immutable id.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the session's identity.
func (s *Session) Identity() types.Identity {
	return s.identity
}

// Preferences returns a copy of the session's preferences.
func (s *Session) Preferences() types.SessionPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastActivity returns the most recent access timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// StoreResult caches a response under a caller-chosen key, replacing any
// prior entry, and refreshes last-activity.
func (s *Session) StoreResult(key string, resp *types.ToolResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = resp
	s.lastActivity = time.Now().UTC()
}

// GetResult returns the cached response for a key. Reads also count as
// activity.
func (s *Session) GetResult(key string) (*types.ToolResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now().UTC()
	resp, ok := s.results[key]
	return resp, ok
}

// ResultKeys returns the cached result keys in sorted order.
func (s *Session) ResultKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.results))
	for k := range s.results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Context computes the injected context for this session. Computing it
// counts as activity. The context is handed to the caller; the kernel never
// merges it into invoker args on its own.
func (s *Session) Context() types.InjectedContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.lastActivity = now.UTC()

	keys := make([]string, 0, len(s.results))
	for k := range s.results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zone, _ := now.Zone()
	return types.InjectedContext{
		UserID:           s.identity.UserID,
		Role:             s.identity.Role,
		SessionID:        s.id,
		Timestamp:        now.UTC().Format(time.RFC3339),
		Timezone:         zone,
		DefaultBasin:     s.prefs.DefaultBasin,
		RiskTolerance:    s.prefs.RiskTolerance,
		AvailableResults: keys,
	}
}
