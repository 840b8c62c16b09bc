package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one interactive analysis or chat session. Services attach
// their own state through OnEvict-managed side tables keyed by ID.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// Manager owns the sessions of one service. Every manager registers
// itself so the cron sweep can expire sessions across services.
type Manager struct {
	name     string
	ttl      time.Duration
	sessions map[string]*Session
	onEvict  []func(id string)
	mu       sync.Mutex
}

var (
	registryMu sync.Mutex
	registry   []*Manager
)

func NewManager(name string, ttl time.Duration) *Manager {
	m := &Manager{
		name:     name,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
	registryMu.Lock()
	registry = append(registry, m)
	registryMu.Unlock()
	return m
}

// OnEvict registers a callback invoked (outside the manager lock) when a
// session is deleted or expires.
func (m *Manager) OnEvict(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = append(m.onEvict, fn)
}

func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		LastSeen:  now,
	}
	m.sessions[s.ID] = s
	return s
}

// Touch refreshes the session's expiry and reports whether it exists.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.LastSeen = time.Now()
	return true
}

func (m *Manager) Delete(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	evict := m.onEvict
	m.mu.Unlock()
	if ok {
		for _, fn := range evict {
			fn(id)
		}
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupExpired removes sessions idle past the TTL and returns how many
// were dropped.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	cutoff := time.Now().Add(-m.ttl)
	expired := make([]string, 0)
	for id, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	evict := m.onEvict
	m.mu.Unlock()
	for _, id := range expired {
		for _, fn := range evict {
			fn(id)
		}
	}
	return len(expired)
}

// SweepAll expires idle sessions in every registered manager. Returns
// dropped counts per manager name.
func SweepAll() map[string]int {
	registryMu.Lock()
	managers := make([]*Manager, len(registry))
	copy(managers, registry)
	registryMu.Unlock()

	counts := make(map[string]int, len(managers))
	for _, m := range managers {
		counts[m.name] = m.CleanupExpired()
	}
	return counts
}
