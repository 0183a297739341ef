// Package session implements the session manager: an in-process,
// ephemeral map of conversation histories, using the same
// map-guarded-by-RWMutex idiom as the in-memory vector backend.
// Sessions are deliberately not persisted across process restarts.
package session

import (
	"sync"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/google/uuid"
)

// DefaultMaxHistoryMessages bounds how many messages a session retains,
// matching the MAX_HISTORY_MESSAGES environment default.
const DefaultMaxHistoryMessages = 10

// entry pairs a session with the lock that serializes turns against it,
// so two turns submitted concurrently for the same session id never
// interleave. The map-level lock only ever protects the map itself;
// turn work holds entry.turnMu instead, so two different sessions
// never block each other.
type entry struct {
	session *domain.Session
	turnMu  sync.Mutex
}

// Manager is the process-wide session manager: a single Manager is
// shared across all requests.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	maxHistory int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxHistoryMessages overrides DefaultMaxHistoryMessages.
func WithMaxHistoryMessages(n int) Option {
	return func(m *Manager) { m.maxHistory = n }
}

// NewManager returns an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:   make(map[string]*entry),
		maxHistory: DefaultMaxHistoryMessages,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the session for id, creating a fresh one (with a
// new UUIDv4) if id is empty or unknown. It returns the resolved id and
// a copy of the session's current history.
func (m *Manager) GetOrCreate(id string) (string, []domain.Message) {
	now := time.Now().UTC()

	m.mu.Lock()
	e, exists := m.sessions[id]
	if id == "" || !exists {
		id = uuid.NewString()
		e = &entry{session: &domain.Session{ID: id, CreatedAt: now, LastTouchedAt: now}}
		m.sessions[id] = e
	}
	m.mu.Unlock()

	e.turnMu.Lock()
	defer e.turnMu.Unlock()
	history := make([]domain.Message, len(e.session.Messages))
	copy(history, e.session.Messages)
	return id, history
}

// Lock acquires the per-session turn lock for id, returning an unlock
// function. A caller holds this lock for the full duration of a turn
// so that two turns against the same session never interleave, while
// turns against different sessions proceed fully concurrently.
func (m *Manager) Lock(id string) func() {
	m.mu.RLock()
	e, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		// GetOrCreate always runs first in practice; this guards against
		// a caller locking an id it never registered.
		m.mu.Lock()
		e, exists = m.sessions[id]
		if !exists {
			e = &entry{session: &domain.Session{ID: id, CreatedAt: time.Now().UTC()}}
			m.sessions[id] = e
		}
		m.mu.Unlock()
	}
	e.turnMu.Lock()
	return e.turnMu.Unlock
}

// Append records a completed turn's user and assistant messages,
// evicting the oldest messages FIFO once the session exceeds
// maxHistory. A completed turn always grows history by exactly 2
// messages.
func (m *Manager) Append(id string, userMsg, assistantMsg domain.Message) {
	m.mu.RLock()
	e, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		return
	}

	e.session.Messages = append(e.session.Messages, userMsg, assistantMsg)
	if over := len(e.session.Messages) - m.maxHistory; over > 0 {
		e.session.Messages = e.session.Messages[over:]
	}
	e.session.LastTouchedAt = time.Now().UTC()
}

// AppendUserOnly records just the user message. HandleTurn uses it for
// every turn that ends without a done event, whether the turn failed
// before generation, failed mid-stream or was cancelled, so no partial
// assistant answer is recorded.
func (m *Manager) AppendUserOnly(id string, userMsg domain.Message) {
	m.mu.RLock()
	e, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		return
	}

	e.session.Messages = append(e.session.Messages, userMsg)
	if over := len(e.session.Messages) - m.maxHistory; over > 0 {
		e.session.Messages = e.session.Messages[over:]
	}
	e.session.LastTouchedAt = time.Now().UTC()
}

// NotFoundError reports an unknown session id, surfaced only on the
// explicit History/Clear operations.
type NotFoundError struct{ ID string }

func (e *NotFoundError) Error() string {
	return "session: " + e.ID + " not found"
}

// History returns a copy of id's message history, or a *NotFoundError.
func (m *Manager) History(id string) ([]domain.Message, error) {
	m.mu.RLock()
	e, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		return nil, &NotFoundError{ID: id}
	}

	e.turnMu.Lock()
	defer e.turnMu.Unlock()
	history := make([]domain.Message, len(e.session.Messages))
	copy(history, e.session.Messages)
	return history, nil
}

// Clear empties id's history in place without deleting the session
// itself, or returns a *NotFoundError.
func (m *Manager) Clear(id string) error {
	m.mu.RLock()
	e, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		return &NotFoundError{ID: id}
	}

	e.turnMu.Lock()
	defer e.turnMu.Unlock()
	e.session.Messages = nil
	e.session.LastTouchedAt = time.Now().UTC()
	return nil
}
