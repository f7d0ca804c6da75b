// Package session keeps short-term conversation memory, one bounded turn
// log per sender. Memory is deliberately ephemeral: it starts empty and is
// lost on restart, so callers must never assume continuity across restarts.
package session

import "sync"

// Turn is one message exchange unit in a conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	limit    int
}

const DefaultHistoryLimit = 20

// NewManager creates an empty session manager keeping at most limit turns
// per sender.
func NewManager(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Manager{
		sessions: make(map[string][]Turn),
		limit:    limit,
	}
}

// History returns a copy of the stored turns for key, oldest first.
// Unseen keys yield an empty slice.
func (m *Manager) History(key string) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns, ok := m.sessions[key]
	if !ok {
		return []Turn{}
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Append adds a turn to the session for key and truncates to the most
// recent limit turns, dropping oldest first. It returns a copy of the
// stored sequence after truncation.
func (m *Manager) Append(key string, turn Turn) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.sessions[key], turn)
	if len(turns) > m.limit {
		turns = turns[len(turns)-m.limit:]
	}
	// Reassign so the map never aliases a slice the caller saw.
	stored := make([]Turn, len(turns))
	copy(stored, turns)
	m.sessions[key] = stored

	out := make([]Turn, len(stored))
	copy(out, stored)
	return out
}

// Len reports how many turns are stored for key.
func (m *Manager) Len(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[key])
}
