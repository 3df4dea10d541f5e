package session

import (
	"context"
	"sync"
	"time"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds per-session conversation history. Append is expected to
// serialize concurrent writers for the same session; readers get a copy.
type Store interface {
	Get(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore keeps sessions in process memory, capped at maxTurns per
// session with the oldest turns dropped first. Suitable for a single
// instance; use the redis-backed store when running more than one.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]Turn
	maxTurns int
}

func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Turn),
		maxTurns: maxTurns,
	}
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.sessions[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := append(s.sessions[sessionID], turns...)
	if len(updated) > s.maxTurns {
		updated = updated[len(updated)-s.maxTurns:]
	}
	s.sessions[sessionID] = updated
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}
