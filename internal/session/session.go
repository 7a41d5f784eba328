package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Info describes one live server session.
type Info struct {
	ID        string    `json:"session_id"`
	Remote    string    `json:"remote"`
	Transport string    `json:"transport"`
	StartedAt time.Time `json:"started_at"`
}

// Store is a thread-safe registry of live sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Info
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]Info),
	}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// Add registers a session and returns the number of live sessions afterwards.
// A missing ID or start time is filled in.
func (s *Store) Add(info Info) (Info, int) {
	if info.ID == "" {
		info.ID = NewID()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[info.ID] = info
	return info, len(s.sessions)
}

// Remove deletes a session. Removing an unknown ID is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns all live sessions, oldest first.
func (s *Store) List() []Info {
	s.mu.RLock()
	out := make([]Info, 0, len(s.sessions))
	for _, info := range s.sessions {
		out = append(out, info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
