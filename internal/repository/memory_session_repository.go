package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ctchen222/tictactoe-solo/internal/session"
)

type memoryEntry struct {
	session   session.Session
	expiresAt time.Time
}

type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time

	nextSweep time.Time
}

// NewMemorySessionRepository creates a SessionRepository held in process
// memory. Entries expire ttl after the last save; a zero ttl keeps them
// until deleted. Expired entries that are never read again are swept from
// Save at most once per ttl.
func NewMemorySessionRepository(ttl time.Duration) SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *memorySessionRepository) Save(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := memoryEntry{session: *s}
	if r.ttl > 0 {
		now := r.now()
		entry.expiresAt = now.Add(r.ttl)
		if !now.Before(r.nextSweep) {
			r.sweepLocked(now)
			r.nextSweep = now.Add(r.ttl)
		}
	}
	r.sessions[s.ID] = entry
	return nil
}

// sweepLocked drops every entry expired at now. The caller holds r.mu.
func (r *memorySessionRepository) sweepLocked(now time.Time) {
	for id, entry := range r.sessions {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(r.sessions, id)
		}
	}
}

func (r *memorySessionRepository) FindByID(_ context.Context, id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if ok && !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		delete(r.sessions, id)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s := entry.session
	return &s, nil
}

func (r *memorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}
