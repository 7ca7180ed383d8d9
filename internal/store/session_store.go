package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"powershare/internal/models"
)

// Store errors.
var (
	ErrSessionNotFound  = errors.New("store: session not found")
	ErrDuplicateSession = errors.New("store: duplicate session id")
)

type entry struct {
	mu      sync.Mutex
	session models.RentalSession
}

// SessionStore owns all RentalSession and BillingRecord state. The outer
// lock guards the map; each session carries its own lock so concurrent
// transitions on the same id are serialized and exactly one wins.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*entry)}
}

// Create registers a new session.
func (s *SessionStore) Create(session models.RentalSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return ErrDuplicateSession
	}
	s.sessions[session.ID] = &entry{session: session}
	return nil
}

// Get returns a copy of the session.
func (s *SessionStore) Get(id string) (models.RentalSession, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return models.RentalSession{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// Update runs fn on the session under its per-session lock. fn sees the
// current state and mutates it in place; an error from fn leaves the stored
// session untouched.
func (s *SessionStore) Update(id string, fn func(*models.RentalSession) error) (models.RentalSession, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return models.RentalSession{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	working := e.session
	if err := fn(&working); err != nil {
		return models.RentalSession{}, err
	}
	e.session = working
	return working, nil
}

// Active returns copies of all sessions currently in the Active state.
func (s *SessionStore) Active() []models.RentalSession {
	return s.collect(func(session *models.RentalSession) bool {
		return session.Status == models.SessionStatusActive
	})
}

// PendingBefore returns ids of Pending sessions created before the cutoff,
// for the reservation-expiry sweep.
func (s *SessionStore) PendingBefore(cutoff time.Time) []string {
	var ids []string
	for _, session := range s.collect(func(session *models.RentalSession) bool {
		return session.Status == models.SessionStatusPending && session.CreatedAt.Before(cutoff)
	}) {
		ids = append(ids, session.ID)
	}
	return ids
}

// ByUser returns copies of the user's sessions, newest first.
func (s *SessionStore) ByUser(userID int64) []models.RentalSession {
	sessions := s.collect(func(session *models.RentalSession) bool {
		return session.UserID == userID
	})
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

func (s *SessionStore) collect(match func(*models.RentalSession) bool) []models.RentalSession {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []models.RentalSession
	for _, e := range entries {
		e.mu.Lock()
		if match(&e.session) {
			out = append(out, e.session)
		}
		e.mu.Unlock()
	}
	return out
}
