package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"powershare/internal/models"
)

func pendingSession(id string, userID int64, createdAt time.Time) models.RentalSession {
	return models.RentalSession{
		ID:        id,
		UserID:    userID,
		DeviceID:  "pb-" + id,
		Status:    models.SessionStatusPending,
		CreatedAt: createdAt,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewSessionStore()
	now := time.Now().UTC()
	if err := s.Create(pendingSession("r1", 7, now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(pendingSession("r1", 7, now)); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	got, err := s.Get("r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != 7 || got.Status != models.SessionStatusPending {
		t.Fatalf("unexpected session %+v", got)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUpdateErrorLeavesSessionUntouched(t *testing.T) {
	s := NewSessionStore()
	if err := s.Create(pendingSession("r1", 1, time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Update("r1", func(session *models.RentalSession) error {
		session.Status = models.SessionStatusActive
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error propagated, got %v", err)
	}

	got, _ := s.Get("r1")
	if got.Status != models.SessionStatusPending {
		t.Fatalf("failed update must not mutate, got status %s", got.Status)
	}
}

func TestConcurrentTransitionExactlyOneWins(t *testing.T) {
	s := NewSessionStore()
	if err := s.Create(pendingSession("r1", 1, time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}

	invalid := errors.New("invalid transition")
	const workers = 12
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update("r1", func(session *models.RentalSession) error {
				if session.Status != models.SessionStatusPending {
					return invalid
				}
				session.Status = models.SessionStatusActive
				return nil
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, invalid) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", wins)
	}
}

func TestActiveAndPendingBefore(t *testing.T) {
	s := NewSessionStore()
	now := time.Now().UTC()

	old := pendingSession("old", 1, now.Add(-5*time.Minute))
	fresh := pendingSession("fresh", 1, now.Add(-10*time.Second))
	running := pendingSession("running", 2, now.Add(-time.Minute))
	running.Status = models.SessionStatusActive

	for _, session := range []models.RentalSession{old, fresh, running} {
		if err := s.Create(session); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	active := s.Active()
	if len(active) != 1 || active[0].ID != "running" {
		t.Fatalf("expected single active session, got %v", active)
	}

	expired := s.PendingBefore(now.Add(-2 * time.Minute))
	if len(expired) != 1 || expired[0] != "old" {
		t.Fatalf("expected only the stale pending session, got %v", expired)
	}
}

func TestByUserNewestFirst(t *testing.T) {
	s := NewSessionStore()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := s.Create(pendingSession(fmt.Sprintf("r%d", i), 9, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.Create(pendingSession("other", 4, base)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got := s.ByUser(9)
	if len(got) != 3 {
		t.Fatalf("expected 3 sessions for user, got %d", len(got))
	}
	if got[0].ID != "r2" || got[2].ID != "r0" {
		t.Fatalf("expected newest first, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}
}
