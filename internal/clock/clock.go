// Package clock drives observability of in-progress rentals. A single
// scheduler tick recomputes duration, accrued cost and a battery projection
// for every Active session and publishes snapshots to subscribers. It never
// mutates session ground truth.
package clock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"powershare/internal/billing"
	"powershare/internal/metrics"
	"powershare/internal/models"
	"powershare/internal/store"
)

const (
	defaultInterval = time.Second

	// Display-only drain applied to the level captured at reservation.
	batteryDrainPerSecond = 0.01
	lowBatteryThreshold   = 20.0

	subscriberQueueSize = 8
)

// Snapshot is one published observation of a rental.
type Snapshot struct {
	RentalID        string  `json:"rental_id"`
	DurationSeconds int64   `json:"duration_seconds"`
	AccruedCost     float64 `json:"accrued_cost"`
	BatteryEstimate float64 `json:"battery_estimate"`
	LowBattery      bool    `json:"low_battery"`
	// Terminal marks the last snapshot of a feed; Amount carries the frozen
	// settlement when the session was Returned.
	Terminal bool    `json:"terminal,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
}

type subscriber struct {
	ch chan Snapshot
}

// Service computes and fans out snapshots. Ticking is a property of a
// session's lifetime, not of subscriber presence: sessions are swept every
// interval whether or not anyone listens, so a late subscriber sees correct
// elapsed time on the next tick.
type Service struct {
	sessions *store.SessionStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	subs    map[string][]*subscriber
	tracked map[string]struct{}
}

// Option tweaks service construction.
type Option func(*Service)

// WithInterval overrides the tick interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the clock service.
func NewService(sessions *store.SessionStore, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		interval: defaultInterval,
		logger:   logger,
		now:      time.Now,
		subs:     make(map[string][]*subscriber),
		tracked:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a feed for one rental. The returned channel receives a
// snapshot per tick while the session is Active, then a terminal snapshot,
// and is closed. Slow consumers lose the oldest snapshot, never block the
// scheduler. cancel unsubscribes and closes the channel.
func (s *Service) Subscribe(rentalID string) (<-chan Snapshot, func(), error) {
	session, err := s.sessions.Get(rentalID)
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{ch: make(chan Snapshot, subscriberQueueSize)}

	if session.Status.Terminal() {
		// Late subscriber to a finished rental gets the final state at once.
		sub.ch <- s.terminalSnapshot(&session)
		close(sub.ch)
		return sub.ch, func() {}, nil
	}

	s.mu.Lock()
	s.subs[rentalID] = append(s.subs[rentalID], sub)
	s.mu.Unlock()

	cancel := func() { s.unsubscribe(rentalID, sub) }
	return sub.ch, cancel, nil
}

func (s *Service) unsubscribe(rentalID string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[rentalID]
	for i, candidate := range subs {
		if candidate == sub {
			s.subs[rentalID] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			break
		}
	}
	if len(s.subs[rentalID]) == 0 {
		delete(s.subs, rentalID)
	}
}

// Run drives the scheduler until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick sweeps all Active sessions once: computes snapshots, publishes them,
// and finishes feeds whose sessions reached a terminal state.
func (s *Service) Tick() {
	started := time.Now()
	now := s.now().UTC()

	active := s.sessions.Active()
	activeIDs := make(map[string]struct{}, len(active))
	for i := range active {
		session := &active[i]
		activeIDs[session.ID] = struct{}{}
		s.publish(session.ID, s.snapshot(session, now))
	}

	// A feed must end the moment its session leaves the live states, even if
	// no tick ever saw it Active: a Pending reservation can be cancelled or
	// expire, and a session can confirm and return between two ticks. Sweep
	// subscribed sessions alongside the previously-seen ones.
	s.mu.Lock()
	candidates := make(map[string]struct{}, len(s.tracked)+len(s.subs))
	for id := range s.tracked {
		candidates[id] = struct{}{}
	}
	for id := range s.subs {
		candidates[id] = struct{}{}
	}
	for id := range activeIDs {
		s.tracked[id] = struct{}{}
	}
	s.mu.Unlock()

	var finished []string
	for id := range candidates {
		if _, ok := activeIDs[id]; ok {
			continue
		}
		session, err := s.sessions.Get(id)
		if err != nil || session.Status.Terminal() {
			finished = append(finished, id)
		}
	}

	s.mu.Lock()
	for _, id := range finished {
		delete(s.tracked, id)
	}
	s.mu.Unlock()

	for _, id := range finished {
		s.finish(id)
	}

	metrics.TickDuration.Observe(time.Since(started).Seconds())
}

func (s *Service) snapshot(session *models.RentalSession, now time.Time) Snapshot {
	elapsed := now.Sub(session.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := int64(elapsed / time.Second)

	estimate := float64(session.BatteryAtStart) - batteryDrainPerSecond*float64(seconds)
	if estimate < 0 {
		estimate = 0
	}

	return Snapshot{
		RentalID:        session.ID,
		DurationSeconds: seconds,
		AccruedCost:     billing.AccruedCost(session, now),
		BatteryEstimate: estimate,
		LowBattery:      estimate < lowBatteryThreshold,
	}
}

func (s *Service) terminalSnapshot(session *models.RentalSession) Snapshot {
	snap := Snapshot{
		RentalID: session.ID,
		Terminal: true,
	}
	if session.Billing != nil {
		snap.DurationSeconds = session.Billing.DurationSeconds
		snap.AccruedCost = session.Billing.Amount
		snap.Amount = session.Billing.Amount
	}
	return snap
}

// publish delivers under the lock; sends never block, so the critical
// section stays bounded and no send can race an unsubscribe close.
func (s *Service) publish(rentalID string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs[rentalID] {
		deliver(sub.ch, snap)
	}
}

// deliver pushes without ever blocking: a full queue loses its oldest entry.
func deliver(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
		metrics.SnapshotsDropped.Inc()
	default:
	}
	select {
	case ch <- snap:
	default:
		metrics.SnapshotsDropped.Inc()
	}
}

// finish emits the terminal snapshot to remaining subscribers and closes
// their channels.
func (s *Service) finish(rentalID string) {
	s.mu.Lock()
	subs := s.subs[rentalID]
	delete(s.subs, rentalID)
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	session, err := s.sessions.Get(rentalID)
	if err != nil {
		s.logger.Warn("finished session vanished", zap.String("rental_id", rentalID), zap.Error(err))
		for _, sub := range subs {
			close(sub.ch)
		}
		return
	}

	snap := s.terminalSnapshot(&session)
	for _, sub := range subs {
		deliver(sub.ch, snap)
		close(sub.ch)
	}
}

func (s *Service) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, subs := range s.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(s.subs, id)
	}
}
