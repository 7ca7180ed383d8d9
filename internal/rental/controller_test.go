package rental

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"powershare/internal/inventory"
	"powershare/internal/models"
	"powershare/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeArchive struct {
	mu      sync.Mutex
	saved   []models.RentalSession
	saveErr error
}

func (a *fakeArchive) SaveTerminal(_ context.Context, session models.RentalSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return a.saveErr
	}
	a.saved = append(a.saved, session)
	return nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

func testFixture(t *testing.T, opts ...Option) (*Controller, *inventory.Inventory, *fakeClock, *fakeArchive) {
	t.Helper()

	inv := inventory.NewInventory()
	if err := inv.AddStation(models.Station{ID: "a", Name: "Central Mall Station", HourlyRate: 2.99}); err != nil {
		t.Fatalf("add station: %v", err)
	}
	if err := inv.AddStation(models.Station{ID: "b", Name: "Train Station Hub", HourlyRate: 3.49}); err != nil {
		t.Fatalf("add station: %v", err)
	}
	for i, level := range []int{95, 87, 78} {
		if err := inv.AddDevice("a", models.Device{ID: fmt.Sprintf("pb-%02d", i+1), BatteryLevel: level}); err != nil {
			t.Fatalf("add device: %v", err)
		}
	}

	clk := newFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	archive := &fakeArchive{}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	ctrl := NewController(inv, store.NewSessionStore(), archive, nil, zap.NewNop(), opts...)
	return ctrl, inv, clk, archive
}

func TestRequestConfirmReturnRoundTrip(t *testing.T) {
	ctrl, inv, clk, archive := testFixture(t)
	ctx := context.Background()

	session, err := ctrl.RequestRental(ctx, "a", 7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if session.Status != models.SessionStatusPending {
		t.Fatalf("expected pending, got %s", session.Status)
	}
	if session.DeviceID != "pb-01" {
		t.Fatalf("expected highest-battery device pb-01, got %s", session.DeviceID)
	}

	snapA, _ := inv.StationSnapshot("a")
	if snapA.Available != 2 {
		t.Fatalf("expected a available=2 after reserve, got %d", snapA.Available)
	}

	session, err = ctrl.ConfirmRental(ctx, session.ID, "pay-ok")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if session.Status != models.SessionStatusActive {
		t.Fatalf("expected active, got %s", session.Status)
	}
	if session.HourlyRate != 2.99 {
		t.Fatalf("expected captured rate 2.99, got %v", session.HourlyRate)
	}

	clk.Advance(5400 * time.Second)

	record, err := ctrl.ReturnRental(ctx, session.ID, "b", 60)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if record.DurationSeconds != 5400 {
		t.Fatalf("expected 5400s, got %d", record.DurationSeconds)
	}
	if record.Amount != 4.49 {
		t.Fatalf("expected 4.49, got %v", record.Amount)
	}

	snapA, _ = inv.StationSnapshot("a")
	snapB, _ := inv.StationSnapshot("b")
	if snapA.Available != 2 || snapB.Available != 1 {
		t.Fatalf("expected a=2 b=1 after cross-station return, got a=%d b=%d", snapA.Available, snapB.Available)
	}
	if snapA.Total+snapB.Total != 3 {
		t.Fatalf("device count not conserved: %d", snapA.Total+snapB.Total)
	}

	stored, err := ctrl.Session(session.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if stored.Status != models.SessionStatusReturned || stored.EndTime == nil || stored.Billing == nil {
		t.Fatalf("terminal session incomplete: %+v", stored)
	}
	if archive.count() != 1 {
		t.Fatalf("expected 1 archived session, got %d", archive.count())
	}
}

func TestRequestRentalNoDevice(t *testing.T) {
	ctrl, _, _, _ := testFixture(t)
	ctx := context.Background()

	if _, err := ctrl.RequestRental(ctx, "b", 7); !errors.Is(err, ErrRentalUnavailable) {
		t.Fatalf("expected ErrRentalUnavailable for empty station, got %v", err)
	}
}

func TestConcurrentRequestsLastDevice(t *testing.T) {
	ctrl, inv, _, _ := testFixture(t)
	ctx := context.Background()

	// Drain station a down to one device.
	for i := 0; i < 2; i++ {
		if _, err := ctrl.RequestRental(ctx, "a", int64(i)); err != nil {
			t.Fatalf("drain request: %v", err)
		}
	}
	snap, _ := inv.StationSnapshot("a")
	if snap.Available != 1 {
		t.Fatalf("setup: expected 1 available, got %d", snap.Available)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := ctrl.RequestRental(ctx, "a", user)
			results <- err
		}(int64(10 + i))
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRentalUnavailable):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || rejections != 1 {
		t.Fatalf("expected one pending session and one rejection, got wins=%d rejections=%d", wins, rejections)
	}
}

func TestConfirmRequiresPaymentAuthorization(t *testing.T) {
	ctrl, _, _, _ := testFixture(t)
	ctx := context.Background()

	session, err := ctrl.RequestRental(ctx, "a", 7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := ctrl.ConfirmRental(ctx, session.ID, ""); !errors.Is(err, ErrPaymentNotAuthorized) {
		t.Fatalf("expected ErrPaymentNotAuthorized, got %v", err)
	}

	stored, _ := ctrl.Session(session.ID)
	if stored.Status != models.SessionStatusPending {
		t.Fatalf("failed confirm must not transition, got %s", stored.Status)
	}
}

func TestConfirmErrors(t *testing.T) {
	ctrl, _, _, _ := testFixture(t)
	ctx := context.Background()

	if _, err := ctrl.ConfirmRental(ctx, "ghost", "pay-ok"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	session, _ := ctrl.RequestRental(ctx, "a", 7)
	if _, err := ctrl.ConfirmRental(ctx, session.ID, "pay-ok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := ctrl.ConfirmRental(ctx, session.ID, "pay-ok"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double confirm, got %v", err)
	}
}

func TestReturnIsNotIdempotent(t *testing.T) {
	ctrl, inv, clk, archive := testFixture(t)
	ctx := context.Background()

	session, _ := ctrl.RequestRental(ctx, "a", 7)
	if _, err := ctrl.ConfirmRental(ctx, session.ID, "pay-ok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	clk.Advance(time.Hour)

	first, err := ctrl.ReturnRental(ctx, session.ID, "a", 70)
	if err != nil {
		t.Fatalf("first return: %v", err)
	}
	if _, err := ctrl.ReturnRental(ctx, session.ID, "a", 70); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second return, got %v", err)
	}

	// The frozen record and the inventory are untouched by the second call.
	stored, _ := ctrl.Session(session.ID)
	if stored.Billing == nil || stored.Billing.Amount != first.Amount {
		t.Fatalf("billing record altered by rejected return: %+v", stored.Billing)
	}
	snap, _ := inv.StationSnapshot("a")
	if snap.Available != 3 {
		t.Fatalf("expected 3 available, device released twice? got %d", snap.Available)
	}
	if archive.count() != 1 {
		t.Fatalf("expected single archive write, got %d", archive.count())
	}
}

func TestReturnFailsWhenArchiveWriteFails(t *testing.T) {
	ctrl, inv, clk, archive := testFixture(t)
	ctx := context.Background()

	session, _ := ctrl.RequestRental(ctx, "a", 7)
	if _, err := ctrl.ConfirmRental(ctx, session.ID, "pay-ok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	clk.Advance(time.Hour)

	archive.saveErr = errors.New("db down")
	if _, err := ctrl.ReturnRental(ctx, session.ID, "a", 70); err == nil {
		t.Fatal("expected return to fail when terminal write fails")
	}

	// Nothing moved: the session is still active and the device still out.
	stored, _ := ctrl.Session(session.ID)
	if stored.Status != models.SessionStatusActive {
		t.Fatalf("expected session still active, got %s", stored.Status)
	}
	snap, _ := inv.StationSnapshot("a")
	if snap.Available != 2 {
		t.Fatalf("expected device still rented, available=%d", snap.Available)
	}

	// A retry succeeds once the archive recovers.
	archive.saveErr = nil
	if _, err := ctrl.ReturnRental(ctx, session.ID, "a", 70); err != nil {
		t.Fatalf("retry return: %v", err)
	}
}

func TestCancelPendingRestoresDevice(t *testing.T) {
	ctrl, inv, _, _ := testFixture(t)
	ctx := context.Background()

	session, _ := ctrl.RequestRental(ctx, "a", 7)
	if err := ctrl.CancelRental(ctx, session.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	snap, _ := inv.StationSnapshot("a")
	if snap.Available != 3 {
		t.Fatalf("expected device restored, available=%d", snap.Available)
	}
	stored, _ := ctrl.Session(session.ID)
	if stored.Status != models.SessionStatusCancelled || stored.EndTime == nil {
		t.Fatalf("expected cancelled with end time, got %+v", stored)
	}
	if stored.Billing != nil {
		t.Fatal("cancellation must not produce a billing record")
	}

	if err := ctrl.CancelRental(ctx, session.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double cancel, got %v", err)
	}
}

func TestCancelActiveRejected(t *testing.T) {
	ctrl, _, _, _ := testFixture(t)
	ctx := context.Background()

	session, _ := ctrl.RequestRental(ctx, "a", 7)
	if _, err := ctrl.ConfirmRental(ctx, session.ID, "pay-ok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := ctrl.CancelRental(ctx, session.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition cancelling active session, got %v", err)
	}
}

func TestPendingReservationExpires(t *testing.T) {
	ctrl, inv, clk, _ := testFixture(t, WithReservationTTL(2*time.Minute))
	ctx := context.Background()

	session, _ := ctrl.RequestRental(ctx, "a", 7)
	clk.Advance(2*time.Minute + time.Second)
	ctrl.sweepExpired(ctx)

	stored, _ := ctrl.Session(session.ID)
	if stored.Status != models.SessionStatusCancelled {
		t.Fatalf("expected expired reservation cancelled, got %s", stored.Status)
	}
	snap, _ := inv.StationSnapshot("a")
	if snap.Available != 3 {
		t.Fatalf("expected available count restored, got %d", snap.Available)
	}
}

func TestConfirmAfterExpiryWindow(t *testing.T) {
	ctrl, inv, clk, _ := testFixture(t, WithReservationTTL(2*time.Minute))
	ctx := context.Background()

	session, _ := ctrl.RequestRental(ctx, "a", 7)
	clk.Advance(3 * time.Minute)

	if _, err := ctrl.ConfirmRental(ctx, session.ID, "pay-ok"); !errors.Is(err, ErrReservationExpired) {
		t.Fatalf("expected ErrReservationExpired, got %v", err)
	}

	// The lazy expiry path releases the device just like the sweep.
	stored, _ := ctrl.Session(session.ID)
	if stored.Status != models.SessionStatusCancelled {
		t.Fatalf("expected cancelled after expired confirm, got %s", stored.Status)
	}
	snap, _ := inv.StationSnapshot("a")
	if snap.Available != 3 {
		t.Fatalf("expected available count restored, got %d", snap.Available)
	}
}

func TestAtMostOneActiveSessionPerDevice(t *testing.T) {
	ctrl, _, clk, _ := testFixture(t)
	ctx := context.Background()

	first, _ := ctrl.RequestRental(ctx, "a", 1)
	if _, err := ctrl.ConfirmRental(ctx, first.ID, "pay-ok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// While pb-01 is out, new rentals get other devices.
	second, err := ctrl.RequestRental(ctx, "a", 2)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.DeviceID == first.DeviceID {
		t.Fatalf("device %s handed to two sessions", first.DeviceID)
	}

	clk.Advance(time.Minute)
	if _, err := ctrl.ReturnRental(ctx, first.ID, "a", 90); err != nil {
		t.Fatalf("return: %v", err)
	}

	// Once returned, the device may be rented again.
	third, err := ctrl.RequestRental(ctx, "a", 3)
	if err != nil {
		t.Fatalf("third request: %v", err)
	}
	if third.DeviceID != first.DeviceID {
		t.Fatalf("expected returned device %s to be picked (highest battery), got %s", first.DeviceID, third.DeviceID)
	}
}
