package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"powershare/internal/billing"
	"powershare/internal/inventory"
	"powershare/internal/metrics"
	"powershare/internal/models"
	"powershare/internal/redisstore"
	"powershare/internal/store"
)

// Controller errors. ErrSessionNotFound is the store sentinel so callers can
// match either package.
var (
	ErrRentalUnavailable    = errors.New("rental: no device available at station")
	ErrInvalidTransition    = errors.New("rental: invalid transition")
	ErrReservationExpired   = errors.New("rental: reservation expired")
	ErrPaymentNotAuthorized = errors.New("rental: payment authorization required")
	ErrSessionNotFound      = store.ErrSessionNotFound
)

const (
	defaultReservationTTL = 2 * time.Minute
	defaultSweepInterval  = 5 * time.Second

	cancelReasonUser    = "user"
	cancelReasonExpired = "expired"
)

// Archive persists terminal sessions. The write must be durable before a
// BillingRecord is handed back to the caller.
type Archive interface {
	SaveTerminal(ctx context.Context, session models.RentalSession) error
}

// Controller orchestrates the rental state machine
// Pending -> Active -> {Returned | Cancelled}. It owns no state: inventory
// owns devices, the session store owns sessions. Per-session serialization
// comes from the store's Update, so concurrent transitions on one id leave
// exactly one winner.
type Controller struct {
	inventory      *inventory.Inventory
	sessions       *store.SessionStore
	archive        Archive           // optional
	cache          *redisstore.Store // optional
	logger         *zap.Logger
	now            func() time.Time
	newID          func() string
	reservationTTL time.Duration
	sweepInterval  time.Duration
}

// Option tweaks controller construction.
type Option func(*Controller)

// WithReservationTTL overrides the pending-confirmation window.
func WithReservationTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		if ttl > 0 {
			c.reservationTTL = ttl
		}
	}
}

// WithSweepInterval overrides the expiry sweep cadence.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.sweepInterval = interval
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds the controller. archive and cache may be nil; the
// lifecycle works without them, they only add durability and lookup speed.
func NewController(inv *inventory.Inventory, sessions *store.SessionStore, archive Archive, cache *redisstore.Store, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		inventory:      inv,
		sessions:       sessions,
		archive:        archive,
		cache:          cache,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
		reservationTTL: defaultReservationTTL,
		sweepInterval:  defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestRental reserves a device at the station and creates a Pending
// session. Reservation and session creation are atomic as a pair: if the
// session cannot be recorded the device goes straight back.
func (c *Controller) RequestRental(ctx context.Context, stationID string, userID int64) (models.RentalSession, error) {
	rentalID := c.newID()

	device, err := c.inventory.ReserveDevice(stationID, rentalID)
	if err != nil {
		if errors.Is(err, inventory.ErrNoDeviceAvailable) {
			metrics.ReservationsRejected.Inc()
			return models.RentalSession{}, fmt.Errorf("%w: station %s", ErrRentalUnavailable, stationID)
		}
		return models.RentalSession{}, err
	}

	session := models.RentalSession{
		ID:              rentalID,
		UserID:          userID,
		DeviceID:        device.ID,
		OriginStationID: stationID,
		Status:          models.SessionStatusPending,
		BatteryAtStart:  device.BatteryLevel,
		CreatedAt:       c.now().UTC(),
	}
	if err := c.sessions.Create(session); err != nil {
		if relErr := c.inventory.ReleaseDevice(device.ID, stationID, device.BatteryLevel); relErr != nil {
			c.logger.Error("failed to roll back reservation",
				zap.String("rental_id", rentalID),
				zap.String("device_id", device.ID),
				zap.Error(relErr),
			)
		}
		return models.RentalSession{}, err
	}

	metrics.RentalsRequested.Inc()
	c.logger.Info("rental requested",
		zap.String("rental_id", rentalID),
		zap.Int64("user_id", userID),
		zap.String("station_id", stationID),
		zap.String("device_id", device.ID),
	)
	return session, nil
}

// ConfirmRental transitions Pending -> Active once payment has been
// authorized externally. The station's hourly rate is captured onto the
// session here; later price changes never affect it.
func (c *Controller) ConfirmRental(ctx context.Context, rentalID, paymentToken string) (models.RentalSession, error) {
	if paymentToken == "" {
		return models.RentalSession{}, ErrPaymentNotAuthorized
	}

	now := c.now().UTC()
	session, err := c.sessions.Update(rentalID, func(session *models.RentalSession) error {
		if session.Status != models.SessionStatusPending {
			return ErrInvalidTransition
		}
		if now.Sub(session.CreatedAt) > c.reservationTTL {
			return ErrReservationExpired
		}
		station, err := c.inventory.Station(session.OriginStationID)
		if err != nil {
			return err
		}
		session.Status = models.SessionStatusActive
		session.StartTime = now
		session.HourlyRate = station.HourlyRate
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrReservationExpired) {
			// A confirm racing the reaper still releases the device.
			c.expire(ctx, rentalID)
		}
		return models.RentalSession{}, err
	}

	if c.cache != nil {
		if cacheErr := c.cache.Save(ctx, redisstore.ActiveRental{
			RentalID:        session.ID,
			UserID:          session.UserID,
			DeviceID:        session.DeviceID,
			OriginStationID: session.OriginStationID,
			HourlyRate:      session.HourlyRate,
			StartTime:       session.StartTime,
		}); cacheErr != nil {
			c.logger.Warn("failed to cache active rental", zap.String("rental_id", rentalID), zap.Error(cacheErr))
		}
	}

	metrics.RentalsConfirmed.Inc()
	metrics.ActiveRentals.Inc()
	c.logger.Info("rental confirmed",
		zap.String("rental_id", rentalID),
		zap.Float64("hourly_rate", session.HourlyRate),
	)
	return session, nil
}

// ReturnRental transitions Active -> Returned, releases the device at the
// return station (any station), settles the billing record and freezes it
// onto the session. The terminal state is written durably before the record
// is returned. A second call on the same id observes ErrInvalidTransition
// and releases nothing.
func (c *Controller) ReturnRental(ctx context.Context, rentalID, returnStationID string, finalBatteryLevel int) (models.BillingRecord, error) {
	if _, err := c.inventory.Station(returnStationID); err != nil {
		return models.BillingRecord{}, err
	}

	now := c.now().UTC()
	var record models.BillingRecord
	_, err := c.sessions.Update(rentalID, func(session *models.RentalSession) error {
		if session.Status != models.SessionStatusActive {
			return ErrInvalidTransition
		}

		settled, skewed := billing.Settle(session, now)
		if skewed {
			metrics.ClockSkewAnomalies.Inc()
			c.logger.Warn("clock skew at settlement, duration clamped to zero",
				zap.String("rental_id", session.ID),
				zap.Time("start_time", session.StartTime),
				zap.Time("end_time", now),
			)
		}

		terminal := *session
		terminal.Status = models.SessionStatusReturned
		terminal.ReturnStationID = returnStationID
		endTime := now
		terminal.EndTime = &endTime
		terminal.Billing = &settled

		if c.archive != nil {
			if err := c.archive.SaveTerminal(ctx, terminal); err != nil {
				return fmt.Errorf("rental: persist settlement: %w", err)
			}
		}
		if err := c.inventory.ReleaseDevice(session.DeviceID, returnStationID, finalBatteryLevel); err != nil {
			return err
		}

		*session = terminal
		record = settled
		return nil
	})
	if err != nil {
		return models.BillingRecord{}, err
	}

	if c.cache != nil {
		if cacheErr := c.cache.Delete(ctx, rentalID); cacheErr != nil {
			c.logger.Warn("failed to drop active rental cache", zap.String("rental_id", rentalID), zap.Error(cacheErr))
		}
	}

	metrics.RentalsReturned.Inc()
	metrics.ActiveRentals.Dec()
	metrics.AmountSettled.Add(record.Amount)
	c.logger.Info("rental returned",
		zap.String("rental_id", rentalID),
		zap.String("return_station_id", returnStationID),
		zap.Int64("duration_seconds", record.DurationSeconds),
		zap.Float64("amount", record.Amount),
	)
	return record, nil
}

// CancelRental cancels a Pending reservation and docks the device back at
// its origin station. No billing record is produced.
func (c *Controller) CancelRental(ctx context.Context, rentalID string) error {
	if err := c.cancel(ctx, rentalID, cancelReasonUser); err != nil {
		return err
	}
	c.logger.Info("rental cancelled", zap.String("rental_id", rentalID))
	return nil
}

func (c *Controller) cancel(ctx context.Context, rentalID, reason string) error {
	now := c.now().UTC()
	_, err := c.sessions.Update(rentalID, func(session *models.RentalSession) error {
		if session.Status != models.SessionStatusPending {
			return ErrInvalidTransition
		}

		device, err := c.inventory.Device(session.DeviceID)
		if err != nil {
			return err
		}
		if err := c.inventory.ReleaseDevice(session.DeviceID, session.OriginStationID, device.BatteryLevel); err != nil {
			return err
		}

		session.Status = models.SessionStatusCancelled
		endTime := now
		session.EndTime = &endTime

		if c.archive != nil {
			if archErr := c.archive.SaveTerminal(ctx, *session); archErr != nil {
				// No billing record rides on a cancellation, so the archive
				// write is best effort.
				c.logger.Warn("failed to archive cancelled rental", zap.String("rental_id", rentalID), zap.Error(archErr))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.RentalsCancelled.WithLabelValues(reason).Inc()
	return nil
}

func (c *Controller) expire(ctx context.Context, rentalID string) {
	if err := c.cancel(ctx, rentalID, cancelReasonExpired); err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrSessionNotFound) {
			c.logger.Error("failed to expire reservation", zap.String("rental_id", rentalID), zap.Error(err))
		}
		return
	}
	c.logger.Info("reservation expired", zap.String("rental_id", rentalID))
}

// Run drives the reservation-expiry sweep until ctx is cancelled. A Pending
// session older than the reservation TTL is auto-cancelled so abandoned
// reservations cannot starve a station.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepExpired(ctx)
		}
	}
}

func (c *Controller) sweepExpired(ctx context.Context) {
	cutoff := c.now().UTC().Add(-c.reservationTTL)
	for _, id := range c.sessions.PendingBefore(cutoff) {
		c.expire(ctx, id)
	}
}

// Session returns a copy of the session.
func (c *Controller) Session(rentalID string) (models.RentalSession, error) {
	return c.sessions.Get(rentalID)
}
