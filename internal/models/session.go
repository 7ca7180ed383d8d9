package models

import "time"

// SessionStatus enumerates rental lifecycle states.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusReturned  SessionStatus = "returned"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status is one of the two end states.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusReturned || s == SessionStatusCancelled
}

// RentalSession records one rental transaction from request to terminal
// state. HourlyRate is captured at confirmation time; later price changes
// on the station never affect a running session.
type RentalSession struct {
	ID              string        `db:"id" json:"id"`
	UserID          int64         `db:"user_id" json:"user_id"`
	DeviceID        string        `db:"device_id" json:"device_id"`
	OriginStationID string        `db:"origin_station_id" json:"origin_station_id"`
	ReturnStationID string        `db:"return_station_id" json:"return_station_id,omitempty"`
	Status          SessionStatus `db:"status" json:"status"`
	HourlyRate      float64       `db:"hourly_rate" json:"hourly_rate"`
	// BatteryAtStart is the device's reported level when it was reserved.
	// The device stays docked until confirmation, so this is also the level
	// the rental starts with; display projections decay from it.
	BatteryAtStart int        `db:"battery_at_start" json:"battery_at_start"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	StartTime      time.Time  `db:"start_time" json:"start_time,omitempty"`
	EndTime        *time.Time `db:"end_time" json:"end_time,omitempty"`
	// Billing is set and frozen once the session is Returned.
	Billing *BillingRecord `db:"-" json:"billing,omitempty"`
}
