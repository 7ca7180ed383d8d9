package models

// DeviceStatus enumerates the states a power bank can be in. A device is in
// exactly one state at a time.
type DeviceStatus string

const (
	DeviceStatusDocked      DeviceStatus = "docked"
	DeviceStatusRented      DeviceStatus = "rented"
	DeviceStatusUnavailable DeviceStatus = "unavailable"
)

// Device is a single power bank unit, tracked independently of any session.
type Device struct {
	ID           string       `db:"id" json:"id"`
	BatteryLevel int          `db:"battery_level" json:"battery_level"`
	Status       DeviceStatus `db:"status" json:"status"`
	// StationID is set while Docked, RentalID while Rented.
	StationID string `db:"station_id" json:"station_id,omitempty"`
	RentalID  string `db:"rental_id" json:"rental_id,omitempty"`
}
