package models

// Station is a physical dock holding rentable power banks.
type Station struct {
	ID         string  `db:"id" json:"id"`
	Name       string  `db:"name" json:"name"`
	Latitude   float64 `db:"latitude" json:"latitude"`
	Longitude  float64 `db:"longitude" json:"longitude"`
	HourlyRate float64 `db:"hourly_rate" json:"hourly_rate"`
}

// StationSnapshot is a read-only copy of a station with live counts,
// returned to callers instead of a reference into inventory state.
type StationSnapshot struct {
	Station
	Available int             `json:"available"`
	Total     int             `json:"total"`
	Devices   []DeviceSummary `json:"devices,omitempty"`
}

// DeviceSummary is the per-device view exposed on station listings.
type DeviceSummary struct {
	ID           string `json:"id"`
	BatteryLevel int    `json:"battery_level"`
}
