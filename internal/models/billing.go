package models

import "time"

// BillingRecord is the final charge computed at return. Immutable once
// created.
type BillingRecord struct {
	RentalID        string    `db:"rental_id" json:"rental_id"`
	DurationSeconds int64     `db:"duration_seconds" json:"duration_seconds"`
	HourlyRate      float64   `db:"hourly_rate" json:"hourly_rate"`
	Amount          float64   `db:"amount" json:"amount"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
