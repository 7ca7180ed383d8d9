// Package billing computes rental charges. It holds no state; callers pass
// the session and the evaluation time.
package billing

import (
	"math"
	"time"

	"powershare/internal/models"
)

const secondsPerHour = 3600

// AccruedCost returns the unrounded running cost of an Active session at the
// given time. Intermediate display values stay unrounded so repeated ticks
// do not accumulate rounding drift; only the final settlement is rounded.
func AccruedCost(session *models.RentalSession, at time.Time) float64 {
	elapsed := at.Sub(session.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Hours() * session.HourlyRate
}

// Settle produces the frozen BillingRecord for a session ending at endTime.
// Duration is whole seconds and never negative: if clock skew would produce
// a negative duration it is clamped to 0 and the second return value reports
// the anomaly so the caller can log it. Called exactly once per session.
func Settle(session *models.RentalSession, endTime time.Time) (models.BillingRecord, bool) {
	duration := int64(endTime.Sub(session.StartTime) / time.Second)
	skewed := duration < 0
	if skewed {
		duration = 0
	}

	amount := float64(duration) / secondsPerHour * session.HourlyRate
	return models.BillingRecord{
		RentalID:        session.ID,
		DurationSeconds: duration,
		HourlyRate:      session.HourlyRate,
		Amount:          RoundAmount(amount),
		CreatedAt:       endTime.UTC(),
	}, skewed
}

// RoundAmount rounds to the smallest currency unit (2 decimals) using
// round-half-up.
func RoundAmount(amount float64) float64 {
	return math.Floor(amount*100+0.5) / 100
}
