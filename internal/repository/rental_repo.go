package repository

import (
	"context"
	"database/sql"

	"powershare/internal/models"
)

// RentalRepository persists terminal rental sessions and their billing
// records. A session reaches the archive only once it is Returned or
// Cancelled; the in-memory store remains the source of truth before that.
type RentalRepository struct {
	db *sql.DB
}

// NewRentalRepository returns repository.
func NewRentalRepository(db *sql.DB) *RentalRepository {
	return &RentalRepository{db: db}
}

// SaveTerminal writes a terminal session and, when present, its billing
// record in one transaction. The write must be durable before the billing
// record is treated as final, so this runs before the in-memory transition
// is applied.
func (r *RentalRepository) SaveTerminal(ctx context.Context, session models.RentalSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const sessionQuery = `
		INSERT INTO rental_sessions (id, user_id, device_id, origin_station_id, return_station_id, status, hourly_rate, battery_at_start, created_at, start_time, end_time)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, '0001-01-01 00:00:00+00'::timestamptz), $11)
		ON CONFLICT (id) DO UPDATE SET
			return_station_id = EXCLUDED.return_station_id,
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time
	`
	if _, err := tx.ExecContext(ctx, sessionQuery,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.OriginStationID,
		session.ReturnStationID,
		session.Status,
		session.HourlyRate,
		session.BatteryAtStart,
		session.CreatedAt,
		session.StartTime,
		session.EndTime,
	); err != nil {
		return err
	}

	if session.Billing != nil {
		const billingQuery = `
			INSERT INTO billing_records (rental_id, duration_seconds, hourly_rate, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (rental_id) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, billingQuery,
			session.Billing.RentalID,
			session.Billing.DurationSeconds,
			session.Billing.HourlyRate,
			session.Billing.Amount,
			session.Billing.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListTerminalByUser returns the user's finished rentals, newest first,
// with billing records attached where they exist.
func (r *RentalRepository) ListTerminalByUser(ctx context.Context, userID int64, limit int) ([]models.RentalSession, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT s.id, s.user_id, s.device_id, s.origin_station_id, COALESCE(s.return_station_id, ''), s.status, s.hourly_rate, s.battery_at_start, s.created_at, COALESCE(s.start_time, '0001-01-01 00:00:00+00'::timestamptz), s.end_time,
		       b.duration_seconds, b.amount, b.created_at
		FROM rental_sessions s
		LEFT JOIN billing_records b ON b.rental_id = s.id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.RentalSession
	for rows.Next() {
		var s models.RentalSession
		var durationSeconds sql.NullInt64
		var amount sql.NullFloat64
		var billedAt sql.NullTime
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.DeviceID,
			&s.OriginStationID,
			&s.ReturnStationID,
			&s.Status,
			&s.HourlyRate,
			&s.BatteryAtStart,
			&s.CreatedAt,
			&s.StartTime,
			&s.EndTime,
			&durationSeconds,
			&amount,
			&billedAt,
		); err != nil {
			return nil, err
		}
		if durationSeconds.Valid {
			s.Billing = &models.BillingRecord{
				RentalID:        s.ID,
				DurationSeconds: durationSeconds.Int64,
				HourlyRate:      s.HourlyRate,
				Amount:          amount.Float64,
				CreatedAt:       billedAt.Time,
			}
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CountReturnedByUser returns how many rentals the user has completed.
func (r *RentalRepository) CountReturnedByUser(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM rental_sessions WHERE user_id = $1 AND status = 'returned'`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
