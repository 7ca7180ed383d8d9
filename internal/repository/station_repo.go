package repository

import (
	"context"
	"database/sql"

	"powershare/internal/models"
)

// StationRepository persists station and device fixtures. Inventory state is
// in-memory at runtime; this table feeds it at boot and backs the seed
// command.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// UpsertStation persists station metadata.
func (r *StationRepository) UpsertStation(ctx context.Context, station models.Station) error {
	const query = `
		INSERT INTO stations (id, name, latitude, longitude, hourly_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			hourly_rate = EXCLUDED.hourly_rate,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, station.ID, station.Name, station.Latitude, station.Longitude, station.HourlyRate)
	return err
}

// UpsertDevice persists a device and its home station.
func (r *StationRepository) UpsertDevice(ctx context.Context, stationID string, device models.Device) error {
	const query = `
		INSERT INTO devices (id, station_id, battery_level, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			station_id = EXCLUDED.station_id,
			battery_level = EXCLUDED.battery_level,
			status = EXCLUDED.status,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, device.ID, stationID, device.BatteryLevel, device.Status)
	return err
}

// LoadAll returns every station and its docked devices.
func (r *StationRepository) LoadAll(ctx context.Context) ([]models.Station, map[string][]models.Device, error) {
	const stationsQuery = `
		SELECT id, name, latitude, longitude, hourly_rate
		FROM stations
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, stationsQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.HourlyRate); err != nil {
			return nil, nil, err
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	const devicesQuery = `
		SELECT id, station_id, battery_level, status
		FROM devices
		ORDER BY id
	`
	devRows, err := r.db.QueryContext(ctx, devicesQuery)
	if err != nil {
		return nil, nil, err
	}
	defer devRows.Close()

	devices := make(map[string][]models.Device)
	for devRows.Next() {
		var d models.Device
		var stationID string
		if err := devRows.Scan(&d.ID, &stationID, &d.BatteryLevel, &d.Status); err != nil {
			return nil, nil, err
		}
		devices[stationID] = append(devices[stationID], d)
	}
	if err := devRows.Err(); err != nil {
		return nil, nil, err
	}

	return stations, devices, nil
}
