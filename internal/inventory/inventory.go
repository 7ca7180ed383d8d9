package inventory

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"powershare/internal/models"
)

// Inventory errors.
var (
	ErrUnknownStation    = errors.New("inventory: unknown station")
	ErrUnknownDevice     = errors.New("inventory: unknown device")
	ErrNoDeviceAvailable = errors.New("inventory: no device available")
	ErrAlreadyDocked     = errors.New("inventory: device not rented")
	ErrDuplicateID       = errors.New("inventory: duplicate id")
)

type stationState struct {
	station models.Station
	// device ids currently physically at this station (Docked or Unavailable)
	docked map[string]struct{}
}

// Inventory owns all Station and Device state. Mutations of device state and
// the derived available counts happen under one lock, so no caller can
// observe counts and device states that disagree. Reads return snapshots.
type Inventory struct {
	mu       sync.RWMutex
	stations map[string]*stationState
	order    []string
	devices  map[string]*models.Device
}

// NewInventory returns an empty registry.
func NewInventory() *Inventory {
	return &Inventory{
		stations: make(map[string]*stationState),
		devices:  make(map[string]*models.Device),
	}
}

// AddStation registers a station.
func (inv *Inventory) AddStation(station models.Station) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.stations[station.ID]; ok {
		return ErrDuplicateID
	}
	inv.stations[station.ID] = &stationState{
		station: station,
		docked:  make(map[string]struct{}),
	}
	inv.order = append(inv.order, station.ID)
	return nil
}

// AddDevice docks a new device at the given station.
func (inv *Inventory) AddDevice(stationID string, device models.Device) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	state, ok := inv.stations[stationID]
	if !ok {
		return ErrUnknownStation
	}
	if _, ok := inv.devices[device.ID]; ok {
		return ErrDuplicateID
	}
	device.Status = models.DeviceStatusDocked
	device.StationID = stationID
	device.RentalID = ""
	inv.devices[device.ID] = &device
	state.docked[device.ID] = struct{}{}
	return nil
}

// Station returns a copy of station metadata.
func (inv *Inventory) Station(stationID string) (models.Station, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	state, ok := inv.stations[stationID]
	if !ok {
		return models.Station{}, ErrUnknownStation
	}
	return state.station, nil
}

// ListStations returns snapshots of all stations in registration order,
// optionally filtered by a case-insensitive name substring. Counts are
// consistent with device states at the instant of the call.
func (inv *Inventory) ListStations(search string) []models.StationSnapshot {
	search = strings.ToLower(strings.TrimSpace(search))

	inv.mu.RLock()
	defer inv.mu.RUnlock()

	snapshots := make([]models.StationSnapshot, 0, len(inv.order))
	for _, id := range inv.order {
		state := inv.stations[id]
		if search != "" && !strings.Contains(strings.ToLower(state.station.Name), search) {
			continue
		}
		snapshots = append(snapshots, inv.snapshotLocked(state))
	}
	return snapshots
}

// StationSnapshot returns a single station snapshot with live counts.
func (inv *Inventory) StationSnapshot(stationID string) (models.StationSnapshot, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	state, ok := inv.stations[stationID]
	if !ok {
		return models.StationSnapshot{}, ErrUnknownStation
	}
	return inv.snapshotLocked(state), nil
}

func (inv *Inventory) snapshotLocked(state *stationState) models.StationSnapshot {
	snap := models.StationSnapshot{
		Station: state.station,
		Total:   len(state.docked),
	}
	for id := range state.docked {
		dev := inv.devices[id]
		if dev.Status != models.DeviceStatusDocked {
			continue
		}
		snap.Available++
		snap.Devices = append(snap.Devices, models.DeviceSummary{
			ID:           dev.ID,
			BatteryLevel: dev.BatteryLevel,
		})
	}
	sort.Slice(snap.Devices, func(i, j int) bool {
		if snap.Devices[i].BatteryLevel != snap.Devices[j].BatteryLevel {
			return snap.Devices[i].BatteryLevel > snap.Devices[j].BatteryLevel
		}
		return snap.Devices[i].ID < snap.Devices[j].ID
	})
	return snap
}

// ReserveDevice atomically claims one Docked device at the station for the
// given rental, preferring the highest battery level and breaking ties on
// the lowest device id. Two concurrent calls can never both claim the last
// device; the loser gets ErrNoDeviceAvailable.
func (inv *Inventory) ReserveDevice(stationID, rentalID string) (models.Device, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	state, ok := inv.stations[stationID]
	if !ok {
		return models.Device{}, ErrUnknownStation
	}

	var pick *models.Device
	for id := range state.docked {
		dev := inv.devices[id]
		if dev.Status != models.DeviceStatusDocked {
			continue
		}
		if pick == nil || better(dev, pick) {
			pick = dev
		}
	}
	if pick == nil {
		return models.Device{}, ErrNoDeviceAvailable
	}

	delete(state.docked, pick.ID)
	pick.Status = models.DeviceStatusRented
	pick.StationID = ""
	pick.RentalID = rentalID
	return *pick, nil
}

func better(a, b *models.Device) bool {
	if a.BatteryLevel != b.BatteryLevel {
		return a.BatteryLevel > b.BatteryLevel
	}
	return a.ID < b.ID
}

// ReleaseDevice docks a Rented device at the given station, which need not
// be the one it was rented from, and records the reported battery level.
func (inv *Inventory) ReleaseDevice(deviceID, stationID string, finalBatteryLevel int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	dev, ok := inv.devices[deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	if dev.Status != models.DeviceStatusRented {
		return ErrAlreadyDocked
	}
	state, ok := inv.stations[stationID]
	if !ok {
		return ErrUnknownStation
	}

	if finalBatteryLevel >= 0 && finalBatteryLevel <= 100 {
		dev.BatteryLevel = finalBatteryLevel
	}
	dev.Status = models.DeviceStatusDocked
	dev.StationID = stationID
	dev.RentalID = ""
	state.docked[deviceID] = struct{}{}
	return nil
}

// SetUnavailable pulls a docked device out of the rentable pool without
// undocking it (maintenance hold). Rented devices cannot be held.
func (inv *Inventory) SetUnavailable(deviceID string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	dev, ok := inv.devices[deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	if dev.Status == models.DeviceStatusRented {
		return errors.New("inventory: device is rented")
	}
	dev.Status = models.DeviceStatusUnavailable
	return nil
}

// Device returns a copy of a device's current state.
func (inv *Inventory) Device(deviceID string) (models.Device, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	dev, ok := inv.devices[deviceID]
	if !ok {
		return models.Device{}, ErrUnknownDevice
	}
	return *dev, nil
}
