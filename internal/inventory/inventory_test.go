package inventory

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"powershare/internal/models"
)

func newTestInventory(t *testing.T, stationID string, levels ...int) *Inventory {
	t.Helper()
	inv := NewInventory()
	if err := inv.AddStation(models.Station{ID: stationID, Name: "Station " + stationID, HourlyRate: 2.99}); err != nil {
		t.Fatalf("add station: %v", err)
	}
	for i, level := range levels {
		dev := models.Device{ID: fmt.Sprintf("%s-pb-%02d", stationID, i+1), BatteryLevel: level}
		if err := inv.AddDevice(stationID, dev); err != nil {
			t.Fatalf("add device: %v", err)
		}
	}
	return inv
}

func TestReserveDevicePrefersHighestBattery(t *testing.T) {
	inv := newTestInventory(t, "st1", 78, 95, 87)

	dev, err := inv.ReserveDevice("st1", "rental-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if dev.BatteryLevel != 95 {
		t.Fatalf("expected highest battery 95, got %d", dev.BatteryLevel)
	}
	if dev.Status != models.DeviceStatusRented {
		t.Fatalf("expected rented status, got %s", dev.Status)
	}
	if dev.RentalID != "rental-1" {
		t.Fatalf("expected rental id stamped, got %q", dev.RentalID)
	}

	snap, err := inv.StationSnapshot("st1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Available != 2 {
		t.Fatalf("expected 2 available after reserve, got %d", snap.Available)
	}
}

func TestReserveDeviceBreaksBatteryTieOnLowestID(t *testing.T) {
	inv := NewInventory()
	if err := inv.AddStation(models.Station{ID: "st1", Name: "Tie Station"}); err != nil {
		t.Fatalf("add station: %v", err)
	}
	for _, id := range []string{"pb-b", "pb-a", "pb-c"} {
		if err := inv.AddDevice("st1", models.Device{ID: id, BatteryLevel: 90}); err != nil {
			t.Fatalf("add device: %v", err)
		}
	}

	dev, err := inv.ReserveDevice("st1", "r1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if dev.ID != "pb-a" {
		t.Fatalf("expected lowest id pb-a, got %s", dev.ID)
	}
}

func TestReserveDeviceEmptyStation(t *testing.T) {
	inv := newTestInventory(t, "st1")
	if _, err := inv.ReserveDevice("st1", "r1"); !errors.Is(err, ErrNoDeviceAvailable) {
		t.Fatalf("expected ErrNoDeviceAvailable, got %v", err)
	}
	if _, err := inv.ReserveDevice("nope", "r1"); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation, got %v", err)
	}
}

func TestConcurrentReserveLastDevice(t *testing.T) {
	inv := newTestInventory(t, "st1", 88)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := inv.ReserveDevice("st1", fmt.Sprintf("r%d", n))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNoDeviceAvailable):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if losses != attempts-1 {
		t.Fatalf("expected %d losers, got %d", attempts-1, losses)
	}
}

func TestReleaseDeviceAtDifferentStation(t *testing.T) {
	inv := newTestInventory(t, "a", 95, 80)
	if err := inv.AddStation(models.Station{ID: "b", Name: "Station b"}); err != nil {
		t.Fatalf("add station: %v", err)
	}

	dev, err := inv.ReserveDevice("a", "r1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	snapA, _ := inv.StationSnapshot("a")
	if snapA.Available != 1 {
		t.Fatalf("expected a available=1 while rented, got %d", snapA.Available)
	}

	if err := inv.ReleaseDevice(dev.ID, "b", 60); err != nil {
		t.Fatalf("release: %v", err)
	}

	snapA, _ = inv.StationSnapshot("a")
	snapB, _ := inv.StationSnapshot("b")
	if snapA.Available != 1 || snapB.Available != 1 {
		t.Fatalf("expected a=1 b=1 after cross-station return, got a=%d b=%d", snapA.Available, snapB.Available)
	}
	if snapA.Total+snapB.Total != 2 {
		t.Fatalf("device count not conserved: a=%d b=%d", snapA.Total, snapB.Total)
	}

	got, err := inv.Device(dev.ID)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if got.BatteryLevel != 60 {
		t.Fatalf("expected final battery 60, got %d", got.BatteryLevel)
	}
	if got.StationID != "b" || got.Status != models.DeviceStatusDocked {
		t.Fatalf("expected docked at b, got %s at %q", got.Status, got.StationID)
	}
}

func TestReleaseDeviceErrors(t *testing.T) {
	inv := newTestInventory(t, "st1", 90)

	if err := inv.ReleaseDevice("ghost", "st1", 50); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}

	// Docked device cannot be released again.
	if err := inv.ReleaseDevice("st1-pb-01", "st1", 50); !errors.Is(err, ErrAlreadyDocked) {
		t.Fatalf("expected ErrAlreadyDocked, got %v", err)
	}
}

func TestUnavailableDeviceNotCounted(t *testing.T) {
	inv := newTestInventory(t, "st1", 90, 70)
	if err := inv.SetUnavailable("st1-pb-02"); err != nil {
		t.Fatalf("set unavailable: %v", err)
	}
	snap, _ := inv.StationSnapshot("st1")
	if snap.Available != 1 {
		t.Fatalf("expected unavailable device excluded, available=%d", snap.Available)
	}
	if snap.Total != 2 {
		t.Fatalf("expected unavailable device still docked, total=%d", snap.Total)
	}
}

func TestListStationsSearch(t *testing.T) {
	inv := NewInventory()
	names := []string{"Central Mall Station", "Train Station Hub", "University Campus"}
	for i, name := range names {
		if err := inv.AddStation(models.Station{ID: fmt.Sprintf("st%d", i+1), Name: name}); err != nil {
			t.Fatalf("add station: %v", err)
		}
	}

	all := inv.ListStations("")
	if len(all) != 3 {
		t.Fatalf("expected 3 stations, got %d", len(all))
	}
	if all[0].Name != "Central Mall Station" {
		t.Fatalf("expected registration order preserved, got %s first", all[0].Name)
	}

	filtered := inv.ListStations("station")
	if len(filtered) != 2 {
		t.Fatalf("expected 2 matches for 'station', got %d", len(filtered))
	}

	if got := inv.ListStations("campus"); len(got) != 1 || got[0].Name != "University Campus" {
		t.Fatalf("case-insensitive search failed: %v", got)
	}
}

// Available counts must equal the number of Docked devices after any
// interleaving of reserves and releases.
func TestAvailableCountConsistencyUnderConcurrency(t *testing.T) {
	inv := NewInventory()
	stationIDs := []string{"a", "b", "c"}
	for _, id := range stationIDs {
		if err := inv.AddStation(models.Station{ID: id, Name: "Station " + id}); err != nil {
			t.Fatalf("add station: %v", err)
		}
	}
	total := 0
	for s, id := range stationIDs {
		for d := 0; d < 4; d++ {
			dev := models.Device{ID: fmt.Sprintf("%s-%d", id, d), BatteryLevel: 50 + s*10 + d}
			if err := inv.AddDevice(id, dev); err != nil {
				t.Fatalf("add device: %v", err)
			}
			total++
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				from := stationIDs[rng.Intn(len(stationIDs))]
				dev, err := inv.ReserveDevice(from, fmt.Sprintf("r-%d-%d", seed, i))
				if err != nil {
					continue
				}
				to := stationIDs[rng.Intn(len(stationIDs))]
				if err := inv.ReleaseDevice(dev.ID, to, rng.Intn(101)); err != nil {
					t.Errorf("release: %v", err)
					return
				}
			}
		}(int64(w))
	}
	wg.Wait()

	sumTotal, sumAvailable := 0, 0
	for _, snap := range inv.ListStations("") {
		if snap.Available > snap.Total {
			t.Fatalf("station %s: available %d exceeds total %d", snap.ID, snap.Available, snap.Total)
		}
		sumTotal += snap.Total
		sumAvailable += snap.Available
	}
	if sumTotal != total || sumAvailable != total {
		t.Fatalf("device count not conserved: total=%d available=%d want %d", sumTotal, sumAvailable, total)
	}
}
