package handlers

import (
	"net/http"

	"powershare/internal/billing"
	"powershare/internal/inventory"
)

// StationsHandlers serves station discovery endpoints. Distance ordering is
// the presentation layer's job; responses carry coordinates for it.
type StationsHandlers struct {
	inventory *inventory.Inventory
}

// NewStationsHandlers builds handler set.
func NewStationsHandlers(inv *inventory.Inventory) *StationsHandlers {
	return &StationsHandlers{inventory: inv}
}

// List handles GET /api/stations?search=.
func (h *StationsHandlers) List(w http.ResponseWriter, r *http.Request) {
	stations := h.inventory.ListStations(r.URL.Query().Get("search"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stations": stations,
	})
}

// Quote handles GET /api/stations/{id}/quote: the hourly rate plus the cost
// range for a typical 2-4 hour rental.
func (h *StationsHandlers) Quote(w http.ResponseWriter, r *http.Request) {
	station, err := h.inventory.Station(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"station_id":         station.ID,
		"hourly_rate":        station.HourlyRate,
		"estimated_cost_min": billing.RoundAmount(2 * station.HourlyRate),
		"estimated_cost_max": billing.RoundAmount(4 * station.HourlyRate),
	})
}
