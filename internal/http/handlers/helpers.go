package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"powershare/internal/inventory"
	"powershare/internal/rental"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the rental/inventory error taxonomy onto HTTP
// statuses; unknown errors become a 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rental.ErrRentalUnavailable):
		writeError(w, http.StatusConflict, "no power banks available at this station")
	case errors.Is(err, rental.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "rental not found")
	case errors.Is(err, inventory.ErrUnknownStation):
		writeError(w, http.StatusNotFound, "station not found")
	case errors.Is(err, inventory.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, rental.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "rental is not in a state that allows this operation")
	case errors.Is(err, rental.ErrReservationExpired):
		writeError(w, http.StatusConflict, "reservation expired")
	case errors.Is(err, inventory.ErrAlreadyDocked):
		writeError(w, http.StatusConflict, "device is already docked")
	case errors.Is(err, rental.ErrPaymentNotAuthorized):
		writeError(w, http.StatusBadRequest, "payment authorization required")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
