package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"powershare/internal/http/middleware"
	"powershare/internal/models"
	"powershare/internal/rental"
)

// History reads finished rentals from the archive for the profile endpoint.
type History interface {
	ListTerminalByUser(ctx context.Context, userID int64, limit int) ([]models.RentalSession, error)
	CountReturnedByUser(ctx context.Context, userID int64) (int64, error)
}

// RentalsHandlers serves the rental lifecycle endpoints.
type RentalsHandlers struct {
	controller *rental.Controller
	history    History // optional
	logger     *zap.Logger
}

// NewRentalsHandlers builds handler set.
func NewRentalsHandlers(controller *rental.Controller, history History, logger *zap.Logger) *RentalsHandlers {
	return &RentalsHandlers{
		controller: controller,
		history:    history,
		logger:     logger,
	}
}

type requestRentalRequest struct {
	StationID string `json:"station_id"`
}

type confirmRentalRequest struct {
	PaymentToken string `json:"payment_token"`
}

type returnRentalRequest struct {
	StationID    string `json:"station_id"`
	BatteryLevel int    `json:"battery_level"`
}

// Request handles POST /api/rentals.
func (h *RentalsHandlers) Request(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req requestRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id is required")
		return
	}

	session, err := h.controller.RequestRental(r.Context(), req.StationID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Confirm handles POST /api/rentals/{id}/confirm.
func (h *RentalsHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	rentalID := r.PathValue("id")

	var req confirmRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if !h.ownsRental(w, rentalID, userID) {
		return
	}

	session, err := h.controller.ConfirmRental(r.Context(), rentalID, req.PaymentToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Return handles POST /api/rentals/{id}/return.
func (h *RentalsHandlers) Return(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	rentalID := r.PathValue("id")

	var req returnRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StationID == "" {
		writeError(w, http.StatusBadRequest, "station_id is required")
		return
	}

	if !h.ownsRental(w, rentalID, userID) {
		return
	}

	record, err := h.controller.ReturnRental(r.Context(), rentalID, req.StationID, req.BatteryLevel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Cancel handles POST /api/rentals/{id}/cancel.
func (h *RentalsHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	rentalID := r.PathValue("id")

	if !h.ownsRental(w, rentalID, userID) {
		return
	}

	if err := h.controller.CancelRental(r.Context(), rentalID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Me handles GET /api/rentals/me: finished rentals plus profile stats.
func (h *RentalsHandlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"rentals":       []models.RentalSession{},
			"total_rentals": 0,
		})
		return
	}

	sessions, err := h.history.ListTerminalByUser(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error("failed to load rental history", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load rental history")
		return
	}
	total, err := h.history.CountReturnedByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count rentals", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load rental history")
		return
	}
	if sessions == nil {
		sessions = []models.RentalSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rentals":       sessions,
		"total_rentals": total,
	})
}

// ownsRental rejects operations on another user's rental. Writes the error
// response itself and reports whether the caller may proceed.
func (h *RentalsHandlers) ownsRental(w http.ResponseWriter, rentalID string, userID int64) bool {
	session, err := h.controller.Session(rentalID)
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if session.UserID != userID {
		writeError(w, http.StatusForbidden, "rental belongs to another user")
		return false
	}
	return true
}
