package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"powershare/internal/clock"
	"powershare/internal/http/middleware"
	"powershare/internal/rental"
)

const (
	feedWriteTimeout = 5 * time.Second
	feedPingInterval = 30 * time.Second
)

// RentalFeedHandler streams clock snapshots for one rental over a
// websocket. The stream ends with a terminal snapshot and a normal closure
// once the session leaves the active state.
type RentalFeedHandler struct {
	controller *rental.Controller
	clock      *clock.Service
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewRentalFeedHandler builds handler.
func NewRentalFeedHandler(controller *rental.Controller, clockSvc *clock.Service, logger *zap.Logger) *RentalFeedHandler {
	return &RentalFeedHandler{
		controller: controller,
		clock:      clockSvc,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve handles GET /api/rentals/{id}/feed.
func (h *RentalFeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	rentalID := r.PathValue("id")

	session, err := h.controller.Session(rentalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if session.UserID != userID {
		writeError(w, http.StatusForbidden, "rental belongs to another user")
		return
	}

	feed, cancel, err := h.clock.Subscribe(rentalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("rental_id", rentalID), zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so close handshakes and pongs are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	pings := time.NewTicker(feedPingInterval)
	defer pings.Stop()

	for {
		select {
		case snap, open := <-feed:
			if !open {
				deadline := time.Now().Add(feedWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "rental finished"), deadline)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Info("feed write closed", zap.String("rental_id", rentalID), zap.Error(err))
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}
