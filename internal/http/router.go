package httpserver

import (
	"net/http"

	"powershare/internal/http/handlers"
	"powershare/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	StationsHandlers *handlers.StationsHandlers
	RentalsHandlers  *handlers.RentalsHandlers
	RentalFeed       *handlers.RentalFeedHandler
	HealthHandler    http.HandlerFunc
	MetricsHandler   http.Handler
}

// NewRouter wires HTTP routes with middleware. Station discovery is public;
// everything touching a rental requires the auth middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", deps.HealthHandler)
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	mux.Handle("GET /api/stations", http.HandlerFunc(deps.StationsHandlers.List))
	mux.Handle("GET /api/stations/{id}/quote", http.HandlerFunc(deps.StationsHandlers.Quote))

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	mux.Handle("POST /api/rentals", authenticated(deps.RentalsHandlers.Request))
	mux.Handle("POST /api/rentals/{id}/confirm", authenticated(deps.RentalsHandlers.Confirm))
	mux.Handle("POST /api/rentals/{id}/return", authenticated(deps.RentalsHandlers.Return))
	mux.Handle("POST /api/rentals/{id}/cancel", authenticated(deps.RentalsHandlers.Cancel))
	mux.Handle("GET /api/rentals/me", authenticated(deps.RentalsHandlers.Me))
	mux.Handle("GET /api/rentals/{id}/feed", authenticated(deps.RentalFeed.Serve))

	return mux
}
