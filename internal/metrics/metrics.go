package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Rental lifecycle metrics
	RentalsRequested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "powershare_rentals_requested_total",
			Help: "Total rental requests that reserved a device",
		},
	)

	RentalsConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "powershare_rentals_confirmed_total",
			Help: "Total rentals confirmed into the active state",
		},
	)

	RentalsReturned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "powershare_rentals_returned_total",
			Help: "Total rentals returned and settled",
		},
	)

	RentalsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powershare_rentals_cancelled_total",
			Help: "Total rentals cancelled before confirmation",
		},
		[]string{"reason"},
	)

	ReservationsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "powershare_reservations_rejected_total",
			Help: "Rental requests rejected because no device was available",
		},
	)

	ActiveRentals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "powershare_active_rentals",
			Help: "Rentals currently in the active state",
		},
	)

	// Billing metrics
	AmountSettled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "powershare_amount_settled_total",
			Help: "Sum of settled billing amounts",
		},
	)

	ClockSkewAnomalies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "powershare_clock_skew_anomalies_total",
			Help: "Settlements whose duration was clamped to zero",
		},
	)

	// Clock service metrics
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "powershare_tick_duration_seconds",
			Help:    "Wall time of one clock sweep over all active sessions",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	SnapshotsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "powershare_snapshots_dropped_total",
			Help: "Snapshots dropped because a subscriber queue was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RentalsRequested,
		RentalsConfirmed,
		RentalsReturned,
		RentalsCancelled,
		ReservationsRejected,
		ActiveRentals,
		AmountSettled,
		ClockSkewAnomalies,
		TickDuration,
		SnapshotsDropped,
	)
}

// Handler returns the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
