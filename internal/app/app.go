package app

import (
	"context"
	"database/sql"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "powershare/libs/db"
	libredis "powershare/libs/redis"

	"powershare/internal/clock"
	"powershare/internal/config"
	httpserver "powershare/internal/http"
	"powershare/internal/http/handlers"
	"powershare/internal/http/middleware"
	"powershare/internal/inventory"
	"powershare/internal/metrics"
	"powershare/internal/redisstore"
	"powershare/internal/rental"
	"powershare/internal/repository"
	"powershare/internal/store"
)

// App wires rental-service dependencies.
type App struct {
	server      *httpserver.Server
	controller  *rental.Controller
	clockSvc    *clock.Service
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph: postgres-backed fixtures feed the
// in-memory inventory, the controller orchestrates the lifecycle, the clock
// service drives the observation feeds.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	stationRepo := repository.NewStationRepository(sqlDB)
	rentalRepo := repository.NewRentalRepository(sqlDB)

	inv := inventory.NewInventory()
	stations, devices, err := stationRepo.LoadAll(context.Background())
	if err != nil {
		sqlDB.Close()
		redisClient.Close()
		return nil, err
	}
	for _, station := range stations {
		if err := inv.AddStation(station); err != nil {
			logger.Warn("skipping station fixture", zap.String("station_id", station.ID), zap.Error(err))
			continue
		}
		for _, device := range devices[station.ID] {
			if err := inv.AddDevice(station.ID, device); err != nil {
				logger.Warn("skipping device fixture", zap.String("device_id", device.ID), zap.Error(err))
			}
		}
	}
	logger.Info("inventory loaded", zap.Int("stations", len(stations)))

	sessions := store.NewSessionStore()
	activeCache := redisstore.NewStore(redisClient, cfg.ActiveRentalTTL())

	controller := rental.NewController(inv, sessions, rentalRepo, activeCache, logger,
		rental.WithReservationTTL(cfg.Rental.ReservationTTL),
		rental.WithSweepInterval(cfg.Rental.SweepInterval),
	)
	clockSvc := clock.NewService(sessions, logger, clock.WithInterval(cfg.Rental.TickInterval))

	routes := httpserver.RouterDeps{
		StationsHandlers: handlers.NewStationsHandlers(inv),
		RentalsHandlers:  handlers.NewRentalsHandlers(controller, rentalRepo, logger),
		RentalFeed:       handlers.NewRentalFeedHandler(controller, clockSvc, logger),
		HealthHandler:    handlers.NewHealthHandler(),
		MetricsHandler:   metrics.Handler(),
	}

	router := httpserver.NewRouter(routes, middleware.Auth(cfg.Auth.JWTSecret))
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		controller:  controller,
		clockSvc:    clockSvc,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the expiry sweep, the clock scheduler and the HTTP server, and
// blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.controller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.clockSvc.Run(ctx)
	}()

	err := a.server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
