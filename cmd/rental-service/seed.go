package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"powershare/internal/config"
	"powershare/internal/models"
	"powershare/internal/repository"
	libdb "powershare/libs/db"
)

// Demo fixtures mirroring the original PowerShare station set.
var seedStations = []struct {
	station models.Station
	levels  []int
}{
	{
		station: models.Station{ID: "st-001", Name: "Central Mall Station", Latitude: 40.7589, Longitude: -73.9851, HourlyRate: 2.99},
		levels:  []int{95, 87, 92, 78, 85, 90, 76, 88},
	},
	{
		station: models.Station{ID: "st-002", Name: "Train Station Hub", Latitude: 40.7614, Longitude: -73.9776, HourlyRate: 2.99},
		levels:  []int{91, 85, 79},
	},
	{
		station: models.Station{ID: "st-003", Name: "University Campus", Latitude: 40.7505, Longitude: -73.9934, HourlyRate: 2.49},
		levels:  []int{88, 92, 95, 84, 87, 91, 89, 93, 86, 90, 85, 94},
	},
	{
		station: models.Station{ID: "st-004", Name: "Shopping Center", Latitude: 40.7648, Longitude: -73.9808, HourlyRate: 2.99},
		levels:  []int{},
	},
	{
		station: models.Station{ID: "st-005", Name: "Business District", Latitude: 40.7549, Longitude: -73.9840, HourlyRate: 3.49},
		levels:  []int{82, 95, 88, 91, 87, 93},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo station and device fixtures into postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		repo := repository.NewStationRepository(sqlDB)
		ctx := context.Background()

		for _, fixture := range seedStations {
			if err := repo.UpsertStation(ctx, fixture.station); err != nil {
				return fmt.Errorf("seed station %s: %w", fixture.station.ID, err)
			}
			for i, level := range fixture.levels {
				device := models.Device{
					ID:           fmt.Sprintf("%s-pb-%02d", fixture.station.ID, i+1),
					BatteryLevel: level,
					Status:       models.DeviceStatusDocked,
				}
				if err := repo.UpsertDevice(ctx, fixture.station.ID, device); err != nil {
					return fmt.Errorf("seed device %s: %w", device.ID, err)
				}
			}
			fmt.Printf("seeded %s with %d devices\n", fixture.station.Name, len(fixture.levels))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
