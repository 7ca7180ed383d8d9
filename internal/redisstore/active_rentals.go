package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveRental is the cached view of a running rental for quick lookups by
// other services; the session store stays authoritative.
type ActiveRental struct {
	RentalID        string    `json:"rental_id"`
	UserID          int64     `json:"user_id"`
	DeviceID        string    `json:"device_id"`
	OriginStationID string    `json:"origin_station_id"`
	HourlyRate      float64   `json:"hourly_rate"`
	StartTime       time.Time `json:"start_time"`
}

// Store manages the active rental cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(rentalID string) string {
	return fmt.Sprintf("rentals:active:%s", rentalID)
}

// Save caches an active rental.
func (s *Store) Save(ctx context.Context, rental ActiveRental) error {
	data, err := json.Marshal(rental)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rental.RentalID), data, s.ttl).Err()
}

// Get returns the cached rental.
func (s *Store) Get(ctx context.Context, rentalID string) (*ActiveRental, error) {
	result, err := s.client.Get(ctx, s.key(rentalID)).Result()
	if err != nil {
		return nil, err
	}
	var rental ActiveRental
	if err := json.Unmarshal([]byte(result), &rental); err != nil {
		return nil, err
	}
	return &rental, nil
}

// Delete removes the cached rental once the session leaves the active state.
func (s *Store) Delete(ctx context.Context, rentalID string) error {
	return s.client.Del(ctx, s.key(rentalID)).Err()
}
