package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "powershare/libs/config"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"RENTAL_HTTP_PORT"`
}

// DatabaseConfig holds postgres settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"RENTAL_POSTGRES_DSN"`
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	Addr       string `yaml:"addr" env:"RENTAL_REDIS_ADDR"`
	Password   string `yaml:"password" env:"RENTAL_REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"RENTAL_REDIS_DB"`
	TTLSeconds int    `yaml:"ttlSeconds" env:"RENTAL_REDIS_TTL"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"RENTAL_JWT_SECRET"`
}

// RentalConfig holds lifecycle tuning.
type RentalConfig struct {
	ReservationTTL time.Duration `yaml:"reservationTTL" env:"RENTAL_RESERVATION_TTL"`
	SweepInterval  time.Duration `yaml:"sweepInterval" env:"RENTAL_SWEEP_INTERVAL"`
	TickInterval   time.Duration `yaml:"tickInterval" env:"RENTAL_TICK_INTERVAL"`
}

// Config defines rental service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Rental   RentalConfig   `yaml:"rental"`
}

// Load reads configuration via the shared helper and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:  HTTPConfig{Port: "8080"},
		Redis: RedisConfig{Addr: "localhost:6379", TTLSeconds: 86400},
		Rental: RentalConfig{
			ReservationTTL: 2 * time.Minute,
			SweepInterval:  5 * time.Second,
			TickInterval:   time.Second,
		},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ActiveRentalTTL returns the cache ttl as a duration.
func (c *Config) ActiveRentalTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
