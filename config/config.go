// Package config loads the middleware layer configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the startup wiring for the middleware layer.
type Config struct {
	ListenAddr    string        `validate:"required"`
	RedisAddr     string        `validate:"required"`
	RedisPassword string        `validate:"-"`
	RedisDB       int           `validate:"gte=0"`
	CacheTTL      time.Duration `validate:"gt=0"`
	ProbeInterval time.Duration `validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from the environment. A .env file is loaded
// first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:    envOr("LISTEN_ADDR", ":8080"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	var err error
	if cfg.RedisDB, err = envIntOr("REDIS_DB", 0); err != nil {
		return nil, err
	}

	ttlSecs, err := envIntOr("CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = time.Duration(ttlSecs) * time.Second

	probeSecs, err := envIntOr("HEALTH_PROBE_INTERVAL_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	cfg.ProbeInterval = time.Duration(probeSecs) * time.Second

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid configuration: field %q failed rule %q", verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
