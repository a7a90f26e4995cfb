package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	StorageBackend string `env:"STORAGE_BACKEND" default:"badger"`
	RedisURL       string `env:"REDIS_URL"`
	BadgerPath     string `env:"BADGER_PATH" default:"data/tag"`

	// Origins accepted for WebSocket upgrades besides APP_URL, comma separated.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`

	ResetRequestsPerSecond float64 `env:"RESET_REQUESTS_PER_SECOND" default:"1"`
	ResetRequestsBurst     int     `env:"RESET_REQUESTS_BURST" default:"5"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.StorageBackend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORAGE_BACKEND=redis")
		}
	case BackendBadger:
		if cfg.BadgerPath == "" {
			return errors.New("BADGER_PATH is required when STORAGE_BACKEND=badger")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendBadger, BackendRedis, cfg.StorageBackend)
	}

	appURL, err := url.Parse(cfg.AppURL)
	if err != nil || appURL.Scheme == "" || appURL.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL, got %q", cfg.AppURL)
	}

	if cfg.MaxWebSocketConnections <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}
	if cfg.ResetRequestsPerSecond <= 0 {
		return errors.New("RESET_REQUESTS_PER_SECOND must be positive")
	}
	if cfg.ResetRequestsBurst < 1 {
		return errors.New("RESET_REQUESTS_BURST must be at least 1")
	}

	origins := cfg.AllowedOrigins[:0]
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.AllowedOrigins = origins

	return nil
}
