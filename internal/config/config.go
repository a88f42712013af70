package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. PEOPLEFLOW_AUTH_SECRET is read
// separately by the auth package so token helpers stay usable without a full
// config load.
type Config struct {
	Addr         string        `env:"PEOPLEFLOW_ADDR" envDefault:":8080"`
	PostgresDSN  string        `env:"PEOPLEFLOW_PG_DSN"`
	RedisAddr    string        `env:"PEOPLEFLOW_REDIS_ADDR"`
	PermCacheTTL time.Duration `env:"PEOPLEFLOW_PERM_CACHE_TTL" envDefault:"5m"`
	SessionTTL   time.Duration `env:"PEOPLEFLOW_SESSION_TTL" envDefault:"12h"`
	TokenTTL     time.Duration `env:"PEOPLEFLOW_TOKEN_TTL" envDefault:"1h"`
	RatePerSec   float64       `env:"PEOPLEFLOW_RATE_PER_SEC" envDefault:"50"`
	RateBurst    int           `env:"PEOPLEFLOW_RATE_BURST" envDefault:"100"`
	MaxBodyBytes int64         `env:"PEOPLEFLOW_MAX_BODY_BYTES" envDefault:"1048576"` // 1MB
	CORSOrigin   string        `env:"PEOPLEFLOW_CORS_ORIGIN" envDefault:"*"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
