package shared

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv         string `env:"APP_ENV" envDefault:"prod"`
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9100"`
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"redis"` // redis|memory
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass      string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	CacheTTLSec    int    `env:"CACHE_TTL_SECONDS" envDefault:"900"`
	RateLimitRPS   int    `env:"RATE_LIMIT_RPS" envDefault:"50"`
	SeedFile       string `env:"SEED_FILE" envDefault:"seed/businesses.json"`
	SeedWorkers    int    `env:"SEED_WORKERS" envDefault:"8"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if c.StorageBackend != "redis" && c.StorageBackend != "memory" {
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be redis or memory, got %q", c.StorageBackend)
	}
	if c.StorageBackend == "memory" && c.AppEnv == "prod" {
		log.Warn().Msg("memory backend selected in prod; data will not survive restarts")
	}
	return c, nil
}

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }
