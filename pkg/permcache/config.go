package permcache

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	CacheKey string        `env:"AUTHZ_CACHE_KEY" envDefault:"authzkit.permissions"` // CacheKey is the backing-store key the serialized permission entry is stored under.
	TTL      time.Duration `env:"AUTHZ_CACHE_TTL" envDefault:"24h"`                  // TTL is the cache expiration time. It should be in the format "24h" for 24 hours.
}

// ErrParsingConfig is returned when environment variables cannot be parsed
// into the Config struct.
var ErrParsingConfig = errors.New("permcache.parsing_config")

// LoadConfig reads Config from the environment, loading a .env file first if
// one exists.
func LoadConfig() (Config, error) {
	// The .env file is optional; a missing one is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// NewRegistrarFromConfig creates a Registrar configured from the environment.
// Additional options are applied after the config and may override it.
func NewRegistrarFromConfig(cfg Config, store Store, source Source, opts ...Option) *Registrar {
	base := []Option{WithCacheKey(cfg.CacheKey), WithTTL(cfg.TTL)}
	return NewRegistrar(store, source, append(base, opts...)...)
}
