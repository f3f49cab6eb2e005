package cache

import (
	"time"

	"github.com/goliatone/go-blog-cache/internal/cacheinfra"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	// MaxAge is how long a fetched result is served without going to the
	// network. Zero means every read refetches.
	MaxAge time.Duration `yaml:"max_age"`

	// KeepUnusedFor is how long an entry with no subscribers survives before
	// the sweeper evicts it.
	KeepUnusedFor time.Duration `yaml:"keep_unused_for"`

	// SweepInterval is the tick of the eviction sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
}

// Default freshness and retention values.
const (
	DefaultMaxAge        = time.Minute
	DefaultKeepUnusedFor = 50 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.MaxAge = DefaultMaxAge
	cfg.KeepUnusedFor = DefaultKeepUnusedFor
	cfg.SweepInterval = DefaultSweepInterval
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.MaxAge < 0 {
		return &ConfigError{Field: "MaxAge", Message: "must be non-negative"}
	}
	if c.KeepUnusedFor < 0 {
		return &ConfigError{Field: "KeepUnusedFor", Message: "must be non-negative"}
	}
	if c.SweepInterval <= 0 {
		return &ConfigError{Field: "SweepInterval", Message: "must be greater than 0"}
	}
	return c.toInternal().Validate()
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
