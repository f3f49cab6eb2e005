package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the storage settings for the sturdyc payload store.
type Config struct {
	// Capacity is the maximum number of payloads held across all shards.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards. Must be greater than 0.
	NumShards int

	// TTL is the hard ceiling on how long sturdyc keeps a payload. Freshness and
	// retention of query results are decided above this layer, so TTL should be
	// well above both.
	TTL time.Duration

	// EvictionPercentage is the share of a full shard that sturdyc evicts to make
	// room. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc scans for expired payloads.
	// Zero keeps the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns the storage defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
	}
}

func (c Config) sturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate reports the first invalid field as a *ConfigError.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.NumShards > c.Capacity {
		return &ConfigError{Field: "NumShards", Message: "must not exceed Capacity"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// SturdycStore keeps encoded query payloads in a sturdyc client.
// It is safe for concurrent use.
type SturdycStore struct {
	client *sturdyc.Client[[]byte]
}

// NewSturdycStore validates cfg and builds the sturdyc client.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly,
// everything else is mapped to options.
func NewSturdycStore(cfg Config) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.sturdycOptions()...,
	)

	return &SturdycStore{client: client}, nil
}

// Get returns the payload stored under key.
func (s *SturdycStore) Get(key string) ([]byte, bool) {
	return s.client.Get(key)
}

// Set stores data under key, replacing any previous payload.
func (s *SturdycStore) Set(key string, data []byte) {
	s.client.Set(key, data)
}

// Delete drops the payload for key.
func (s *SturdycStore) Delete(key string) {
	s.client.Delete(key)
}

// Keys lists every key sturdyc currently holds.
func (s *SturdycStore) Keys() []string {
	return s.client.ScanKeys()
}
