package cache

import (
	"errors"

	"github.com/goliatone/go-blog-cache/internal/cacheinfra"
)

// PayloadStore holds encoded query results by cache key. Implementations must
// be safe for concurrent use. A payload may disappear at any time (capacity or
// TTL eviction in the backend); callers treat that as a miss.
type PayloadStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, data []byte)
	Delete(key string)
	Keys() []string
}

// Codec turns query results into payload bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// ConfigError is returned by Config.Validate.
type ConfigError = cacheinfra.ConfigError

// NewPayloadStore builds the default sturdyc-backed payload store.
func NewPayloadStore(cfg Config) (PayloadStore, error) {
	store, err := cacheinfra.NewSturdycStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewCodec returns the default msgpack codec.
func NewCodec() Codec {
	return cacheinfra.MsgpackCodec{}
}

// IsConfigError reports whether err came from config validation.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
