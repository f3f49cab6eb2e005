package di

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goliatone/go-blog-cache/cache"
	"github.com/goliatone/go-blog-cache/transport"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file of a blog client:
//
//	cache:
//	  max_age: 1m
//	  keep_unused_for: 50s
//	backend:
//	  base_url: http://localhost:3004
//	  token_env: BLOG_TOKEN
//	log:
//	  level: debug
//	  format: json
type Config struct {
	Cache   cache.Config     `yaml:"cache"`
	Backend transport.Config `yaml:"backend"`
	Log     LogConfig        `yaml:"log"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error. Default: info.
	Level string `yaml:"level"`

	// Format is one of: text | json. Default: text.
	Format string `yaml:"format"`
}

// DefaultConfig returns the defaults every loaded file is layered on.
func DefaultConfig() Config {
	return Config{
		Cache:   cache.DefaultConfig(),
		Backend: transport.DefaultConfig(),
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the YAML file at path. Missing fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log: unknown level %q", level)
	}
}

// NewLogger builds the logger described by cfg, writing to w. An invalid
// level falls back to info.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
