package transport

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// DefaultBaseURL is where the posts backend listens in development.
const DefaultBaseURL = "http://localhost:3004"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 10 * time.Second

// Config configures the backend client.
type Config struct {
	BaseURL string `yaml:"base_url"`

	// Token is sent as "Authorization: Bearer <token>". TokenEnv names an
	// environment variable read when Token is empty.
	Token    string `yaml:"token"`
	TokenEnv string `yaml:"token_env"`

	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// Validate checks the base URL and timeout.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("transport: base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("transport: invalid base_url %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("transport: base_url %q must be http or https", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("transport: timeout must be non-negative")
	}
	return nil
}

func (c Config) token() string {
	if c.Token != "" {
		return c.Token
	}
	if c.TokenEnv != "" {
		return os.Getenv(c.TokenEnv)
	}
	return ""
}
