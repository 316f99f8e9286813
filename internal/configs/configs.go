/*
Package configs is responsible for loading and parsing the application's configuration settings.

Both binaries read their settings from environment variables: the chat client host
(backend address, local store path, default role) and the development relay
(port, allowed origins, admin password, history bound, verify-admin rate limit).
*/
package configs

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const environmentDevelopment = "development"

// ClientConfig contains the parameters required to run the chat client host.
type ClientConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// BackendURL is the http(s) base of the chat server; the WebSocket endpoint is derived from it.
	BackendURL string `env:"BACKEND_URL" envDefault:"http://localhost:8080"`

	// StorePath is the SQLite file holding the session record and presence history.
	StorePath string `env:"CHAT_STORE_PATH" envDefault:"chatline.db"`

	// RequestTimeout bounds each HTTP round trip to the backend.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	// Role is selected when no persisted session can be restored.
	Role string `env:"CHAT_ROLE" envDefault:"receiver"`

	// AdminPassword is only used by the headless host when Role is admin.
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// IsDevelopment reports whether the client runs in the development environment.
func (c *ClientConfig) IsDevelopment() bool {
	return c.Environment == environmentDevelopment
}

// ServerConfig contains the parameters of the development relay.
type ServerConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AdminPassword  string   `env:"ADMIN_PASSWORD"`

	// HistoryLimit bounds the number of messages the relay keeps in memory.
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"500"`

	// VerifyRate and VerifyBurst configure the per-IP limiter on verify-admin.
	VerifyRate  float64 `env:"VERIFY_RATE" envDefault:"0.2"`
	VerifyBurst int     `env:"VERIFY_BURST" envDefault:"5"`
}

// IsDevelopment reports whether the relay runs in the development environment.
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == environmentDevelopment
}

// LoadClientConfig reads and validates the client configuration from the environment.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	backend, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BACKEND_URL environment variable: %w", err)
	}
	if backend.Scheme != "http" && backend.Scheme != "https" {
		return nil, fmt.Errorf("BACKEND_URL must use http or https, got %q", backend.Scheme)
	}
	if backend.Host == "" {
		return nil, fmt.Errorf("BACKEND_URL must include a host")
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	if strings.TrimSpace(cfg.StorePath) == "" {
		return nil, fmt.Errorf("CHAT_STORE_PATH environment variable must not be empty")
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}

	if cfg.Role != "admin" && cfg.Role != "receiver" {
		return nil, fmt.Errorf("CHAT_ROLE must be admin or receiver, got %q", cfg.Role)
	}

	return cfg, nil
}

// LoadServerConfig reads and validates the development relay configuration from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins

	if cfg.AdminPassword == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("ADMIN_PASSWORD environment variable is required in %s environment", cfg.Environment)
		}
		cfg.AdminPassword = "admin123"
	}

	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit)
	}

	if cfg.VerifyRate <= 0 || cfg.VerifyBurst <= 0 {
		return nil, fmt.Errorf("VERIFY_RATE and VERIFY_BURST must be positive")
	}

	return cfg, nil
}
