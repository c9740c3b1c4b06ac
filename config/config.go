/*
config.go - application configuration

PURPOSE:
  Loads gateway configuration from a YAML file with an environment
  variable overlay. Environment variables use the APP__ prefix with
  double underscores as the hierarchy separator, so
  APP__SERVER__PORT=9090 overrides server.port.

SEE ALSO:
  - logger.go: logger construction from LogConfig
  - cmd/server/main.go: consumer
*/
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds gateway HTTP server settings.
type ServerConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// UpstreamConfig selects the welfare API the gateway talks to. When
// Simulate is true the process runs the embedded simulator instead of
// forwarding to BaseURL, and SQLitePath selects its database file
// (":memory:" keeps it ephemeral).
type UpstreamConfig struct {
	BaseURL    string `koanf:"base_url"`
	Simulate   bool   `koanf:"simulate"`
	SQLitePath string `koanf:"sqlite_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Color    *bool  `koanf:"color"`
	FilePath string `koanf:"file_path"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Upstream: UpstreamConfig{
			Simulate:   true,
			SQLitePath: ":memory:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from an optional YAML file and overlays
// environment variables. An empty configPath skips the file and uses
// the built-in defaults plus the environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// APP__SERVER__PORT -> server.port
	// APP__UPSTREAM__BASE_URL -> upstream.base_url
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and supported values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}
	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	if !c.Upstream.Simulate {
		base := strings.TrimSpace(c.Upstream.BaseURL)
		if base == "" {
			return fmt.Errorf("upstream.base_url is required when upstream.simulate is false")
		}
		c.Upstream.BaseURL = base
	}
	if c.Upstream.Simulate && strings.TrimSpace(c.Upstream.SQLitePath) == "" {
		c.Upstream.SQLitePath = ":memory:"
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
