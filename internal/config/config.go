// Package config loads the relay configuration from defaults, an optional
// JSON or YAML file, and environment overrides, in that order.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime settings for the relay process.
type Config struct {
	Host            string   `json:"host"             env:"RELAY_HOST"`
	Port            int      `json:"port"             env:"RELAY_PORT"`
	AllowedOrigins  []string `json:"allowed_origins"  env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize  int64    `json:"max_message_size" env:"RELAY_MAX_MESSAGE_SIZE"`
	HistoryLimit    int      `json:"history_limit"    env:"RELAY_HISTORY_LIMIT"`
	StorePath       string   `json:"store_path"       env:"RELAY_STORE_PATH"`
	LogLevel        string   `json:"log_level"        env:"RELAY_LOG_LEVEL"`
	ShutdownTimeout string   `json:"shutdown_timeout" env:"RELAY_SHUTDOWN_TIMEOUT"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		AllowedOrigins:  []string{"http://localhost:8080"},
		MaxMessageSize:  512,
		HistoryLimit:    0,
		StorePath:       "messages.db",
		LogLevel:        "info",
		ShutdownTimeout: "10s",
	}
}

// Load builds the effective configuration. path may be empty, in which case
// only defaults and environment variables apply. Unknown keys in the file are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		jsonBytes, format, err := coerceToJSONBytes(path, data)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s config: %w", format, err)
		}
		dec := json.NewDecoder(bytes.NewReader(jsonBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s config %s: %w", format, path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be >= 0, got %d", c.HistoryLimit)
	}
	if _, err := c.ShutdownGrace(); err != nil {
		return err
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ShutdownGrace parses the configured shutdown timeout.
func (c Config) ShutdownGrace() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("shutdown_timeout: invalid duration %q: %w", c.ShutdownTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("shutdown_timeout must be > 0, got %q", c.ShutdownTimeout)
	}
	return d, nil
}
