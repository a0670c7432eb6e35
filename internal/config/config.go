// Package config provides configuration loading and validation.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: "prod" or "dev".
	Mode string `json:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8787"
	ListenAddr string `json:"listen_addr"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging"`

	// Store configuration (persistence driver).
	Store StoreConfig `json:"store"`

	// RateLimit configuration for the HTTP API.
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Notify selects the out-of-app notification provider.
	Notify NotifyConfig `json:"notify"`

	// Components holds free-form per-component settings tables, decoded on
	// demand with DecodeComponent.
	Components map[string]map[string]any `json:"components"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `json:"level"`

	// Format is one of: json, text.
	Format string `json:"format"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the registered store driver name. Example: "sqlite", "memory".
	Driver string `json:"driver"`

	// DataDir is where file-backed drivers keep their data.
	DataDir string `json:"data_dir"`
}

// RateLimitConfig holds API rate limiting settings.
type RateLimitConfig struct {
	// Enabled toggles rate limiting on authenticated endpoints.
	Enabled bool `json:"enabled"`

	// PerMinute is the allowed number of requests per client per minute.
	PerMinute int64 `json:"per_minute"`
}

// NotifyConfig holds notification provider settings.
type NotifyConfig struct {
	// Provider is one of: log, expo.
	Provider string `json:"provider"`
}

// DecodeComponent decodes the named [components.<name>] table into out.
// Missing tables leave out untouched; unknown keys inside a table fail the
// decode so typos surface early.
func (c *Config) DecodeComponent(name string, out any) error {
	raw, ok := c.Components[name]
	if !ok {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder for component %q: %w", name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid settings for component %q: %w", name, err)
	}
	return nil
}
