// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/omnivault/omnivault/internal/tracker"
)

// Network selects which deployment the wallet talks to.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// Config contains all configuration parameters for the application.
// Values come from OMNIVAULT_-prefixed environment variables.
type Config struct {
	Network          Network       `envconfig:"NETWORK" default:"mainnet"`
	ListenAddr       string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8791"`
	DBPath           string        `envconfig:"DB_PATH" default:"omnivault.db"`
	LegacyPhrasePath string        `envconfig:"LEGACY_PHRASE_PATH"` // empty = no pre-migration storage
	GatewayAddress   string        `envconfig:"GATEWAY_ADDRESS" default:"0x6c533f7fe93fae114d0954697069df33c9b74fd7"`
	IndexerBaseURL   string        `envconfig:"INDEXER_BASE_URL"` // empty = derived from network
	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	TrackTimeout     time.Duration `envconfig:"TRACK_TIMEOUT" default:"300s"`
	CeremonyTimeout  time.Duration `envconfig:"CEREMONY_TIMEOUT" default:"60s"`
	UnlockTimeout    time.Duration `envconfig:"UNLOCK_TIMEOUT" default:"5m"`
}

// Load reads configuration from the environment. Callers pass the result
// down explicitly; there is no package-level instance.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("omnivault", cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Network {
	case NetworkMainnet, NetworkTestnet:
	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.TrackTimeout <= 0 {
		return fmt.Errorf("track timeout must be positive, got %s", c.TrackTimeout)
	}
	return nil
}

// IndexerURL is the explicit override when set, otherwise the default base
// URL for the configured network.
func (c *Config) IndexerURL() string {
	if c.IndexerBaseURL != "" {
		return c.IndexerBaseURL
	}
	if c.Network == NetworkTestnet {
		return tracker.StagingIndexerURL
	}
	return tracker.ProductionIndexerURL
}
