// Package config loads and validates the relay's configuration from a
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sangrene/flexible-data-relay/errors"
)

// Storage mode constants.
const (
	StorageModeMemory = "memory" // in-memory stores, dev and tests
	StorageModeNATS   = "nats"   // JetStream KV stores
)

// Cache strategy constants.
const (
	CacheStrategyLocal = "local" // in-process bus subscription
	CacheStrategyFeed  = "feed"  // storage change feed, multi-process
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	NATS    NATSConfig    `yaml:"nats"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Fanout  FanoutConfig  `yaml:"fanout"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr             string `yaml:"addr"`
	EnablePlayground bool   `yaml:"enable_playground"`
}

// NATSConfig configures the broker connection.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	SigningSecret string `yaml:"signing_secret"`
	AdminSecret   string `yaml:"admin_secret"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Mode string `yaml:"mode"`
}

// CacheConfig selects the schema cache synchronization strategy.
type CacheConfig struct {
	Strategy string `yaml:"strategy"`
}

// FanoutConfig tunes subscription delivery.
type FanoutConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080", EnablePlayground: true},
		NATS:    NATSConfig{URL: "nats://localhost:4222"},
		Storage: StorageConfig{Mode: StorageModeNATS},
		Cache:   CacheConfig{Strategy: CacheStrategyFeed},
		Fanout: FanoutConfig{
			Workers:         8,
			QueueSize:       256,
			DeliveryTimeout: 10 * time.Second,
		},
	}
}

// Load reads the YAML file, applies environment overrides, and validates.
// An empty path loads defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays FDR_* environment variables onto the config.
func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "FDR_SERVER_ADDR")
	setBool(&c.Server.EnablePlayground, "FDR_ENABLE_PLAYGROUND")
	setString(&c.NATS.URL, "FDR_NATS_URL")
	setString(&c.Auth.SigningSecret, "FDR_SIGNING_SECRET")
	setString(&c.Auth.AdminSecret, "FDR_ADMIN_SECRET")
	setString(&c.Storage.Mode, "FDR_STORAGE_MODE")
	setString(&c.Cache.Strategy, "FDR_CACHE_STRATEGY")
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}
	if c.Auth.SigningSecret == "" {
		return invalid("auth.signing_secret is required")
	}

	switch c.Storage.Mode {
	case StorageModeMemory, StorageModeNATS:
	default:
		return invalid(fmt.Sprintf("storage.mode must be %q or %q", StorageModeMemory, StorageModeNATS))
	}

	switch c.Cache.Strategy {
	case CacheStrategyLocal, CacheStrategyFeed:
	default:
		return invalid(fmt.Sprintf("cache.strategy must be %q or %q", CacheStrategyLocal, CacheStrategyFeed))
	}

	if c.Cache.Strategy == CacheStrategyFeed && c.Storage.Mode == StorageModeMemory {
		return invalid("cache.strategy=feed requires storage.mode=nats")
	}
	if c.Storage.Mode == StorageModeNATS && c.NATS.URL == "" {
		return invalid("nats.url is required with storage.mode=nats")
	}

	if c.Fanout.Workers <= 0 {
		return invalid("fanout.workers must be positive")
	}
	if c.Fanout.DeliveryTimeout <= 0 {
		return invalid("fanout.delivery_timeout must be positive")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", msg)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}
