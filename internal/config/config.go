package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/resilience"
	"github.com/xraph/puzzle/internal/server"
	"github.com/xraph/puzzle/internal/storefront"
	"github.com/xraph/puzzle/internal/tracing"
)

// Config is the process configuration.
type Config struct {
	Environment     string           `yaml:"environment"`
	Logging         logger.Config    `yaml:"logging"`
	Server          ServerConfig     `yaml:"server"`
	Metrics         MetricsConfig    `yaml:"metrics"`
	Tracing         tracing.Config   `yaml:"tracing"`
	Storefront      StorefrontConfig `yaml:"storefront"`
	ShutdownTimeout time.Duration    `yaml:"shutdownTimeout"`
}

// ServerConfig applies to every gateway server.
type ServerConfig struct {
	Router       string        `yaml:"router"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// MetricsConfig configures the prometheus collector and its endpoint.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	metrics.Config `yaml:",inline"`
}

// StorefrontConfig configures gateway polling.
type StorefrontConfig struct {
	Gateways        []storefront.GatewayConfig `yaml:"gateways"`
	PollingInterval time.Duration              `yaml:"pollingInterval"`
	AuthToken       string                     `yaml:"authToken"`
	Retry           resilience.RetryConfig     `yaml:"retry"`
	Redis           RedisConfig                `yaml:"redis"`
}

// RedisConfig locates the redis instance fragment registrations are written
// to. An empty Addr keeps registrations in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Environment: "development",
		Logging: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Router:       server.BackendBunRouter,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/_/metrics",
			Config:  metrics.DefaultConfig(),
		},
		Tracing: tracing.Config{
			ServiceName: "puzzle",
		},
		Storefront: StorefrontConfig{
			PollingInterval: storefront.DefaultPollingInterval,
			Retry:           resilience.DefaultRetryConfig(),
			Redis: RedisConfig{
				Prefix: "puzzle",
			},
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := server.NewAdapter(c.Server.Router); err != nil {
		return errors.ErrInvalidConfig("server.router", err)
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.ErrInvalidConfig("server", errors.New("timeouts must not be negative"))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.ErrInvalidConfig("metrics.path", fmt.Errorf("path %q must start with /", c.Metrics.Path))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.ErrInvalidConfig("tracing.sampleRatio", errors.New("must be between 0 and 1"))
	}

	if c.Storefront.PollingInterval <= 0 {
		return errors.ErrInvalidConfig("storefront.pollingInterval", errors.New("must be positive"))
	}

	seen := make(map[string]bool, len(c.Storefront.Gateways))

	for i, gw := range c.Storefront.Gateways {
		key := fmt.Sprintf("storefront.gateways[%d]", i)

		if gw.Name == "" || gw.URL == "" {
			return errors.ErrInvalidConfig(key, errors.New("name and url are required"))
		}

		if seen[gw.Name] {
			return errors.ErrInvalidConfig(key, fmt.Errorf("duplicate gateway %q", gw.Name))
		}

		seen[gw.Name] = true
	}

	if c.ShutdownTimeout <= 0 {
		return errors.ErrInvalidConfig("shutdownTimeout", errors.New("must be positive"))
	}

	return nil
}
