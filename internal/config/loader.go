package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/puzzle/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PUZZLE_"

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. An empty path loads the
// defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.ErrConfigError("failed to read "+path, err)
		}

		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return cfg, errors.ErrConfigError("failed to parse "+path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	cfg.Logging.Environment = cfg.Environment
	cfg.Tracing.Environment = cfg.Environment

	return cfg, cfg.Validate()
}

// Parse decodes YAML from r over the defaults without consulting the
// environment for overrides.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	if err := decode(r, &cfg); err != nil {
		return cfg, errors.ErrConfigError("failed to parse configuration", err)
	}

	cfg.Logging.Environment = cfg.Environment
	cfg.Tracing.Environment = cfg.Environment

	return cfg, cfg.Validate()
}

func decode(r io.Reader, cfg *Config) error {
	var root yaml.Node

	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if err == io.EOF {
			return nil
		}

		return err
	}

	expandNode(&root)

	return root.Decode(cfg)
}

// expandNode replaces ${VAR} references in every scalar value.
func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		n.Value = os.ExpandEnv(n.Value)

		return
	}

	for _, child := range n.Content {
		expandNode(child)
	}
}

type override struct {
	name  string
	apply func(cfg *Config, value string) error
}

var overrides = []override{
	{"ENVIRONMENT", func(c *Config, v string) error { c.Environment = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"ROUTER", func(c *Config, v string) error { c.Server.Router = v; return nil }},
	{"METRICS_ENABLED", boolOverride(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"TRACING_ENABLED", boolOverride(func(c *Config) *bool { return &c.Tracing.Enabled })},
	{"TRACING_ENDPOINT", func(c *Config, v string) error { c.Tracing.Endpoint = v; return nil }},
	{"STOREFRONT_AUTH_TOKEN", func(c *Config, v string) error { c.Storefront.AuthToken = v; return nil }},
	{"POLLING_INTERVAL", durationOverride(func(c *Config) *time.Duration { return &c.Storefront.PollingInterval })},
	{"REDIS_ADDR", func(c *Config, v string) error { c.Storefront.Redis.Addr = v; return nil }},
	{"REDIS_PASSWORD", func(c *Config, v string) error { c.Storefront.Redis.Password = v; return nil }},
	{"SHUTDOWN_TIMEOUT", durationOverride(func(c *Config) *time.Duration { return &c.ShutdownTimeout })},
}

func boolOverride(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}

		*field(c) = b

		return nil
	}
}

func durationOverride(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}

		*field(c) = d

		return nil
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, o := range overrides {
		value, ok := lookup(EnvPrefix + o.name)
		if !ok {
			continue
		}

		if err := o.apply(cfg, value); err != nil {
			return errors.ErrInvalidConfig(EnvPrefix+o.name, fmt.Errorf("%q: %w", value, err))
		}
	}

	return nil
}
