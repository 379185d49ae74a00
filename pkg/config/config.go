package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nimbusedge/edgehost/pkg/log"
	"github.com/nimbusedge/edgehost/pkg/types"
)

// Config is the top-level startup configuration file shape.
type Config struct {
	Listen           string            `yaml:"listen"`
	MetricsListen    string            `yaml:"metricsListen"`
	Region           string            `yaml:"region"`
	Ports            []uint16          `yaml:"ports"`
	Registry         map[string]string `yaml:"registry"`
	RegistryBoltPath string            `yaml:"registryBoltPath"`
	LogLevel         string            `yaml:"logLevel"`
	LogJSON          bool              `yaml:"logJSON"`
}

// defaults mirrors the YAML shape in SPEC_FULL.md §6 for any field a
// config file omits.
func defaults() Config {
	return Config{
		Listen:        "0.0.0.0:8080",
		MetricsListen: "127.0.0.1:9090",
		Region:        "UNKNOWN",
		LogLevel:      string(log.InfoLevel),
	}
}

// Load reads and parses the YAML config file at path, applying defaults
// for any field left unset.
func Load(path string) (Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if cfg.Listen == "" {
		cfg.Listen = defaults().Listen
	}
	if cfg.MetricsListen == "" {
		cfg.MetricsListen = defaults().MetricsListen
	}
	if cfg.Region == "" {
		cfg.Region = defaults().Region
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults().LogLevel
	}
	return cfg, nil
}

// Locators returns the YAML-seeded registry entries as types.Locator
// values, keyed by slug.
func (c Config) Locators() map[types.Slug]types.Locator {
	out := make(map[types.Slug]types.Locator, len(c.Registry))
	for slug, locator := range c.Registry {
		out[types.Slug(slug)] = types.Locator(locator)
	}
	return out
}
