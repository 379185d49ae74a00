package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nimbusedge/edgehost/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edgehost.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `ports: [8081, 8082]
registry:
  hello: "file:///hello.js"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != "0.0.0.0:8080" {
		t.Fatalf("Listen = %q, want default", cfg.Listen)
	}
	if cfg.MetricsListen != "127.0.0.1:9090" {
		t.Fatalf("MetricsListen = %q, want default", cfg.MetricsListen)
	}
	if cfg.Region != "UNKNOWN" {
		t.Fatalf("Region = %q, want default", cfg.Region)
	}
	if len(cfg.Ports) != 2 {
		t.Fatalf("Ports = %v, want 2 entries", cfg.Ports)
	}
}

func TestLoadHonorsExplicitFields(t *testing.T) {
	path := writeConfig(t, `listen: "0.0.0.0:9999"
region: "lhr"
logLevel: debug
logJSON: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != "0.0.0.0:9999" || cfg.Region != "lhr" || cfg.LogLevel != "debug" || !cfg.LogJSON {
		t.Fatalf("Load() = %+v, want explicit fields honored", cfg)
	}
}

func TestLocators(t *testing.T) {
	path := writeConfig(t, `registry:
  hello: "file:///hello.js"
  world: "file:///world.js"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	locators := cfg.Locators()
	if locators[types.Slug("hello")] != "file:///hello.js" {
		t.Fatalf("Locators()[hello] = %q, want file:///hello.js", locators[types.Slug("hello")])
	}
	if len(locators) != 2 {
		t.Fatalf("Locators() len = %d, want 2", len(locators))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() of a missing file = nil error, want one")
	}
}
