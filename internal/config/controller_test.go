package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadControllerMissingFile(t *testing.T) {
	cfg, err := LoadController(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadController() error: %v", err)
	}
	if cfg.Name != DefaultControllerName {
		t.Errorf("Name = %q, want %q", cfg.Name, DefaultControllerName)
	}
	if cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", cfg.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.LivenessTimeout != 15*time.Second {
		t.Errorf("LivenessTimeout = %v, want 15s", cfg.LivenessTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadController(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meffec-controller.yaml")
	yaml := `
server_url: ws://stage.local:8765
token: s3cret
effects_folder: /srv/effects
osc_server: 10.0.0.5:9000
reconnect_delay: 1s
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadController(path)
	if err != nil {
		t.Fatalf("LoadController() error: %v", err)
	}
	if cfg.ServerURL != "ws://stage.local:8765" || cfg.Token != "s3cret" {
		t.Errorf("got url %q token %q", cfg.ServerURL, cfg.Token)
	}
	if cfg.EffectsFolder != "/srv/effects" || cfg.OSCServer != "10.0.0.5:9000" {
		t.Errorf("got folder %q osc %q", cfg.EffectsFolder, cfg.OSCServer)
	}
	if cfg.ReconnectDelay != time.Second {
		t.Errorf("ReconnectDelay = %v, want 1s", cfg.ReconnectDelay)
	}
	// Unset keys keep their defaults.
	if cfg.Name != DefaultControllerName {
		t.Errorf("Name = %q, want %q", cfg.Name, DefaultControllerName)
	}
	if cfg.LivenessTimeout != DefaultLivenessTimeout {
		t.Errorf("LivenessTimeout = %v, want %v", cfg.LivenessTimeout, DefaultLivenessTimeout)
	}
}

func TestLoadControllerBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server_url: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadController(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestControllerValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ControllerConfig)
	}{
		{"no server url", func(c *ControllerConfig) { c.ServerURL = "" }},
		{"no name", func(c *ControllerConfig) { c.Name = "" }},
		{"zero reconnect delay", func(c *ControllerConfig) { c.ReconnectDelay = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultControllerConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
