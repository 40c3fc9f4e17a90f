package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultControllerName  = "Controller"
	DefaultReconnectDelay  = 3 * time.Second
	DefaultLivenessTimeout = 3 * DefaultHeartbeatInterval
)

// ControllerConfig is the operator console's settings file.
type ControllerConfig struct {
	ServerURL       string        `yaml:"server_url"`
	Token           string        `yaml:"token"`
	EffectsFolder   string        `yaml:"effects_folder"`
	OSCServer       string        `yaml:"osc_server"`
	Name            string        `yaml:"name"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
	LivenessTimeout time.Duration `yaml:"liveness_timeout"`
	Log             LogConfig     `yaml:"log"`
}

func defaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		ServerURL:       "ws://127.0.0.1:8765",
		EffectsFolder:   "effects",
		Name:            DefaultControllerName,
		ReconnectDelay:  DefaultReconnectDelay,
		LivenessTimeout: DefaultLivenessTimeout,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   "meffec_controller.log",
		},
	}
}

// LoadController reads the settings file at path over the defaults. A
// missing file yields the defaults.
func LoadController(path string) (*ControllerConfig, error) {
	cfg := defaultControllerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ControllerConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive, got %v", c.ReconnectDelay)
	}
	return nil
}
