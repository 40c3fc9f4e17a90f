package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrMissingToken = errors.New("WEBSOCKET_TOKEN is not set")

// Environment variables read by the relay server.
const (
	EnvPort     = "PORT"
	EnvToken    = "WEBSOCKET_TOKEN"
	EnvLogLevel = "MEFFEC_LOG_LEVEL"
)

const (
	DefaultPort              = 8765
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultSendBuffer        = 64
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	// WriteWait bounds each outbound write. Zero means the heartbeat
	// interval, so a stuck peer fails within one beat.
	WriteWait time.Duration `yaml:"write_wait"`
	// Timeout is how long a peer may stay silent, pongs included, before it
	// is dropped. Zero means one and a half intervals.
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	SendBuffer int `yaml:"send_buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Host: "0.0.0.0",
		},
		Heartbeat: HeartbeatConfig{
			Interval: DefaultHeartbeatInterval,
		},
		Session: SessionConfig{
			SendBuffer: DefaultSendBuffer,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides file values with the relay's environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Server.Token = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports configuration the relay must not start with.
func (c *Config) Validate() error {
	if c.Server.Token == "" {
		return ErrMissingToken
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", c.Heartbeat.Interval)
	}
	return nil
}

// WriteWait is the effective per-write deadline.
func (c *Config) WriteWait() time.Duration {
	if c.Heartbeat.WriteWait > 0 {
		return c.Heartbeat.WriteWait
	}
	return c.Heartbeat.Interval
}

// LivenessTimeout is the effective read deadline for relay peers. Each beat
// pings every peer, so a live one is never silent for more than an interval.
func (c *Config) LivenessTimeout() time.Duration {
	if c.Heartbeat.Timeout > 0 {
		return c.Heartbeat.Timeout
	}
	return c.Heartbeat.Interval + c.Heartbeat.Interval/2
}

// Addr is the host:port the relay listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
