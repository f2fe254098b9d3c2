// Package config loads client configuration from a YAML file with
// environment-variable overrides. A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pointcasthq/pointcast/go/roomclient"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "300ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BackoffConfig tunes the reconnect policy.
type BackoffConfig struct {
	InitialInterval     Duration `yaml:"initial_interval"`
	MaxInterval         Duration `yaml:"max_interval"`
	Multiplier          float64  `yaml:"multiplier"`
	RandomizationFactor float64  `yaml:"randomization_factor"`
	MaxAttempts         int      `yaml:"max_attempts"`
}

// Config is the file-backed configuration for a room client.
type Config struct {
	ServerURL      string        `yaml:"server_url"`
	RoomKey        string        `yaml:"room_key"`
	DisplayName    string        `yaml:"display_name"`
	DebounceWindow Duration      `yaml:"debounce_window"`
	PingInterval   Duration      `yaml:"ping_interval"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	base := roomclient.DefaultConfig("", "", "")
	return Config{
		DebounceWindow: Duration(base.DebounceWindow),
		PingInterval:   Duration(base.PingInterval),
		Backoff: BackoffConfig{
			InitialInterval:     Duration(base.BackoffInitial),
			MaxInterval:         Duration(base.BackoffMax),
			Multiplier:          base.BackoffMultiplier,
			RandomizationFactor: base.BackoffJitter,
			MaxAttempts:         base.MaxReconnectAttempts,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), then
// applies POINTCAST_* environment overrides. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.ServerURL = getEnv("POINTCAST_SERVER_URL", config.ServerURL)
	config.RoomKey = getEnv("POINTCAST_ROOM_KEY", config.RoomKey)
	config.DisplayName = getEnv("POINTCAST_DISPLAY_NAME", config.DisplayName)
	config.DebounceWindow = getEnvAsDuration("POINTCAST_DEBOUNCE_WINDOW", config.DebounceWindow)
	config.PingInterval = getEnvAsDuration("POINTCAST_PING_INTERVAL", config.PingInterval)
	config.Backoff.MaxAttempts = getEnvAsInt("POINTCAST_MAX_RECONNECT_ATTEMPTS", config.Backoff.MaxAttempts)

	return &config, nil
}

// ClientConfig converts the file-backed configuration into a runtime
// client configuration.
func (c *Config) ClientConfig() roomclient.Config {
	cfg := roomclient.DefaultConfig(c.ServerURL, c.RoomKey, c.DisplayName)
	if c.DebounceWindow > 0 {
		cfg.DebounceWindow = c.DebounceWindow.Std()
	}
	if c.PingInterval > 0 {
		cfg.PingInterval = c.PingInterval.Std()
	}
	if c.Backoff.InitialInterval > 0 {
		cfg.BackoffInitial = c.Backoff.InitialInterval.Std()
	}
	if c.Backoff.MaxInterval > 0 {
		cfg.BackoffMax = c.Backoff.MaxInterval.Std()
	}
	if c.Backoff.Multiplier > 0 {
		cfg.BackoffMultiplier = c.Backoff.Multiplier
	}
	if c.Backoff.RandomizationFactor > 0 {
		cfg.BackoffJitter = c.Backoff.RandomizationFactor
	}
	if c.Backoff.MaxAttempts > 0 {
		cfg.MaxReconnectAttempts = c.Backoff.MaxAttempts
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration(d)
		}
	}
	return defaultValue
}
