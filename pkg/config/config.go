package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from an optional YAML file
// with every field defaulted. Durations are expressed in seconds in the
// file to keep it shell-friendly.
type Config struct {
	// ListenAddr is the API bind address.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir holds the bolt database and runtime scratch space. Empty
	// selects the in-memory store.
	DataDir string `yaml:"data_dir"`

	// Runtime selects the container runtime driver: "containerd", "docker",
	// or "sim".
	Runtime string `yaml:"runtime"`

	// ContainerdSocket is the containerd socket path.
	ContainerdSocket string `yaml:"containerd_socket"`

	// EnvironmentImage is the image backing each node environment.
	EnvironmentImage string `yaml:"environment_image"`

	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	RuntimeTimeoutSeconds    int `yaml:"runtime_timeout_seconds"`
	DrainTimeoutSeconds      int `yaml:"drain_timeout_seconds"`

	// MissedHeartbeatThreshold is the number of consecutive missed health
	// probes before a node is marked failed.
	MissedHeartbeatThreshold int `yaml:"missed_heartbeat_threshold"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:               ":8080",
		Runtime:                  "containerd",
		ContainerdSocket:         "/run/containerd/containerd.sock",
		EnvironmentImage:         "docker.io/library/busybox:latest",
		ReconcileIntervalSeconds: 5,
		HeartbeatIntervalSeconds: 10,
		RuntimeTimeoutSeconds:    30,
		DrainTimeoutSeconds:      10,
		MissedHeartbeatThreshold: 3,
		Log:                      LogConfig{Level: "info", JSON: false},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	switch c.Runtime {
	case "containerd", "docker", "sim":
	default:
		return fmt.Errorf("unknown runtime %q (want containerd, docker, or sim)", c.Runtime)
	}
	if c.ReconcileIntervalSeconds <= 0 {
		return fmt.Errorf("reconcile_interval_seconds must be positive")
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat_interval_seconds must be positive")
	}
	if c.RuntimeTimeoutSeconds <= 0 {
		return fmt.Errorf("runtime_timeout_seconds must be positive")
	}
	if c.MissedHeartbeatThreshold <= 0 {
		return fmt.Errorf("missed_heartbeat_threshold must be positive")
	}
	return nil
}

// ReconcileInterval returns the reconcile period as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the health probe period as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// RuntimeTimeout returns the runtime call bound as a duration.
func (c *Config) RuntimeTimeout() time.Duration {
	return time.Duration(c.RuntimeTimeoutSeconds) * time.Second
}

// DrainTimeout returns the graceful-stop window as a duration.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSeconds) * time.Second
}
