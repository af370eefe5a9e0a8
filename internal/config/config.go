// Package config defines the YAML configuration schema for the RTMP server.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the complete server configuration.
// All fields must have explicit defaults or be required.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Queue  QueueConfig  `yaml:"queue"`
}

// ServerConfig defines listening ports for the RTMP, websocket egress, and health services.
type ServerConfig struct {
	RTMPPort   int `yaml:"rtmp_port"`   // Port for RTMP ingest/play
	WSPort     int `yaml:"ws_port"`     // Port for websocket-FLV egress
	HealthPort int `yaml:"health_port"` // Port for /healthz and /stats
}

// QueueConfig controls player-queue sizing and overflow behavior.
type QueueConfig struct {
	Capacity     uint32 `yaml:"capacity"`     // Rounded up to a power of two
	Backpressure string `yaml:"backpressure"` // "drop-oldest" or "drop-newest"
}

// Load reads configuration from a YAML file, applies defaults, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject unknown fields

	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults applies explicit default values to unset fields.
func (c *Config) setDefaults() {
	if c.Server.RTMPPort == 0 {
		c.Server.RTMPPort = 1935
	}
	if c.Server.WSPort == 0 {
		c.Server.WSPort = 8081
	}
	if c.Server.HealthPort == 0 {
		c.Server.HealthPort = 8080
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 1024
	}
	if c.Queue.Backpressure == "" {
		c.Queue.Backpressure = "drop-oldest"
	}
}
