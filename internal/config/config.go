// Package config provides configuration management for p2pd.
//
// Config file locations (priority order):
//  1. $P2PD_CONFIG
//  2. ./p2pd.yaml
//  3. ~/.config/p2pd/config.yaml
//  4. /etc/p2pd/config.yaml
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"wifip2p/p2p"
)

// Config is the root configuration structure.
type Config struct {
	Version int `yaml:"version"`
	// Interface is the wireless interface wpa_supplicant manages
	// (e.g. "wlan0"). Required for the daemon.
	Interface string         `yaml:"interface"`
	Listen    string         `yaml:"listen"`
	Database  DatabaseConfig `yaml:"database"`
	Actor     ActorConfig    `yaml:"actor"`
}

// DatabaseConfig holds peer inventory settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ActorConfig tunes the command/event actor.
type ActorConfig struct {
	// QueueCapacity bounds the pending command queue.
	QueueCapacity int `yaml:"queue_capacity"`
	// SubscriberBuffer bounds each event subscriber's unread backlog.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path.
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation.
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Listen:   ":8373",
		Database: DatabaseConfig{Path: "./p2pd.db"},
		Actor: ActorConfig{
			QueueCapacity:    p2p.DefaultQueueCapacity,
			SubscriberBuffer: p2p.DefaultSubscriberBuffer,
		},
	}
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Listen == "" {
		c.Listen = ":8373"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./p2pd.db"
	}
	if c.Actor.QueueCapacity == 0 {
		c.Actor.QueueCapacity = p2p.DefaultQueueCapacity
	}
	if c.Actor.SubscriberBuffer == 0 {
		c.Actor.SubscriberBuffer = p2p.DefaultSubscriberBuffer
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface is required (the wireless interface wpa_supplicant manages)")
	}
	if c.Actor.QueueCapacity < 1 {
		return fmt.Errorf("actor.queue_capacity must be positive, got %d", c.Actor.QueueCapacity)
	}
	if c.Actor.SubscriberBuffer < 1 {
		return fmt.Errorf("actor.subscriber_buffer must be positive, got %d", c.Actor.SubscriberBuffer)
	}
	return nil
}
