// Package config loads the bridge server configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the hydra bridge configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Frame  FrameConfig  `yaml:"frame"`
}

// ServerConfig configures the relay server.
type ServerConfig struct {
	Host        string `yaml:"host" env:"HYDRA_HOST"`
	Port        int    `yaml:"port" env:"HYDRA_PORT"`
	AdminOrigin string `yaml:"admin_origin" env:"HYDRA_ADMIN_ORIGIN"`
	FrameOrigin string `yaml:"frame_origin" env:"HYDRA_FRAME_ORIGIN"`
	Debug       bool   `yaml:"debug" env:"HYDRA_DEBUG"`
	// WatchDir, when set, is watched for changes; the frame gets a RELOAD
	// on every write.
	WatchDir string `yaml:"watch_dir" env:"HYDRA_WATCH_DIR"`
	// RateLimit caps inbound messages per connection, in messages per
	// second.
	RateLimit float64 `yaml:"rate_limit" env:"HYDRA_RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"HYDRA_RATE_BURST"`
}

// AuthConfig configures token issuance for the frame.
type AuthConfig struct {
	Secret   string `yaml:"secret" env:"HYDRA_TOKEN_SECRET"`
	TokenTTL string `yaml:"token_ttl" env:"HYDRA_TOKEN_TTL"`
}

// FrameConfig describes the content frame the admin embeds.
type FrameConfig struct {
	// Viewport is the layout width used by the frame's geometry engine.
	Viewport float64 `yaml:"viewport" env:"HYDRA_VIEWPORT"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetRateLimit returns the per-connection rate limit (default: 200/s).
func (c ServerConfig) GetRateLimit() float64 {
	if c.RateLimit <= 0 {
		return 200
	}
	return c.RateLimit
}

// GetRateBurst returns the rate limiter burst (default: 50).
func (c ServerConfig) GetRateBurst() int {
	if c.RateBurst <= 0 {
		return 50
	}
	return c.RateBurst
}

// GetTokenTTL returns the parsed token lifetime (default: 1h).
func (c AuthConfig) GetTokenTTL() time.Duration {
	if c.TokenTTL == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetViewport returns the frame viewport width (default: 1280).
func (c FrameConfig) GetViewport() float64 {
	if c.Viewport <= 0 {
		return 1280
	}
	return c.Viewport
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8080,
			AdminOrigin: "http://localhost:3001",
			FrameOrigin: "http://localhost:3000",
		},
		Frame: FrameConfig{
			Viewport: 1280,
		},
	}
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults, still overridable from
// the environment.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	return cfg, nil
}

// LoadFromDir looks for hydra.yaml in the given directory.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, "hydra.yaml"))
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
