package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models agoragate.yml. It is constructed once at startup and passed
// by reference to every component.
type Config struct {
	Server struct {
		Addr         string `yaml:"addr"`
		BasePath     string `yaml:"base_path"`
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
	} `yaml:"server"`
	Store struct {
		Workspace string        `yaml:"workspace"`
		WriteWait time.Duration `yaml:"write_wait"`
	} `yaml:"store"`
	Auth struct {
		// Secret enables HS256 bearer auth for the calling services when
		// non-empty. Agent-level JWS/Ed25519 verification belongs to the
		// Identity service, not the gateway.
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
}

// Default returns the default Config for a workspace.
func Default(workspace string) *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = ""
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Store.Workspace = workspace
	cfg.Store.WriteWait = 5 * time.Second
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("config.server.max_body_bytes must be positive")
	}
	if c.Store.WriteWait <= 0 {
		return fmt.Errorf("config.store.write_wait must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "agoragate.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(workspace), nil
		}
		return nil, err
	}
	return FromYAML(workspace, data)
}

// FromYAML parses and validates config from raw YAML bytes, filling
// unset fields from defaults.
func FromYAML(workspace string, data []byte) (*Config, error) {
	cfg := Default(workspace)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Store.Workspace == "" {
		cfg.Store.Workspace = workspace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
