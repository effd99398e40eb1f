package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the netcfg runtime configuration.
type Config struct {
	Inventory struct {
		HostsFile    string `yaml:"hosts_file"`
		GroupsFile   string `yaml:"groups_file"`
		DefaultsFile string `yaml:"defaults_file"`
	} `yaml:"inventory"`
	Runner struct {
		NumWorkers int `yaml:"num_workers"`
	} `yaml:"runner"`
	Paths Paths `yaml:"paths"`
	SSH   struct {
		KnownHosts     string `yaml:"known_hosts"`
		KeyPath        string `yaml:"key_path"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ssh"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Telemetry struct {
		Enabled      bool   `yaml:"enabled"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
	} `yaml:"telemetry"`

	// Credentials come from secrets.env or the environment, never from YAML.
	Credentials struct {
		Username string
		Password string
	} `yaml:"-"`
}

// Paths are the template root and the artifact directories.
type Paths struct {
	Templates string `yaml:"templates"`
	Configs   string `yaml:"configs"`
	Backup    string `yaml:"backup"`
	Diffs     string `yaml:"diffs"`
}

// DefaultPaths mirrors the directory names used on disk by default.
func DefaultPaths() Paths {
	return Paths{Templates: "templates", Configs: "configs", Backup: "backup", Diffs: "diffs"}
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Inventory.HostsFile == "" {
		c.Inventory.HostsFile = filepath.Join("inventory", "hosts.yaml")
	}
	if c.Runner.NumWorkers <= 0 {
		c.Runner.NumWorkers = 20
	}
	def := DefaultPaths()
	if c.Paths.Templates == "" {
		c.Paths.Templates = def.Templates
	}
	if c.Paths.Configs == "" {
		c.Paths.Configs = def.Configs
	}
	if c.Paths.Backup == "" {
		c.Paths.Backup = def.Backup
	}
	if c.Paths.Diffs == "" {
		c.Paths.Diffs = def.Diffs
	}
	if c.SSH.TimeoutSeconds <= 0 {
		c.SSH.TimeoutSeconds = 30
	}
}

// SSHTimeout returns the dial timeout as a duration.
func (c *Config) SSHTimeout() time.Duration {
	return time.Duration(c.SSH.TimeoutSeconds) * time.Second
}

// ResolveConfigPath picks ./config.yaml when present, then
// $XDG_CONFIG_HOME/netcfg/config.yaml or ~/.config/netcfg/config.yaml.
func ResolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "netcfg", "config.yaml")
}

// LoadConfig reads YAML configuration from a path (see ResolveConfigPath), applies
// defaults and merges device credentials from secrets.env next to the config file.
// Environment variables override secrets.env.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	path = ResolveConfigPath(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	secrets, _ := LoadSecretsEnv(filepath.Join(filepath.Dir(path), "secrets.env"))
	for _, key := range []string{EnvUsername, EnvPassword} {
		if v := os.Getenv(key); v != "" {
			secrets[key] = v
		}
	}
	cfg.Credentials.Username = secrets[EnvUsername]
	cfg.Credentials.Password = secrets[EnvPassword]
	return cfg, nil
}
