// Package config provides configuration loading and structs for the dossier server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Auth    AuthConfig    `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the base output directory and the user database path.
type StorageConfig struct {
	BaseDir     string `yaml:"base_dir"`
	UsersDBPath string `yaml:"users_db_path"`
}

// EngineConfig describes how to invoke the external composition engine.
// The command is run with Args plus the mode-specific arguments and must
// print one JSON object as the final line of stdout.
type EngineConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	Workdir        string   `yaml:"workdir"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// AuthConfig holds identity cookie settings.
type AuthConfig struct {
	CookieName string `yaml:"cookie_name"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.BaseDir = expandPath(cfg.Storage.BaseDir, configDir)
	cfg.Storage.UsersDBPath = expandPath(cfg.Storage.UsersDBPath, configDir)
	if cfg.Engine.Workdir != "" {
		cfg.Engine.Workdir = expandPath(cfg.Engine.Workdir, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
