package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  base_dir: "./output"
engine:
  command: "python3"
  args: ["engine/main.py"]
  timeout_seconds: 120
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Engine.Command != "python3" || cfg.Engine.TimeoutSeconds != 120 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	// "./" paths resolve relative to the config file's directory.
	if cfg.Storage.BaseDir != filepath.Join(dir, "output") {
		t.Errorf("base_dir not expanded: %s", cfg.Storage.BaseDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Server.Host == "" || cfg.Server.Port == 0 {
		t.Errorf("server defaults missing: %+v", cfg.Server)
	}
	if cfg.Engine.Command == "" || cfg.Engine.TimeoutSeconds == 0 {
		t.Errorf("engine defaults missing: %+v", cfg.Engine)
	}
	if cfg.Auth.CookieName != "userId" {
		t.Errorf("cookie name default: %q", cfg.Auth.CookieName)
	}
	if cfg.Storage.BaseDir == "" || cfg.Storage.UsersDBPath == "" {
		t.Errorf("storage defaults missing: %+v", cfg.Storage)
	}
}
