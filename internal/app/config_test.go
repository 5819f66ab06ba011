package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8765" {
		t.Errorf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.Workers < 1 {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("VPO_DATA_DIR", "/srv/vpo")
	t.Setenv("VPO_FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("VPO_AUTH_TOKEN", "sekrit")
	t.Setenv("VPO_DB_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/srv/vpo" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("ffmpeg path = %q", cfg.FFmpegPath)
	}
	if cfg.AuthToken != "sekrit" {
		t.Errorf("auth token = %q", cfg.AuthToken)
	}
	if cfg.DBTimeout.Seconds() != 30 {
		t.Errorf("db timeout = %v", cfg.DBTimeout)
	}
}

func TestDatabasePathPrecedence(t *testing.T) {
	t.Setenv("VPO_DATA_DIR", "/srv/vpo")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseFile() != filepath.Join("/srv/vpo", "library.db") {
		t.Errorf("database = %q", cfg.DatabaseFile())
	}

	t.Setenv("VPO_DATABASE_PATH", "/elsewhere/lib.db")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseFile() != "/elsewhere/lib.db" {
		t.Errorf("database override = %q", cfg.DatabaseFile())
	}
}

func TestConfigFileIsRead(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("http_addr: \":9000\"\nworkers: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VPO_CONFIG_PATH", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("http addr from file = %q", cfg.HTTPAddr)
	}
	if cfg.Workers != 5 {
		t.Errorf("workers from file = %d", cfg.Workers)
	}
}

func TestEnsureLayoutCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{DataDir: filepath.Join(dir, "vpo")}
	if err := cfg.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"logs", "policies", "plugins", "profiles"} {
		if _, err := os.Stat(filepath.Join(cfg.DataDir, sub)); err != nil {
			t.Errorf("missing %s: %v", sub, err)
		}
	}
}
