package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SendTimeout != 5*time.Second {
		t.Errorf("Expected default send timeout, got %s", cfg.SendTimeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("Expected default max retries, got %d", cfg.MaxRetries)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "collector_url: https://collector.example.com/api/v1/events\ntoken: secret\nsend_timeout: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CollectorURL != "https://collector.example.com/api/v1/events" {
		t.Errorf("Unexpected collector URL: %s", cfg.CollectorURL)
	}
	if cfg.Token != "secret" {
		t.Errorf("Unexpected token: %s", cfg.Token)
	}
	if cfg.SendTimeout != 10*time.Second {
		t.Errorf("Unexpected timeout: %s", cfg.SendTimeout)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOOKLINE_TOKEN", "from-env")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "from-env" {
		t.Errorf("Expected env override, got %q", cfg.Token)
	}
}

func TestEnvOverrideBeatsFileValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("collector_url: https://file.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOOKLINE_COLLECTOR_URL", "https://env.example.com")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CollectorURL != "https://env.example.com" {
		t.Errorf("Expected env override, got %q", cfg.CollectorURL)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.path = path
	cfg.Token = "persisted"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Token != "persisted" {
		t.Errorf("Round trip lost token: %q", loaded.Token)
	}
}
