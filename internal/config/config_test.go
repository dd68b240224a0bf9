package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Country != "us" {
		t.Errorf("Country = %q, want us", cfg.Country)
	}
	if cfg.Remote.Backend != "file" {
		t.Errorf("Remote.Backend = %q, want file", cfg.Remote.Backend)
	}
	if cfg.Search.Limit != 200 {
		t.Errorf("Search.Limit = %d, want 200", cfg.Search.Limit)
	}
	if got := cfg.Refresh.ParseInterval(); got != 6*time.Hour {
		t.Errorf("ParseInterval = %v, want 6h", got)
	}
	if got := cfg.Refresh.ParseRequestDelay(); got != 400*time.Millisecond {
		t.Errorf("ParseRequestDelay = %v, want 400ms", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  path: /tmp/test.db
remote:
  backend: postgres
  dsn: postgres://localhost/rankradar
country: de
refresh:
  interval: 1h
  request_delay: 250ms
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Remote.Backend != "postgres" || cfg.Remote.DSN != "postgres://localhost/rankradar" {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Country != "de" {
		t.Errorf("Country = %q, want de", cfg.Country)
	}
	if got := cfg.Refresh.ParseInterval(); got != time.Hour {
		t.Errorf("ParseInterval = %v, want 1h", got)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	// Unset sections keep their defaults.
	if cfg.Charts.Limit != 50 {
		t.Errorf("Charts.Limit = %d, want default 50", cfg.Charts.Limit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "./rankradar.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RANKRADAR_DB_PATH", "/var/lib/rankradar.db")
	t.Setenv("RANKRADAR_REMOTE_DSN", "postgres://shared/rankradar")
	t.Setenv("RANKRADAR_COUNTRY", "jp")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/var/lib/rankradar.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Remote.Backend != "postgres" || cfg.Remote.DSN != "postgres://shared/rankradar" {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Country != "jp" {
		t.Errorf("Country = %q, want jp", cfg.Country)
	}
}

func TestParseDurationFallbacks(t *testing.T) {
	r := RefreshConfig{Interval: "not-a-duration", RequestDelay: ""}
	if got := r.ParseInterval(); got != 6*time.Hour {
		t.Errorf("ParseInterval fallback = %v, want 6h", got)
	}
	if got := r.ParseRequestDelay(); got != 400*time.Millisecond {
		t.Errorf("ParseRequestDelay fallback = %v, want 400ms", got)
	}
}
