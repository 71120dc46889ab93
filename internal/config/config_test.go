package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing-dir", "also-missing.yaml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config file")
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}
	if cfg.DataDir == "" {
		t.Error("no default data dir")
	}
	if cfg.DBPath != filepath.Join(cfg.DataDir, "progress.db") {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("sync interval = %s, want 5m", cfg.Sync.Interval)
	}
	if cfg.User.UID != "" {
		t.Errorf("default uid = %q, want signed-out", cfg.User.UID)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: ` + dir + `
remote:
  url: http://localhost:9090
user:
  uid: u-123
  name: Lucas
sync:
  interval: 90s
log:
  max_backups: 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.URL != "http://localhost:9090" {
		t.Errorf("remote url = %q", cfg.Remote.URL)
	}
	if cfg.User.UID != "u-123" || cfg.User.Name != "Lucas" {
		t.Errorf("user = %+v", cfg.User)
	}
	if cfg.Sync.Interval != 90*time.Second {
		t.Errorf("interval = %s, want 90s", cfg.Sync.Interval)
	}
	if cfg.Log.MaxBackups != 7 {
		t.Errorf("max backups = %d, want 7", cfg.Log.MaxBackups)
	}
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("max size = %d, want default 10", cfg.Log.MaxSizeMB)
	}
	if cfg.DBPath != filepath.Join(dir, "progress.db") {
		t.Errorf("db path = %q, want under data dir", cfg.DBPath)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ONEUP_USER_UID", "env-user")
	t.Setenv("ONEUP_REMOTE_URL", "http://env:8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.User.UID != "env-user" {
		t.Errorf("uid = %q, want env-user", cfg.User.UID)
	}
	if cfg.Remote.URL != "http://env:8080" {
		t.Errorf("remote url = %q, want http://env:8080", cfg.Remote.URL)
	}
}
