package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STATION_BACKEND_URL", "")
	cfg, err := Load(newFlags(t, "--data-dir", t.TempDir()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 3*time.Second || cfg.RequestTimeout != 20*time.Second {
		t.Fatalf("unexpected intervals %+v", cfg)
	}
	if cfg.MessageLimit != 80 || cfg.DefaultRoom != "9001" || cfg.DefaultRoomTitle != "Room 9001" {
		t.Fatalf("unexpected room defaults %+v", cfg)
	}
	if cfg.DefaultWorker != "dynamo" || !cfg.AltScreen {
		t.Fatalf("unexpected worker defaults %+v", cfg)
	}
	if cfg.Log.File != filepath.Join(cfg.DataDir, "console.log") {
		t.Fatalf("unexpected log file %q", cfg.Log.File)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "station.yaml")
	body := "backend_url: http://from-file:8000\nmessage_limit: 20\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STATION_MESSAGE_LIMIT", "40")

	cfg, err := Load(newFlags(t, "--config", path, "--data-dir", dir))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendURL != "http://from-file:8000" {
		t.Fatalf("expected file backend url, got %q", cfg.BackendURL)
	}
	if cfg.MessageLimit != 40 {
		t.Fatalf("expected env to beat file, got %d", cfg.MessageLimit)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected nested file value, got %q", cfg.Log.Level)
	}

	cfg, err = Load(newFlags(t, "--config", path, "--data-dir", dir, "--message-limit", "5"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MessageLimit != 5 {
		t.Fatalf("expected flag to win, got %d", cfg.MessageLimit)
	}
}

func TestInvalidWorker(t *testing.T) {
	if _, err := Load(newFlags(t, "--data-dir", t.TempDir(), "--worker", "nope")); err == nil {
		t.Fatalf("expected worker validation error")
	}
}

func TestResolveBackendURL(t *testing.T) {
	cfg := &Config{}
	if got := cfg.ResolveBackendURL(""); got != FallbackBackendURL {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := cfg.ResolveBackendURL("http://saved"); got != "http://saved" {
		t.Fatalf("expected persisted, got %q", got)
	}
	cfg.BackendURL = "http://explicit"
	if got := cfg.ResolveBackendURL("http://saved"); got != "http://explicit" {
		t.Fatalf("expected explicit, got %q", got)
	}
}
