package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.StreamChannelPrefix != "stream" {
		t.Fatalf("expected default stream prefix, got %q", cfg.StreamChannelPrefix)
	}
	if cfg.HistoryDefaultLimit != 50 {
		t.Fatalf("expected default history limit, got %d", cfg.HistoryDefaultLimit)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOG_MODE", "prod")
	t.Setenv("HISTORY_DEFAULT_LIMIT", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.LogMode != "prod" {
		t.Fatalf("expected override log mode")
	}
	if cfg.HistoryDefaultLimit != 20 {
		t.Fatalf("expected override history limit")
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STREAM_CHANNEL_PREFIX=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	old := envFiles
	envFiles = []string{path}
	defer func() { envFiles = old }()
	t.Cleanup(func() { _ = os.Unsetenv("STREAM_CHANNEL_PREFIX") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StreamChannelPrefix != "fromfile" {
		t.Fatalf("expected value from .env, got %q", cfg.StreamChannelPrefix)
	}
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	t.Setenv("HISTORY_DEFAULT_LIMIT", "abc")
	if _, err := Load(); err == nil {
		t.Fatalf("expected decode error for a non-numeric history limit")
	}
}
