package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "SHELF_") {
			t.Setenv(key, "")
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("Unsetenv(%s): %v", key, err)
			}
		}
	}
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerURL != defaultServerURL {
		t.Fatalf("ServerURL = %q, want %q", cfg.ServerURL, defaultServerURL)
	}
	wantDataDir, err := expandPath(defaultDataDir)
	if err != nil {
		t.Fatalf("expandPath(defaultDataDir) returned error: %v", err)
	}
	if cfg.DataDir != wantDataDir {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, wantDataDir)
	}
	if cfg.RequestTimeout != defaultRequestTimeout {
		t.Fatalf("RequestTimeout = %v, want %v", cfg.RequestTimeout, defaultRequestTimeout)
	}
	if cfg.ImageHostKey != "" {
		t.Fatalf("ImageHostKey = %q, want empty", cfg.ImageHostKey)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
server_url = "  https://books.example.com  "
image_host_key = " abc123 "
data_dir = "  ~/.shelf  "
log_level = "debug"
request_timeout = "3s"
refresh_every = "1m"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerURL != "https://books.example.com" {
		t.Fatalf("ServerURL = %q, want %q", cfg.ServerURL, "https://books.example.com")
	}
	if cfg.ImageHostKey != "abc123" {
		t.Fatalf("ImageHostKey = %q, want %q", cfg.ImageHostKey, "abc123")
	}
	if !strings.HasPrefix(cfg.DataDir, home) {
		t.Fatalf("DataDir = %q, want it under HOME %q", cfg.DataDir, home)
	}
	if cfg.RequestTimeout != 3*time.Second || cfg.RefreshEvery != time.Minute {
		t.Fatalf("durations = %v/%v, want 3s/1m", cfg.RequestTimeout, cfg.RefreshEvery)
	}
	if cfg.SessionPath() != filepath.Join(cfg.DataDir, "session.db") {
		t.Fatalf("SessionPath = %q", cfg.SessionPath())
	}
	if cfg.LogPath() != filepath.Join(cfg.DataDir, "shelf.log") {
		t.Fatalf("LogPath = %q", cfg.LogPath())
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
server_url = "https://file.example.com"
image_host_key = "from-file"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("SHELF_SERVER_URL", "http://127.0.0.1:9000")
	t.Setenv("SHELF_REQUEST_TIMEOUT", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerURL != "http://127.0.0.1:9000" {
		t.Fatalf("ServerURL = %q, want the environment value", cfg.ServerURL)
	}
	if cfg.ImageHostKey != "from-file" {
		t.Fatalf("ImageHostKey = %q, want %q", cfg.ImageHostKey, "from-file")
	}
	if cfg.RequestTimeout != 250*time.Millisecond {
		t.Fatalf("RequestTimeout = %v, want 250ms", cfg.RequestTimeout)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
server_url = "   "
log_level = ""
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("SHELF_IDENTITY_URL", " ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerURL != defaultServerURL {
		t.Fatalf("ServerURL = %q, want %q", cfg.ServerURL, defaultServerURL)
	}
	if cfg.IdentityURL != defaultIdentityURL {
		t.Fatalf("IdentityURL = %q, want %q", cfg.IdentityURL, defaultIdentityURL)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`server_url = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"bad url":      `server_url = "ftp://books"`,
		"bad level":    `log_level = "loud"`,
		"bad duration": `request_timeout = "soon"`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("Load returned nil error for %s", body)
			}
		})
	}
}

func TestLoadDotenv_DoesNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHELF_SERVER_URL", "http://already.set")
	t.Setenv("SHELF_IMAGE_HOST_KEY", "")
	if err := os.Unsetenv("SHELF_IMAGE_HOST_KEY"); err != nil {
		t.Fatalf("Unsetenv: %v", err)
	}

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("SHELF_SERVER_URL=http://from.dotenv\nSHELF_IMAGE_HOST_KEY=dotenv-key\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := LoadDotenv(filepath.Join(t.TempDir(), "missing.env"), envFile); err != nil {
		t.Fatalf("LoadDotenv returned error: %v", err)
	}
	if got := os.Getenv("SHELF_SERVER_URL"); got != "http://already.set" {
		t.Fatalf("SHELF_SERVER_URL = %q, want the existing value", got)
	}
	if got := os.Getenv("SHELF_IMAGE_HOST_KEY"); got != "dotenv-key" {
		t.Fatalf("SHELF_IMAGE_HOST_KEY = %q, want %q", got, "dotenv-key")
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}

func TestSessionPath_DefaultsWhenDataDirEmpty(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var cfg Config
	got := cfg.SessionPath()
	if !strings.HasPrefix(got, home) {
		t.Fatalf("SessionPath = %q, want it under HOME %q", got, home)
	}
	if !strings.HasSuffix(got, filepath.FromSlash("/session.db")) {
		t.Fatalf("SessionPath = %q, want it to end with /session.db", got)
	}
}
