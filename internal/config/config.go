package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// Config is everything shelf needs to reach its services.
type Config struct {
	ServerURL      string        `envconfig:"SHELF_SERVER_URL"`
	ImageHostURL   string        `envconfig:"SHELF_IMAGE_HOST_URL"`
	ImageHostKey   string        `envconfig:"SHELF_IMAGE_HOST_KEY"`
	IdentityURL    string        `envconfig:"SHELF_IDENTITY_URL"`
	TokenURL       string        `envconfig:"SHELF_TOKEN_URL"`
	IdentityAPIKey string        `envconfig:"SHELF_IDENTITY_API_KEY"`
	DataDir        string        `envconfig:"SHELF_DATA_DIR"`
	LogLevel       string        `envconfig:"SHELF_LOG_LEVEL"`
	RequestTimeout time.Duration `envconfig:"SHELF_REQUEST_TIMEOUT"`
	RefreshEvery   time.Duration `envconfig:"SHELF_REFRESH_EVERY"`
}

const (
	defaultConfigPath     = "~/.config/shelf/config.toml"
	defaultDataDir        = "~/.local/share/shelf"
	defaultServerURL      = "http://localhost:5000"
	defaultImageHostURL   = "https://api.imgbb.com"
	defaultIdentityURL    = "https://identitytoolkit.googleapis.com"
	defaultTokenURL       = "https://securetoken.googleapis.com"
	defaultLogLevel       = "info"
	defaultRequestTimeout = 10 * time.Second
	defaultRefreshEvery   = 30 * time.Second
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerURL:      defaultServerURL,
		ImageHostURL:   defaultImageHostURL,
		IdentityURL:    defaultIdentityURL,
		TokenURL:       defaultTokenURL,
		DataDir:        mustExpand(defaultDataDir),
		LogLevel:       defaultLogLevel,
		RequestTimeout: defaultRequestTimeout,
		RefreshEvery:   defaultRefreshEvery,
	}
}

// LoadDotenv loads KEY=value files into the process environment. Variables
// already set win, and missing files are skipped.
func LoadDotenv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load %s: %w", f, err)
	}
	return nil
}

// Load builds the configuration: defaults, then the TOML file at path
// (empty means ~/.config/shelf/config.toml; a missing file is fine), then
// SHELF_* environment variables.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := cfg.mergeFile(resolved); err != nil {
		return Config{}, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type fileConfig struct {
	ServerURL      string `toml:"server_url"`
	ImageHostURL   string `toml:"image_host_url"`
	ImageHostKey   string `toml:"image_host_key"`
	IdentityURL    string `toml:"identity_url"`
	TokenURL       string `toml:"token_url"`
	IdentityAPIKey string `toml:"identity_api_key"`
	DataDir        string `toml:"data_dir"`
	LogLevel       string `toml:"log_level"`
	RequestTimeout string `toml:"request_timeout"`
	RefreshEvery   string `toml:"refresh_every"`
}

func (c *Config) mergeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var raw fileConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.ServerURL, raw.ServerURL)
	set(&c.ImageHostURL, raw.ImageHostURL)
	set(&c.ImageHostKey, raw.ImageHostKey)
	set(&c.IdentityURL, raw.IdentityURL)
	set(&c.TokenURL, raw.TokenURL)
	set(&c.IdentityAPIKey, raw.IdentityAPIKey)
	set(&c.DataDir, raw.DataDir)
	set(&c.LogLevel, raw.LogLevel)

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &c.RequestTimeout},
		{"refresh_every", raw.RefreshEvery, &c.RefreshEvery},
	} {
		v := strings.TrimSpace(d.raw)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse config: %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// normalize trims values and restores defaults for ones set empty.
func (c *Config) normalize() {
	def := Default()
	for _, f := range []struct {
		v   *string
		def string
	}{
		{&c.ServerURL, def.ServerURL},
		{&c.ImageHostURL, def.ImageHostURL},
		{&c.IdentityURL, def.IdentityURL},
		{&c.TokenURL, def.TokenURL},
		{&c.DataDir, def.DataDir},
		{&c.LogLevel, def.LogLevel},
	} {
		*f.v = strings.TrimSpace(*f.v)
		if *f.v == "" {
			*f.v = f.def
		}
	}
	c.ImageHostKey = strings.TrimSpace(c.ImageHostKey)
	c.IdentityAPIKey = strings.TrimSpace(c.IdentityAPIKey)
	c.DataDir = mustExpand(c.DataDir)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RefreshEvery <= 0 {
		c.RefreshEvery = defaultRefreshEvery
	}
}

// Validate checks the URLs and log level.
func (c Config) Validate() error {
	for name, raw := range map[string]string{
		"server_url":     c.ServerURL,
		"image_host_url": c.ImageHostURL,
		"identity_url":   c.IdentityURL,
		"token_url":      c.TokenURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// SessionPath is the bolt file holding the signed-in session.
func (c Config) SessionPath() string {
	return filepath.Join(c.dataDir(), "session.db")
}

// LogPath is the client log file.
func (c Config) LogPath() string {
	return filepath.Join(c.dataDir(), "shelf.log")
}

func (c Config) dataDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir)
	}
	return c.DataDir
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
