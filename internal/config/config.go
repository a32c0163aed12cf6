// Package config loads service settings from defaults, an optional YAML
// file and LOSTFOUND_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOSTFOUND_"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Captcha  CaptchaConfig  `koanf:"captcha"`
	Store    StoreConfig    `koanf:"store"`
	Upload   UploadConfig   `koanf:"upload"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig controls session tokens and admin invites.
type AuthConfig struct {
	TokenTTL   time.Duration `koanf:"token_ttl"`
	InviteTTL  time.Duration `koanf:"invite_ttl"`
	AdminEmail string        `koanf:"admin_email"`
}

// CaptchaConfig controls how long an issued challenge stays valid and how
// many may be open at once.
type CaptchaConfig struct {
	TTL     time.Duration `koanf:"ttl"`
	MaxLive int           `koanf:"max_live"`
}

// StoreConfig bounds every store call made by the workflows.
type StoreConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// UploadConfig limits report photos.
type UploadConfig struct {
	MaxBytes int64 `koanf:"max_bytes"`
}

// LogConfig optionally mirrors logs into a file.
type LogConfig struct {
	Path string `koanf:"path"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Database: DatabaseConfig{Path: "lostfound.sqlite3"},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			InviteTTL:  72 * time.Hour,
			AdminEmail: "admin@localhost",
		},
		Captcha: CaptchaConfig{TTL: 10 * time.Minute, MaxLive: 10000},
		Store:   StoreConfig{Timeout: 15 * time.Second},
		Upload:  UploadConfig{MaxBytes: 10 << 20},
	}
}

// Load builds the configuration. path may be empty, in which case
// LOSTFOUND_CONFIG is consulted; a missing file is only an error when a
// path was given explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps LOSTFOUND_AUTH_TOKEN_TTL to auth.token_ttl. The first
// underscore separates the section; variables without one are skipped.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok || section == "" || key == "" {
		return ""
	}
	return section + "." + key
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	for name, d := range map[string]time.Duration{
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.read_timeout":        c.Server.ReadTimeout,
		"server.write_timeout":       c.Server.WriteTimeout,
		"server.idle_timeout":        c.Server.IdleTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
		"auth.token_ttl":             c.Auth.TokenTTL,
		"auth.invite_ttl":            c.Auth.InviteTTL,
		"captcha.ttl":                c.Captcha.TTL,
		"store.timeout":              c.Store.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Captcha.MaxLive <= 0 {
		errs = append(errs, errors.New("captcha.max_live must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
