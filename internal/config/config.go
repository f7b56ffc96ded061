// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of both the platform daemon and the contacts client.
type Config struct {
	Server Server `yaml:"server"`
	Auth   Auth   `yaml:"auth"`
	Mail   Mail   `yaml:"mail"`
	Client Client `yaml:"client"`
	Log    Log    `yaml:"log"`
}

// Server holds platform daemon settings.
type Server struct {
	DataDir        string `yaml:"data_dir"`
	TCPPort        string `yaml:"tcp_port"`
	HTTPPort       string `yaml:"http_port"`
	DisableTLS     bool   `yaml:"disable_tls"`
	Storage        string `yaml:"storage"` // "json" | "sqlite"
	SQLitePath     string `yaml:"sqlite_path"`
	MaxConnections int    `yaml:"max_connections"`
}

// Auth holds session and password policy settings.
type Auth struct {
	SessionTTL        time.Duration `yaml:"session_ttl"`
	RefreshTTL        time.Duration `yaml:"refresh_ttl"`
	RecoveryTTL       time.Duration `yaml:"recovery_ttl"`
	MinPasswordLength int           `yaml:"min_password_length"`
	SiteURL           string        `yaml:"site_url"` // Public base URL of the HTTP API, used in emailed links.

	// RedirectAllowList holds the URLs recovery links may redirect to, on top of
	// site_url. An entry matches targets with the same scheme and host whose path
	// starts with the entry's path.
	RedirectAllowList []string `yaml:"redirect_allow_list"`
}

// Mail holds recovery email delivery settings.
type Mail struct {
	Driver   string `yaml:"driver"` // "log" | "smtp"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Client holds settings of the contacts terminal application.
type Client struct {
	StoreAddr        string `yaml:"store_addr"` // Empty runs the platform embedded.
	DisableTLS       bool   `yaml:"disable_tls"`
	DataDir          string `yaml:"data_dir"` // Embedded platform data.
	SessionFile      string `yaml:"session_file"`
	KeyFile          string `yaml:"key_file"`
	Locale           string `yaml:"locale"`
	RecoveryRedirect string `yaml:"recovery_redirect"`
	WatchSession     bool   `yaml:"watch_session"`
}

// Log holds logger settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
	File   string `yaml:"file"`   // Empty logs to stderr.
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	clientDir := filepath.Join(home, ".config", "celerix-contacts")

	return Config{
		Server: Server{
			DataDir:        "./data",
			TCPPort:        "7001",
			HTTPPort:       "7002",
			Storage:        "json",
			SQLitePath:     "./data/contacts.db",
			MaxConnections: 100,
		},
		Auth: Auth{
			SessionTTL:        time.Hour,
			RefreshTTL:        30 * 24 * time.Hour,
			RecoveryTTL:       time.Hour,
			MinPasswordLength: 6,
			SiteURL:           "http://localhost:7002",
			RedirectAllowList: []string{"celerix-contacts://update-password"},
		},
		Mail: Mail{
			Driver: "log",
			Port:   587,
			From:   "no-reply@celerix.local",
		},
		Client: Client{
			DataDir:          filepath.Join(clientDir, "data"),
			SessionFile:      filepath.Join(clientDir, "session"),
			KeyFile:          filepath.Join(clientDir, "key"),
			Locale:           "es",
			RecoveryRedirect: "celerix-contacts://update-password",
			WatchSession:     true,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPaths lists the config files consulted by LoadLayered, lowest priority first.
func DefaultPaths() []string {
	paths := []string{"/etc/celerix-contacts/config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "celerix-contacts", "config.yaml"))
	}
	return paths
}

// Load reads a single YAML config file at path on top of the defaults.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	return LoadLayered(path)
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := decodeLayer(path, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// decodeLayer decodes one file onto cfg. yaml.v3 leaves fields absent from the
// document untouched, so each layer only overrides what it sets.
func decodeLayer(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("CELERIX_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("CELERIX_PORT"); v != "" {
		c.Server.TCPPort = v
	}
	if v := os.Getenv("CELERIX_HTTP_PORT"); v != "" {
		c.Server.HTTPPort = v
	}
	if v := os.Getenv("CELERIX_DISABLE_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid CELERIX_DISABLE_TLS %q: %w", v, err)
		}
		c.Server.DisableTLS = b
		c.Client.DisableTLS = b
	}
	if v := os.Getenv("CELERIX_STORE_ADDR"); v != "" {
		c.Client.StoreAddr = v
	}
	if v := os.Getenv("CELERIX_STORAGE"); v != "" {
		c.Server.Storage = v
	}
	if v := os.Getenv("CELERIX_LOCALE"); v != "" {
		c.Client.Locale = v
	}
	if v := os.Getenv("CELERIX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Server.DataDir == "" {
		return errors.New("config: server.data_dir cannot be empty")
	}
	switch c.Server.Storage {
	case "json":
	case "sqlite":
		if c.Server.SQLitePath == "" {
			return errors.New("config: server.sqlite_path cannot be empty with sqlite storage")
		}
	default:
		return fmt.Errorf("config: server.storage must be \"json\" or \"sqlite\", got %q", c.Server.Storage)
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("config: server.max_connections must be positive, got %d", c.Server.MaxConnections)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("config: auth.session_ttl must be positive, got %v", c.Auth.SessionTTL)
	}
	if c.Auth.RefreshTTL < c.Auth.SessionTTL {
		return fmt.Errorf("config: auth.refresh_ttl (%v) must not be shorter than auth.session_ttl (%v)", c.Auth.RefreshTTL, c.Auth.SessionTTL)
	}
	if c.Auth.RecoveryTTL <= 0 {
		return fmt.Errorf("config: auth.recovery_ttl must be positive, got %v", c.Auth.RecoveryTTL)
	}
	for _, u := range c.Auth.RedirectAllowList {
		if err := checkRedirect(u); err != nil {
			return fmt.Errorf("config: auth.redirect_allow_list: %w", err)
		}
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("config: auth.min_password_length must be at least 1, got %d", c.Auth.MinPasswordLength)
	}
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			return errors.New("config: mail.host is required for the smtp driver")
		}
	default:
		return fmt.Errorf("config: mail.driver must be \"log\" or \"smtp\", got %q", c.Mail.Driver)
	}
	switch c.Client.Locale {
	case "es", "en":
	default:
		return fmt.Errorf("config: client.locale must be \"es\" or \"en\", got %q", c.Client.Locale)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: log.format must be \"console\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// AllowedRedirects lists every URL a recovery link may redirect to: the site
// itself, the client's own recovery redirect and the configured allow list.
func (c *Config) AllowedRedirects() []string {
	out := []string{c.Auth.SiteURL}
	if c.Client.RecoveryRedirect != "" {
		out = append(out, c.Client.RecoveryRedirect)
	}
	return append(out, c.Auth.RedirectAllowList...)
}

func checkRedirect(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q needs a scheme and a host", raw)
	}
	return nil
}
