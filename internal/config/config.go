package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultDataFile    = "dogadjaji.json"
	defaultPoll        = "@every 1m"
	defaultAppName     = "Pametni Kancelarijski Planer"
	defaultListen      = "127.0.0.1:8080"
	defaultLogLevel    = "info"
	defaultTimeoutSecs = 10
	defaultLead        = 15
	defaultUpcoming    = 7
	defaultImportDays  = 90
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// TelegramConfig enables reminders in a Telegram chat.
type TelegramConfig struct {
	Token  string `yaml:"token" json:"-"`
	ChatID int64  `yaml:"chat_id" json:"chat_id"`
}

// EmailConfig enables reminders by e-mail through AWS SES.
type EmailConfig struct {
	Region          string   `yaml:"region" json:"region"`
	AccessKeyID     string   `yaml:"access_key_id" json:"-"`
	SecretAccessKey string   `yaml:"secret_access_key" json:"-"`
	From            string   `yaml:"from" json:"from"`
	To              []string `yaml:"to" json:"to"`
}

// NotifiersConfig selects the notification sinks. With none enabled the
// reminders only go to the log.
type NotifiersConfig struct {
	Desktop  bool            `yaml:"desktop" json:"desktop"`
	Telegram *TelegramConfig `yaml:"telegram,omitempty" json:"telegram,omitempty"`
	Email    *EmailConfig    `yaml:"email,omitempty" json:"email,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// DataFile is the JSON backing file for events.
	DataFile string `yaml:"data_file" json:"data_file"`

	// Timezone is the IANA zone event times are read and shown in. Empty
	// means the system local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Poll is the cron spec of the notification check.
	Poll string `yaml:"poll" json:"poll"`

	// AppName is shown as the sender of every notification.
	AppName string `yaml:"app_name" json:"app_name"`

	// NotifyTimeoutSeconds is how long a desktop notification stays up.
	NotifyTimeoutSeconds int `yaml:"notify_timeout_seconds" json:"notify_timeout_seconds"`

	// DefaultLeadMinutes is used when an event is created without a lead time.
	DefaultLeadMinutes int `yaml:"default_lead_minutes" json:"default_lead_minutes"`

	// UpcomingDays is the default window of the "upcoming" view.
	UpcomingDays int `yaml:"upcoming_days" json:"upcoming_days"`

	// ImportHorizonDays bounds recurrence expansion on ICS import.
	ImportHorizonDays int `yaml:"import_horizon_days" json:"import_horizon_days"`

	// ICSCacheDir holds downloaded calendars for offline re-import. Empty
	// disables the cache.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Listen is the HTTP listen address of the local API.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// CORSOrigins lists browser origins allowed to call the HTTP API.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`

	Notifiers NotifiersConfig `yaml:"notifiers" json:"notifiers"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataFile:             defaultDataFile,
		Poll:                 defaultPoll,
		AppName:              defaultAppName,
		NotifyTimeoutSeconds: defaultTimeoutSecs,
		DefaultLeadMinutes:   defaultLead,
		UpcomingDays:         defaultUpcoming,
		ImportHorizonDays:    defaultImportDays,
		LogLevel:             defaultLogLevel,
		Listen:               defaultListen,
		Notifiers:            NotifiersConfig{Desktop: true},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.DataFile == "" {
		c.DataFile = defaultDataFile
	}
	if c.Poll == "" {
		c.Poll = defaultPoll
	}
	if c.AppName == "" {
		c.AppName = defaultAppName
	}
	if c.NotifyTimeoutSeconds <= 0 {
		c.NotifyTimeoutSeconds = defaultTimeoutSecs
	}
	// Zero is a valid lead time; only negatives are reset.
	if c.DefaultLeadMinutes < 0 {
		c.DefaultLeadMinutes = defaultLead
	}
	if c.UpcomingDays <= 0 {
		c.UpcomingDays = defaultUpcoming
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = defaultImportDays
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
}

// NotifyTimeout returns NotifyTimeoutSeconds as a duration.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

// Location resolves Timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// LoadDotEnv reads a .env file into the process environment when one
// exists. Variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides file settings from PLANNER_* environment variables.
// Secrets are expected to come this way rather than from the YAML file.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PLANNER_DATA_FILE"); v != "" {
		c.DataFile = v
	}
	if v := os.Getenv("PLANNER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PLANNER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("PLANNER_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("PLANNER_BASIC_AUTH_USERNAME"); v != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		c.BasicAuth.Username = v
	}
	if v := os.Getenv("PLANNER_BASIC_AUTH_PASSWORD"); v != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		c.BasicAuth.Password = v
	}

	token := os.Getenv("PLANNER_TELEGRAM_TOKEN")
	chat := os.Getenv("PLANNER_TELEGRAM_CHAT_ID")
	if token != "" || chat != "" {
		if c.Notifiers.Telegram == nil {
			c.Notifiers.Telegram = &TelegramConfig{}
		}
		if token != "" {
			c.Notifiers.Telegram.Token = token
		}
		if chat != "" {
			id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
			if err != nil {
				return fmt.Errorf("PLANNER_TELEGRAM_CHAT_ID must be a number: %w", err)
			}
			c.Notifiers.Telegram.ChatID = id
		}
	}

	keyID := os.Getenv("PLANNER_SES_ACCESS_KEY_ID")
	secret := os.Getenv("PLANNER_SES_SECRET_ACCESS_KEY")
	if c.Notifiers.Email != nil {
		if keyID != "" {
			c.Notifiers.Email.AccessKeyID = keyID
		}
		if secret != "" {
			c.Notifiers.Email.SecretAccessKey = secret
		}
	}

	c.Normalize()
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planner-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
