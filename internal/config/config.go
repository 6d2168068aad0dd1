package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eventfinder/internal/atomicfile"
)

// NOTE: first run writes the defaults to disk with 0600 permissions so the
// operator has a file to edit.

// DataConfig describes where events come from and how long they are kept.
type DataConfig struct {
	// PrimaryURL is the live event endpoint (JSON or ICS). May be empty when
	// only the static file is used.
	PrimaryURL string `yaml:"primary_url" json:"primary_url"`
	// Fallback is the static resource served when the primary fails. A local
	// path, file:// URL or http(s) URL.
	Fallback string `yaml:"fallback" json:"fallback"`
	// Format forces "json" or "ics" for both sources. Empty auto-detects.
	Format string `yaml:"format" json:"format"`

	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`

	// Freshness is the cache window.
	Freshness time.Duration `yaml:"freshness" json:"freshness"`

	// RefreshCron warms the cache in the background (e.g. "*/5 * * * *").
	// "off" disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound recurrence expansion for ICS feeds.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`
}

// PreferencesConfig controls the on-disk preferences store.
type PreferencesConfig struct {
	Path               string `yaml:"path" json:"path"`
	Key                string `yaml:"key" json:"key"`
	LegacyFavoritesKey string `yaml:"legacy_favorites_key" json:"legacy_favorites_key"`
	HistoryLimit       int    `yaml:"history_limit" json:"history_limit"`
	// MaxBytes caps the preferences file. 0 disables the cap.
	MaxBytes int `yaml:"max_bytes" json:"max_bytes"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to render ICS occurrences and to decide
	// what "upcoming" means.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Collation is the BCP-47 tag used for title and location sorting.
	Collation string `yaml:"collation" json:"collation"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// FeaturedCount is the default size of the featured list.
	FeaturedCount int `yaml:"featured_count" json:"featured_count"`

	Data        DataConfig        `yaml:"data" json:"data"`
	Preferences PreferencesConfig `yaml:"preferences" json:"preferences"`
}

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "Atlantic/Reykjavik"
	defaultCollation     = "is"
	defaultLogLevel      = "info"
	defaultFeaturedCount = 6
	defaultFallback      = "data/events.json"
	defaultTimeout       = 15 * time.Second
	defaultUserAgent     = "eventfinder/1.0"
	defaultFreshness     = 5 * time.Minute
	defaultRefreshCron   = "*/5 * * * *"
	defaultHorizonDays   = 90
	defaultPrefsPath     = "data/preferences.json"
	defaultPrefsKey      = "userPreferences"
	defaultLegacyKey     = "favorites"
	defaultHistoryLimit  = 10
	defaultMaxBytes      = 5 << 20
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		Collation:     defaultCollation,
		LogLevel:      defaultLogLevel,
		FeaturedCount: defaultFeaturedCount,
		Data: DataConfig{
			Fallback:    defaultFallback,
			Timeout:     defaultTimeout,
			UserAgent:   defaultUserAgent,
			Freshness:   defaultFreshness,
			RefreshCron: defaultRefreshCron,
			HorizonDays: defaultHorizonDays,
		},
		Preferences: PreferencesConfig{
			Path:               defaultPrefsPath,
			Key:                defaultPrefsKey,
			LegacyFavoritesKey: defaultLegacyKey,
			HistoryLimit:       defaultHistoryLimit,
			MaxBytes:           defaultMaxBytes,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.FeaturedCount <= 0 {
		c.FeaturedCount = defaultFeaturedCount
	}

	d := &c.Data
	d.Format = strings.ToLower(strings.TrimSpace(d.Format))
	switch d.Format {
	case "", "json", "ics":
	default:
		// Unknown value; auto-detect instead of failing every load.
		d.Format = ""
	}
	if d.PrimaryURL == "" && d.Fallback == "" {
		d.Fallback = defaultFallback
	}
	if d.Timeout <= 0 {
		d.Timeout = defaultTimeout
	}
	if d.UserAgent == "" {
		d.UserAgent = defaultUserAgent
	}
	if d.Freshness <= 0 {
		d.Freshness = defaultFreshness
	}
	if d.RefreshCron == "" {
		d.RefreshCron = defaultRefreshCron
	}
	if d.HorizonDays <= 0 {
		d.HorizonDays = defaultHorizonDays
	}
	if d.BackfillDays < 0 {
		d.BackfillDays = 0
	}

	p := &c.Preferences
	if p.Path == "" {
		p.Path = defaultPrefsPath
	}
	if p.Key == "" {
		p.Key = defaultPrefsKey
	}
	if p.LegacyFavoritesKey == "" {
		p.LegacyFavoritesKey = defaultLegacyKey
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = defaultHistoryLimit
	}
	if p.MaxBytes < 0 {
		p.MaxBytes = 0
	}
}

// RefreshEnabled reports whether the background warmer should run.
func (c *Config) RefreshEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(c.Data.RefreshCron), "off")
}

// Location resolves Timezone. An unknown zone returns UTC and the error.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
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
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) when needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data, 0o600)
}
