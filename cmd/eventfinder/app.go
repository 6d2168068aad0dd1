package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"eventfinder/internal/cache"
	"eventfinder/internal/config"
	"eventfinder/internal/engine"
	"eventfinder/internal/feed"
	appLog "eventfinder/internal/log"
	"eventfinder/internal/metrics"
	"eventfinder/internal/prefs"
)

// app bundles everything a command needs, built once from config + flags.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	engine  *engine.Engine
	cache   *cache.Cache
	prefs   *prefs.Store
	metrics *metrics.Metrics
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if cfg == nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		// First run could not write the defaults; keep going with them.
		appLog.Warn("could not write default config", "path", path, "err", err)
	}

	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("primary-url"); v != "" {
		cfg.Data.PrimaryURL = v
	}
	if v := c.String("fallback"); v != "" {
		cfg.Data.Fallback = v
	}
	if v := c.String("prefs"); v != "" {
		cfg.Preferences.Path = v
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// newPrefsStore opens the preferences file without touching the event feed.
func newPrefsStore(cfg *config.Config) (*prefs.Store, error) {
	storage, err := prefs.NewFileStorage(cfg.Preferences.Path, cfg.Preferences.MaxBytes)
	if err != nil {
		return nil, err
	}
	appLog.Debug("preferences storage opened", "path", storage.Path(), "max_bytes", cfg.Preferences.MaxBytes)
	return prefs.NewStore(storage, prefs.Options{
		Key:          cfg.Preferences.Key,
		LegacyKey:    cfg.Preferences.LegacyFavoritesKey,
		HistoryLimit: cfg.Preferences.HistoryLimit,
	}), nil
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		appLog.Warn("invalid timezone; using UTC", "timezone", cfg.Timezone, "err", err)
	}

	eng, err := engine.NewForLocale(cfg.Collation)
	if err != nil {
		return nil, fmt.Errorf("collation %q: %w", cfg.Collation, err)
	}

	format := feed.Format(cfg.Data.Format)
	loader, err := feed.NewLoader(feed.Options{
		Primary:      feed.Source{Name: "primary", URL: cfg.Data.PrimaryURL, Format: format},
		Fallback:     feed.Source{Name: "fallback", URL: cfg.Data.Fallback, Format: format},
		Client:       feed.NewHTTPClient(cfg.Data.Timeout),
		UserAgent:    cfg.Data.UserAgent,
		HorizonDays:  cfg.Data.HorizonDays,
		BackfillDays: cfg.Data.BackfillDays,
		Location:     loc,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	store, err := newPrefsStore(cfg)
	if err != nil {
		return nil, err
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"collation", eng.Locale().String(),
		"primary_url", appLog.RedactURL(cfg.Data.PrimaryURL),
		"fallback", appLog.RedactURL(cfg.Data.Fallback),
		"freshness", cfg.Data.Freshness,
		"refresh", cfg.Data.RefreshCron,
		"preferences", cfg.Preferences.Path,
	)

	return &app{
		cfg:     cfg,
		loc:     loc,
		engine:  eng,
		cache:   cache.New(loader, cfg.Data.Freshness, cache.WithObserver(m)),
		prefs:   store,
		metrics: m,
	}, nil
}
