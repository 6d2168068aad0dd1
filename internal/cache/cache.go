package cache

import (
	"context"
	"sync"
	"time"

	"eventfinder/internal/feed"
	appLog "eventfinder/internal/log"
	"eventfinder/internal/model"
)

// DefaultWindow is how long a successful load is served without refetching.
const DefaultWindow = 5 * time.Minute

// Loader is the part of feed.Loader the cache depends on.
type Loader interface {
	Load(ctx context.Context) (feed.Result, error)
}

// Observer receives cache and load outcomes. internal/metrics implements it.
type Observer interface {
	CacheLookup(hit bool)
	LoadDone(res feed.Result, err error, took time.Duration)
}

// entry is replaced as a whole so events and fetchedAt always belong to the
// same load.
type entry struct {
	events    []model.Event
	fetchedAt time.Time
	source    string
	fallback  bool
}

// Snapshot describes the current cache entry.
type Snapshot struct {
	Events    []model.Event
	FetchedAt time.Time
	Source    string
	Fallback  bool
}

// Cache serves the last successfully loaded event list for Window after the
// load, and reloads on the first read after that.
//
// The mutex guards the entry only; it is not held while loading, so two
// overlapping misses each run their own load and the later one wins.
type Cache struct {
	loader   Loader
	window   time.Duration
	now      func() time.Time
	observer Observer

	mu    sync.RWMutex
	entry *entry
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New wraps loader. A non-positive window means DefaultWindow.
func New(loader Loader, window time.Duration, opts ...Option) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Cache{loader: loader, window: window, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the freshness window.
func (c *Cache) Window() time.Duration { return c.window }

// Events returns the cached list while it is fresh, and loads otherwise.
// On load failure the previous entry is kept and the error is returned;
// callers that can live with stale data should use Snapshot.
func (c *Cache) Events(ctx context.Context) ([]model.Event, error) {
	c.mu.RLock()
	e := c.entry
	c.mu.RUnlock()

	if e != nil && c.now().Sub(e.fetchedAt) < c.window {
		c.observeLookup(true)
		return e.events, nil
	}
	c.observeLookup(false)

	e, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return e.events, nil
}

// Refresh loads unconditionally. A failed refresh leaves the entry as is.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

// Snapshot returns the current entry without loading. ok is false before
// the first successful load.
func (c *Cache) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Events:    c.entry.events,
		FetchedAt: c.entry.fetchedAt,
		Source:    c.entry.source,
		Fallback:  c.entry.fallback,
	}, true
}

// Fresh reports whether a read right now would be served without loading.
func (c *Cache) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry != nil && c.now().Sub(c.entry.fetchedAt) < c.window
}

func (c *Cache) load(ctx context.Context) (*entry, error) {
	start := c.now()
	res, err := c.loader.Load(ctx)
	if c.observer != nil {
		c.observer.LoadDone(res, err, c.now().Sub(start))
	}
	if err != nil {
		appLog.Error("event load failed; keeping previous cache", err)
		return nil, err
	}

	e := &entry{
		events:    res.Events,
		fetchedAt: c.now(),
		source:    res.Source.Name,
		fallback:  res.Fallback,
	}
	c.mu.Lock()
	c.entry = e
	c.mu.Unlock()

	appLog.Info("event cache refreshed",
		"source", e.source,
		"fallback", e.fallback,
		"event_count", len(e.events),
	)
	return e, nil
}

func (c *Cache) observeLookup(hit bool) {
	if c.observer != nil {
		c.observer.CacheLookup(hit)
	}
}
