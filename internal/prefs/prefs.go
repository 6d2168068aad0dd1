package prefs

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"

	appLog "eventfinder/internal/log"
)

const (
	DefaultKey           = "userPreferences"
	DefaultLegacyKey     = "favorites"
	DefaultHistoryLimit  = 10
	DefaultTheme         = "light"
	DefaultLanguage      = "en"
	DefaultNotifications = true
)

// Preferences is the single persisted blob. Favorites is a set stored as a
// list; SearchHistory is most-recent-first without duplicates.
type Preferences struct {
	Favorites     []string `json:"favorites"`
	Theme         string   `json:"theme"`
	Language      string   `json:"language"`
	Notifications bool     `json:"notifications"`
	SearchHistory []string `json:"searchHistory"`
}

// Defaults is the blob served when nothing (or nothing readable) is stored.
func Defaults() Preferences {
	return Preferences{
		Favorites:     []string{},
		Theme:         DefaultTheme,
		Language:      DefaultLanguage,
		Notifications: DefaultNotifications,
		SearchHistory: []string{},
	}
}

func (p Preferences) clone() Preferences {
	p.Favorites = slices.Clone(p.Favorites)
	p.SearchHistory = slices.Clone(p.SearchHistory)
	if p.Favorites == nil {
		p.Favorites = []string{}
	}
	if p.SearchHistory == nil {
		p.SearchHistory = []string{}
	}
	return p
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Favorites     *[]string `json:"favorites,omitempty"`
	Theme         *string   `json:"theme,omitempty"`
	Language      *string   `json:"language,omitempty"`
	Notifications *bool     `json:"notifications,omitempty"`
	SearchHistory *[]string `json:"searchHistory,omitempty"`
}

func (p Patch) apply(to *Preferences) {
	if p.Favorites != nil {
		to.Favorites = slices.Clone(*p.Favorites)
	}
	if p.Theme != nil {
		to.Theme = *p.Theme
	}
	if p.Language != nil {
		to.Language = *p.Language
	}
	if p.Notifications != nil {
		to.Notifications = *p.Notifications
	}
	if p.SearchHistory != nil {
		to.SearchHistory = slices.Clone(*p.SearchHistory)
	}
}

// Options configures a Store. Zero values select the defaults above.
type Options struct {
	Key          string
	LegacyKey    string
	HistoryLimit int
}

// Store reads and writes Preferences through a Storage. Storage failures
// are logged and never returned: reads fall back to defaults, writes are
// dropped and the caller still gets the blob it asked for.
type Store struct {
	storage      Storage
	key          string
	legacyKey    string
	historyLimit int

	mu sync.Mutex
}

func NewStore(storage Storage, opts Options) *Store {
	s := &Store{
		storage:      storage,
		key:          opts.Key,
		legacyKey:    opts.LegacyKey,
		historyLimit: opts.HistoryLimit,
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.legacyKey == "" {
		s.legacyKey = DefaultLegacyKey
	}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}
	return s
}

// Get returns defaults overlaid key-by-key with whatever is stored.
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save merges patch onto the current blob, persists it and returns it.
func (s *Store) Save(patch Patch) Preferences {
	return s.update(func(p *Preferences) bool {
		patch.apply(p)
		return true
	})
}

// AddFavorite is idempotent.
func (s *Store) AddFavorite(id string) Preferences {
	return s.update(func(p *Preferences) bool {
		if id == "" || slices.Contains(p.Favorites, id) {
			return false
		}
		p.Favorites = append(p.Favorites, id)
		return true
	})
}

// RemoveFavorite is a no-op for ids that are not favorites.
func (s *Store) RemoveFavorite(id string) Preferences {
	return s.update(func(p *Preferences) bool {
		i := slices.Index(p.Favorites, id)
		if i < 0 {
			return false
		}
		p.Favorites = slices.Delete(p.Favorites, i, i+1)
		return true
	})
}

func (s *Store) IsFavorite(id string) bool {
	return slices.Contains(s.Get().Favorites, id)
}

// AddSearch moves query to the front of the history, dropping any earlier
// copy and anything past the limit. Blank queries are ignored.
func (s *Store) AddSearch(query string) Preferences {
	return s.update(func(p *Preferences) bool {
		if strings.TrimSpace(query) == "" {
			return false
		}
		history := make([]string, 0, len(p.SearchHistory)+1)
		history = append(history, query)
		for _, q := range p.SearchHistory {
			if q != query {
				history = append(history, q)
			}
		}
		if len(history) > s.historyLimit {
			history = history[:s.historyLimit]
		}
		p.SearchHistory = history
		return true
	})
}

func (s *Store) ClearHistory() Preferences {
	return s.update(func(p *Preferences) bool {
		if len(p.SearchHistory) == 0 {
			return false
		}
		p.SearchHistory = []string{}
		return true
	})
}

// update runs fn on the current blob under the store lock and persists the
// result when fn reports a change.
func (s *Store) update(fn func(*Preferences) bool) Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.load()
	if fn(&p) {
		_ = s.persist(p)
	}
	return p.clone()
}

func (s *Store) load() Preferences {
	p := Defaults()

	raw, err := s.storage.Get(s.key)
	switch {
	case err == nil:
		// Unmarshal over the defaults: present keys replace, absent keys stay.
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			appLog.Warn("stored preferences unreadable; using defaults", "key", s.key, "err", err)
			p = Defaults()
		}
	case errors.Is(err, ErrNotFound):
	default:
		appLog.Error("read preferences", err, "key", s.key)
	}
	p = p.clone()

	if s.migrateLegacy(&p) && s.persist(p) == nil {
		if err := s.storage.Remove(s.legacyKey); err != nil {
			appLog.Error("remove legacy favorites", err, "key", s.legacyKey)
		}
	}
	return p
}

// migrateLegacy folds a bare favorites list stored under the legacy key into
// p. It reports whether a legacy entry was found; the caller drops the key
// once the merged blob is written.
func (s *Store) migrateLegacy(p *Preferences) bool {
	raw, err := s.storage.Get(s.legacyKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			appLog.Error("read legacy favorites", err, "key", s.legacyKey)
		}
		return false
	}

	var legacy []string
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		appLog.Warn("legacy favorites unreadable; discarding", "key", s.legacyKey, "err", err)
	}
	for _, id := range legacy {
		if id != "" && !slices.Contains(p.Favorites, id) {
			p.Favorites = append(p.Favorites, id)
		}
	}
	appLog.Info("migrating legacy favorites", "count", len(legacy))
	return true
}

func (s *Store) persist(p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		appLog.Error("encode preferences", err)
		return err
	}
	if err := s.storage.Set(s.key, string(data)); err != nil {
		appLog.Error("write preferences", err, "key", s.key)
		return err
	}
	return nil
}
