package engine

import (
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"eventfinder/internal/model"
)

// Engine filters, searches and sorts event lists. It holds no event state;
// every call works on the slice it is given and never mutates it.
type Engine struct {
	tag language.Tag
}

// New returns an Engine that compares titles and locations using the
// collation rules of tag.
func New(tag language.Tag) *Engine {
	return &Engine{tag: tag}
}

// NewForLocale parses a BCP-47 tag such as "is" or "en-GB". An empty
// string selects language.Und (root collation).
func NewForLocale(locale string) (*Engine, error) {
	if strings.TrimSpace(locale) == "" {
		return New(language.Und), nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, err
	}
	return New(tag), nil
}

// Locale returns the collation tag.
func (e *Engine) Locale() language.Tag { return e.tag }

// resolved caches each logical field once per record.
type resolved struct {
	ev          model.Event
	title       string
	location    string
	description string
	categories  []string
	date        time.Time
}

func resolve(ev model.Event) resolved {
	return resolved{
		ev:          ev,
		title:       ev.ResolvedTitle(),
		location:    ev.ResolvedLocation(),
		description: ev.ResolvedDescription(),
		categories:  ev.ResolvedCategories(),
		date:        ev.ResolvedDate(),
	}
}

func (r resolved) matchesQuery(q string) bool {
	if q == "" {
		return true
	}
	if containsFold(r.title, q) || containsFold(r.description, q) || containsFold(r.location, q) {
		return true
	}
	for _, c := range r.categories {
		if containsFold(c, q) {
			return true
		}
	}
	return false
}

func containsFold(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}

func (r resolved) matches(st State, q string) bool {
	if active(st.Category) && !slices.Contains(r.categories, st.Category) {
		return false
	}
	if active(st.Location) && r.location != st.Location {
		return false
	}
	if !st.From.IsZero() && r.date.Before(st.From) {
		return false
	}
	if !st.To.IsZero() && r.date.After(st.To) {
		return false
	}
	return r.matchesQuery(q)
}

// Select returns the events matching st, in st's order. The sort is stable,
// so records with equal keys keep their input order. Select never drops a
// record except for a failed filter.
func (e *Engine) Select(events []model.Event, st State) []model.Event {
	q := strings.ToLower(strings.TrimSpace(st.Query))

	kept := make([]resolved, 0, len(events))
	for _, ev := range events {
		r := resolve(ev)
		if r.matches(st, q) {
			kept = append(kept, r)
		}
	}

	e.sortResolved(kept, st.Sort, st.Direction)

	out := make([]model.Event, len(kept))
	for i, r := range kept {
		out[i] = r.ev
	}
	return out
}

func (e *Engine) sortResolved(rs []resolved, key SortKey, dir Direction) {
	// A Collator keeps scratch buffers, so each call gets its own.
	col := collate.New(e.tag)

	var cmp func(a, b resolved) int
	switch key {
	case SortByTitle:
		cmp = func(a, b resolved) int { return col.CompareString(a.title, b.title) }
	case SortByLocation:
		cmp = func(a, b resolved) int { return col.CompareString(a.location, b.location) }
	default:
		cmp = func(a, b resolved) int { return a.date.Compare(b.date) }
	}

	if dir == Desc {
		sort.SliceStable(rs, func(i, j int) bool { return cmp(rs[i], rs[j]) > 0 })
		return
	}
	sort.SliceStable(rs, func(i, j int) bool { return cmp(rs[i], rs[j]) < 0 })
}

// Categories returns the distinct non-empty resolved categories, sorted
// ascending by byte value (case-sensitive).
func (e *Engine) Categories(events []model.Event) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, ev := range events {
		for _, c := range ev.ResolvedCategories() {
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Locations returns the distinct non-empty resolved locations, sorted
// ascending.
func (e *Engine) Locations(events []model.Event) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, ev := range events {
		loc := ev.ResolvedLocation()
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Featured returns up to n events dated at or after now, soonest first.
func (e *Engine) Featured(events []model.Event, now time.Time, n int) []model.Event {
	if n <= 0 {
		return []model.Event{}
	}
	upcoming := e.Select(events, DefaultState().WithRange(now, time.Time{}))
	if len(upcoming) > n {
		upcoming = upcoming[:n]
	}
	return upcoming
}

// ByCategory returns events whose resolved categories include category,
// in input order.
func (e *Engine) ByCategory(events []model.Event, category string) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if slices.Contains(ev.ResolvedCategories(), category) {
			out = append(out, ev)
		}
	}
	return out
}

// ByLocation returns events whose resolved location equals location, in
// input order.
func (e *Engine) ByLocation(events []model.Event, location string) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.ResolvedLocation() == location {
			out = append(out, ev)
		}
	}
	return out
}

// Find returns the event with the given id.
func (e *Engine) Find(events []model.Event, id string) (model.Event, bool) {
	for _, ev := range events {
		if ev.ID.String() == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

// FindAll returns the events whose ids are in ids, in event-list order.
// Unknown ids are ignored.
func (e *Engine) FindAll(events []model.Event, ids []string) []model.Event {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]model.Event, 0, len(ids))
	for _, ev := range events {
		if _, ok := want[ev.ID.String()]; ok {
			out = append(out, ev)
		}
	}
	return out
}
