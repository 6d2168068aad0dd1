package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"golang.org/x/text/language"

	"eventfinder/internal/cache"
	"eventfinder/internal/config"
	"eventfinder/internal/engine"
	"eventfinder/internal/metrics"
	"eventfinder/internal/model"
	"eventfinder/internal/prefs"
)

type fakeSource struct {
	events []model.Event
	err    error
	snap   *cache.Snapshot
}

func (f *fakeSource) Events(context.Context) ([]model.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeSource) Snapshot() (cache.Snapshot, bool) {
	if f.snap == nil {
		return cache.Snapshot{}, false
	}
	return *f.snap, true
}

func (f *fakeSource) Fresh() bool { return f.err == nil }

func testEvents() []model.Event {
	return []model.Event{
		{ID: "a", Title: "Jazz Night", Category: model.CategoryList("Music"), Start: "2024-05-01T20:00:00Z", End: "2024-05-01T22:00:00Z", Location: "Harpa"},
		{ID: "b", Title: "Art Walk", Category: model.SingleCategory("Art"), Start: "2024-06-01", City: "Reykjavík"},
		{ID: "c", Title: "Undated"},
	}
}

type fixture struct {
	src     *fakeSource
	store   *prefs.Store
	metrics *metrics.Metrics
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		src:     &fakeSource{events: testEvents()},
		store:   prefs.NewStore(prefs.NewMemoryStorage(), prefs.Options{}),
		metrics: metrics.New(),
	}
	s := NewServer(config.DefaultConfig(), Deps{
		Events:  f.src,
		Engine:  engine.New(language.English),
		Prefs:   f.store,
		Metrics: f.metrics,
		Now:     func() time.Time { return time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC) },
	})
	f.handler = s.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func eventIDs(dtos []eventDTO) []string {
	out := make([]string, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.ID)
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestEventsSelect(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		target string
		want   []string
	}{
		{"/api/events", []string{"c", "a", "b"}},
		{"/api/events?category=Music", []string{"a"}},
		{"/api/events?sort=date&dir=desc", []string{"b", "a", "c"}},
		{"/api/events?sort=name", []string{"b", "a", "c"}},
		{"/api/events?q=JAZZ", []string{"a"}},
		{"/api/events?location=Harpa", []string{"a"}},
		{"/api/events?from=2024-05-02&to=2024-12-31", []string{"b"}},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, tt.target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d: %s", tt.target, rec.Code, rec.Body.String())
		}
		resp := decode[eventsResponse](t, rec)
		if got := eventIDs(resp.Events); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.target, got, tt.want)
		}
		if resp.Total != 3 || resp.Count != len(tt.want) {
			t.Errorf("%s: count/total = %d/%d", tt.target, resp.Count, resp.Total)
		}
	}
}

func TestEventsBadParams(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/api/events?sort=price",
		"/api/events?dir=sideways",
		"/api/events?from=yesterday",
		"/api/events?from=2024-06-01&to=2024-01-01",
	} {
		if rec := f.do(t, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
	}
}

func TestDataUnavailable(t *testing.T) {
	f := newFixture(t)
	f.src.err = errors.New("both sources down")

	rec := f.do(t, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "data unavailable" {
		t.Errorf("body = %v", body)
	}

	f.src.snap = &cache.Snapshot{Events: testEvents()[:1], FetchedAt: time.Unix(0, 0)}
	rec = f.do(t, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Data-Stale") != "true" {
		t.Errorf("stale entry should be served: %d %v", rec.Code, rec.Header())
	}
}

func TestEventByID(t *testing.T) {
	f := newFixture(t)
	f.store.AddFavorite("a")

	rec := f.do(t, http.MethodGet, "/api/events/a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	ev := decode[eventDTO](t, rec)
	if ev.Title != "Jazz Night" || ev.Location != "Harpa" || !ev.Favorite || ev.Start == nil {
		t.Errorf("event = %+v", ev)
	}

	if rec := f.do(t, http.MethodGet, "/api/events/zz", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", rec.Code)
	}
}

func TestDerivedLists(t *testing.T) {
	f := newFixture(t)

	cats := decode[map[string][]string](t, f.do(t, http.MethodGet, "/api/categories", ""))
	if !reflect.DeepEqual(cats["categories"], []string{"Art", "Music"}) {
		t.Errorf("categories = %v", cats)
	}
	locs := decode[map[string][]string](t, f.do(t, http.MethodGet, "/api/locations", ""))
	if !reflect.DeepEqual(locs["locations"], []string{"Harpa", "Reykjavík"}) {
		t.Errorf("locations = %v", locs)
	}

	byCat := decode[map[string][]eventDTO](t, f.do(t, http.MethodGet, "/api/categories/Music/events", ""))
	if got := eventIDs(byCat["events"]); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("by category = %v", got)
	}
	byLoc := decode[map[string][]eventDTO](t, f.do(t, http.MethodGet, "/api/locations/Reykjav%C3%ADk/events", ""))
	if got := eventIDs(byLoc["events"]); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("by location = %v", got)
	}
}

func TestFeatured(t *testing.T) {
	f := newFixture(t)

	got := decode[map[string][]eventDTO](t, f.do(t, http.MethodGet, "/api/featured", ""))
	if ids := eventIDs(got["events"]); !reflect.DeepEqual(ids, []string{"b"}) {
		t.Errorf("featured = %v", ids)
	}
	got = decode[map[string][]eventDTO](t, f.do(t, http.MethodGet, "/api/featured?count=0", ""))
	if len(got["events"]) != 0 {
		t.Errorf("count=0 returned %v", eventIDs(got["events"]))
	}
	if rec := f.do(t, http.MethodGet, "/api/featured?count=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative count status = %d", rec.Code)
	}
}

func TestPreferences(t *testing.T) {
	f := newFixture(t)

	p := decode[prefs.Preferences](t, f.do(t, http.MethodGet, "/api/preferences", ""))
	if !reflect.DeepEqual(p, prefs.Defaults()) {
		t.Errorf("initial prefs = %+v", p)
	}

	f.store.AddFavorite("a")
	rec := f.do(t, http.MethodPatch, "/api/preferences", `{"theme":"dark"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status %d: %s", rec.Code, rec.Body.String())
	}
	p = decode[prefs.Preferences](t, rec)
	if p.Theme != "dark" || !reflect.DeepEqual(p.Favorites, []string{"a"}) {
		t.Errorf("patched prefs = %+v", p)
	}

	for _, body := range []string{`{"theme":`, `{"colour":"red"}`} {
		if rec := f.do(t, http.MethodPatch, "/api/preferences", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d, want 400", body, rec.Code)
		}
	}
}

func TestFavorites(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPut, "/api/favorites/a", "")
	f.do(t, http.MethodPut, "/api/favorites/a", "")
	f.do(t, http.MethodPut, "/api/favorites/gone", "")

	resp := decode[favoritesResponse](t, f.do(t, http.MethodGet, "/api/favorites", ""))
	if !reflect.DeepEqual(resp.IDs, []string{"a", "gone"}) {
		t.Errorf("ids = %v", resp.IDs)
	}
	if got := eventIDs(resp.Events); !reflect.DeepEqual(got, []string{"a"}) || !resp.Events[0].Favorite {
		t.Errorf("events = %+v", resp.Events)
	}

	rec := f.do(t, http.MethodDelete, "/api/favorites/a", "")
	if p := decode[prefs.Preferences](t, rec); !reflect.DeepEqual(p.Favorites, []string{"gone"}) {
		t.Errorf("after delete = %v", p.Favorites)
	}
	if rec := f.do(t, http.MethodPost, "/api/favorites/a", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST favorites status = %d, want 405", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/api/history", `{"query":"harpa"}`)
	f.do(t, http.MethodPost, "/api/history", `{"query":"reykjavik"}`)
	f.do(t, http.MethodPost, "/api/history", `{"query":"reykjavik"}`)
	f.do(t, http.MethodPost, "/api/history", `{"query":"  "}`)

	h := decode[historyResponse](t, f.do(t, http.MethodGet, "/api/history", ""))
	if !reflect.DeepEqual(h.History, []string{"reykjavik", "harpa"}) {
		t.Errorf("history = %v", h.History)
	}

	f.do(t, http.MethodGet, "/api/events?q=jazz&remember=true", "")
	h = decode[historyResponse](t, f.do(t, http.MethodGet, "/api/history", ""))
	if len(h.History) == 0 || h.History[0] != "jazz" {
		t.Errorf("remember=true should record the query: %v", h.History)
	}

	f.do(t, http.MethodGet, "/api/events?q=%20JAZZ%20&remember=true", "")
	h = decode[historyResponse](t, f.do(t, http.MethodGet, "/api/history", ""))
	if !reflect.DeepEqual(h.History, []string{"jazz", "reykjavik", "harpa"}) {
		t.Errorf("differently cased query should not add an entry: %v", h.History)
	}

	h = decode[historyResponse](t, f.do(t, http.MethodDelete, "/api/history", ""))
	if len(h.History) != 0 {
		t.Errorf("history after clear = %v", h.History)
	}
	if rec := f.do(t, http.MethodPost, "/api/history", `nope`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", rec.Code)
	}
}

func TestFavoritesICS(t *testing.T) {
	f := newFixture(t)
	f.store.AddFavorite("a")
	f.store.AddFavorite("b")
	f.store.AddFavorite("c")

	rec := f.do(t, http.MethodGet, "/api/favorites.ics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"SUMMARY:Jazz Night",
		"DTSTART:20240501T200000Z",
		"DTEND:20240501T220000Z",
		"DTSTART;VALUE=DATE:20240601",
		"CATEGORIES:Music",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("calendar missing %q:\n%s", want, body)
		}
	}

	cal, err := ical.NewDecoder(strings.NewReader(body)).Decode()
	if err != nil {
		t.Fatalf("decode exported calendar: %v", err)
	}
	// The undated favorite has no DTSTART and is left out.
	if n := len(cal.Events()); n != 2 {
		t.Errorf("VEVENT count = %d, want 2", n)
	}
}

func TestExportEscapesCategories(t *testing.T) {
	ev := model.Event{
		ID:       "x",
		Title:    "Market",
		Start:    "2024-05-01",
		Category: model.CategoryList("Food, Drink", "a;b", "line\nbreak", `back\slash`),
	}
	var buf strings.Builder
	if err := ical.NewEncoder(&buf).Encode(favoritesCalendar([]model.Event{ev}, time.Unix(0, 0))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `CATEGORIES:Food\, Drink,a\;b,line\nbreak,back\\slash`
	if !strings.Contains(buf.String(), want) {
		t.Errorf("calendar missing %q:\n%s", want, buf.String())
	}
}

func TestStatusAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.src.snap = &cache.Snapshot{Events: testEvents(), Source: "primary", FetchedAt: time.Unix(100, 0)}

	st := decode[statusResponse](t, f.do(t, http.MethodGet, "/api/status", ""))
	if !st.Loaded || !st.Fresh || st.Source != "primary" || st.EventCount != 3 {
		t.Errorf("status = %+v", st)
	}

	f.do(t, http.MethodGet, "/api/events", "")
	rec := f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	want := `eventfinder_http_requests_total{code="200",route="GET /api/events"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}
