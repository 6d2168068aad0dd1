package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

const mixedFeed = `[
  {"id": "a", "title": "Jazz Night", "category": ["Music", "Nightlife"], "start": "2024-01-01T20:00:00Z", "location": "Harpa"},
  {"id": 42, "title_en": "Art Walk", "category": "Art", "date": "2024-06-01", "city": "Reykjavík", "price": 1500},
  {"id": "c", "language": {"en": {"title": "Poetry", "place": "Iðnó", "description": "Readings"}}, "event_category": "Literature"},
  {"id": "d", "category": null, "formatted_address": "Laugavegur 1", "image_url": "d.jpg", "price": "free"}
]`

func decodeFeed(t *testing.T) []Event {
	t.Helper()
	var events []Event
	if err := json.Unmarshal([]byte(mixedFeed), &events); err != nil {
		t.Fatalf("unmarshal feed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	return events
}

func TestResolvers(t *testing.T) {
	events := decodeFeed(t)

	tests := []struct {
		name       string
		ev         Event
		id         string
		title      string
		location   string
		categories []string
		dateText   string
	}{
		{"plain keys", events[0], "a", "Jazz Night", "Harpa", []string{"Music", "Nightlife"}, "2024-01-01T20:00:00Z"},
		{"alternate keys", events[1], "42", "Art Walk", "Reykjavík", []string{"Art"}, "2024-06-01"},
		{"nested language", events[2], "c", "Poetry", "Iðnó", []string{"Literature"}, ""},
		{"mostly empty", events[3], "d", "", "Laugavegur 1", []string{""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.ID.String(); got != tt.id {
				t.Errorf("id = %q, want %q", got, tt.id)
			}
			if got := tt.ev.ResolvedTitle(); got != tt.title {
				t.Errorf("title = %q, want %q", got, tt.title)
			}
			if got := tt.ev.ResolvedLocation(); got != tt.location {
				t.Errorf("location = %q, want %q", got, tt.location)
			}
			if got := tt.ev.ResolvedCategories(); !reflect.DeepEqual(got, tt.categories) {
				t.Errorf("categories = %q, want %q", got, tt.categories)
			}
			if got := tt.ev.ResolvedDateText(); got != tt.dateText {
				t.Errorf("date text = %q, want %q", got, tt.dateText)
			}
		})
	}

	if got := events[2].ResolvedDescription(); got != "Readings" {
		t.Errorf("nested description = %q", got)
	}
	if got := events[3].ResolvedImage(); got != "d.jpg" {
		t.Errorf("image = %q", got)
	}
	if got := events[1].Price.String(); got != "1500" {
		t.Errorf("numeric price = %q", got)
	}
	if got := events[3].Price.String(); got != "free" {
		t.Errorf("text price = %q", got)
	}
}

func TestFirstNonEmptyWins(t *testing.T) {
	ev := Event{Title: "   ", TitleEn: "Fallback"}
	if got := ev.ResolvedTitle(); got != "   " {
		t.Errorf("title = %q, want the whitespace title", got)
	}
	ev.Title = ""
	if got := ev.ResolvedTitle(); got != "Fallback" {
		t.Errorf("title = %q, want Fallback", got)
	}
}

func TestCategoryListWins(t *testing.T) {
	ev := Event{Category: CategoryList(), EventCategory: "Legacy"}
	if got := ev.ResolvedCategories(); len(got) != 0 {
		t.Errorf("empty list should stay empty, got %q", got)
	}
}

func TestResolvedDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-01-01 18:30", time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC), true},
		{"2024-01-01T18:30:05", time.Date(2024, 1, 1, 18, 30, 5, 0, time.UTC), true},
		{"2024-01-01T18:30:05Z", time.Date(2024, 1, 1, 18, 30, 5, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"next tuesday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	ev := Event{Start: "garbage", Date: "2024-01-01"}
	if !ev.ResolvedDate().IsZero() {
		t.Error("unparsable start must resolve to the zero sentinel, not fall through to date")
	}
}

func TestCategoryRoundTrip(t *testing.T) {
	events := decodeFeed(t)
	out, err := json.Marshal(events[:2])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `"category":["Music","Nightlife"]`) {
		t.Errorf("list category not preserved: %s", s)
	}
	if !strings.Contains(s, `"category":"Art"`) {
		t.Errorf("string category not preserved: %s", s)
	}
	if !strings.Contains(s, `"price":"1500"`) {
		t.Errorf("price should marshal as text: %s", s)
	}
}

func TestWrongTypedFieldsDecode(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		title      string
		location   string
		categories []string
	}{
		{"numeric category", `{"id":"b","category":5}`, "", "", []string{"5"}},
		{"numeric title", `{"id":"c","title":2024}`, "2024", "", []string{""}},
		{"object category", `{"id":"d","category":{"a":1},"event_category":"Art"}`, "", "", []string{"Art"}},
		{"list with mixed values", `{"id":"e","category":["Music",7,{"x":1},null]}`, "", "", []string{"Music", "7", "", ""}},
		{"boolean location", `{"id":"f","location":true}`, "", "true", []string{""}},
		{"array title falls through", `{"id":"g","title":["x"],"title_en":"Walk"}`, "Walk", "", []string{""}},
		{"language is a string", `{"id":"h","language":"en","city":"Reykjavík"}`, "", "Reykjavík", []string{""}},
		{"en block is a number", `{"id":"i","language":{"en":3}}`, "", "", []string{""}},
		{"nested wrong types", `{"id":"j","language":{"en":{"title":12,"place":{"a":1}}}}`, "12", "", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			if err := json.Unmarshal([]byte(tt.in), &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := ev.ResolvedTitle(); got != tt.title {
				t.Errorf("title = %q, want %q", got, tt.title)
			}
			if got := ev.ResolvedLocation(); got != tt.location {
				t.Errorf("location = %q, want %q", got, tt.location)
			}
			if got := ev.ResolvedCategories(); !reflect.DeepEqual(got, tt.categories) {
				t.Errorf("categories = %q, want %q", got, tt.categories)
			}
		})
	}
}
