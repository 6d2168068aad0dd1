package model

import (
	"strings"
	"time"
)

// Field resolution: each logical attribute walks its keys in a fixed order
// and the first non-empty value wins. The result may be "".

func firstNonEmpty(vals ...Text) string {
	for _, v := range vals {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func (e Event) en() Localized {
	if e.Language == nil || e.Language.EN == nil {
		return Localized{}
	}
	return *e.Language.EN
}

// ResolvedTitle: title → title_en → language.en.title.
func (e Event) ResolvedTitle() string {
	return firstNonEmpty(e.Title, e.TitleEn, e.en().Title)
}

// ResolvedLocation: location → formatted_address → city → language.en.place.
func (e Event) ResolvedLocation() string {
	return firstNonEmpty(e.Location, e.FormattedAddress, e.City, e.en().Place)
}

// ResolvedCategories returns the category list as-is when the feed sent a
// list. Otherwise it is a one-element list of category → event_category,
// which may be [""].
func (e Event) ResolvedCategories() []string {
	if e.Category.IsList {
		return append([]string(nil), e.Category.List...)
	}
	return []string{firstNonEmpty(Text(e.Category.Value), e.EventCategory)}
}

// ResolvedDescription: description → language.en.description.
func (e Event) ResolvedDescription() string {
	return firstNonEmpty(e.Description, e.en().Description)
}

// ResolvedImage: image → image_url → thumbnail.
func (e Event) ResolvedImage() string {
	return firstNonEmpty(e.Image, e.ImageURL, e.Thumbnail)
}

// ResolvedDateText: start → date.
func (e Event) ResolvedDateText() string {
	return firstNonEmpty(e.Start, e.Date)
}

// ResolvedDate parses ResolvedDateText. Missing or unparsable dates yield
// the zero time, which sorts before every real date.
func (e Event) ResolvedDate() time.Time {
	t, _ := ParseDate(e.ResolvedDateText())
	return t
}

// ResolvedEnd parses `end`, falling back to the resolved start.
func (e Event) ResolvedEnd() time.Time {
	if t, ok := ParseDate(string(e.End)); ok {
		return t
	}
	return e.ResolvedDate()
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate accepts the date shapes seen in feeds. Zone-less values are read
// as UTC so that ordering does not depend on the host timezone.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
