package model

import (
	"bytes"
	"encoding/json"
)

// Event is a single event record as delivered by a feed.
//
// Feeds disagree on naming: the same logical field may live under several
// keys, or be nested under a language block. Every field is therefore
// optional and consumers must go through the resolver methods in
// resolve.go instead of reading fields directly.
type Event struct {
	ID Text `json:"id"`

	Title    Text       `json:"title,omitempty"`
	TitleEn  Text       `json:"title_en,omitempty"`
	Language *Languages `json:"language,omitempty"`

	Start Text `json:"start,omitempty"`
	End   Text `json:"end,omitempty"`
	Date  Text `json:"date,omitempty"`

	Location         Text `json:"location,omitempty"`
	FormattedAddress Text `json:"formatted_address,omitempty"`
	City             Text `json:"city,omitempty"`

	Category      Category `json:"category,omitzero"`
	EventCategory Text     `json:"event_category,omitempty"`

	Description Text `json:"description,omitempty"`

	Image     Text `json:"image,omitempty"`
	ImageURL  Text `json:"image_url,omitempty"`
	Thumbnail Text `json:"thumbnail,omitempty"`

	Price     Text `json:"price,omitzero"`
	Organizer Text `json:"organizer,omitempty"`
	URL       Text `json:"url,omitempty"`
}

// Languages holds per-language overrides. Only English is consulted today.
// Anything other than an object decodes to no overrides.
type Languages struct {
	EN *Localized `json:"en,omitempty"`
}

func (l *Languages) UnmarshalJSON(b []byte) error {
	*l = Languages{}
	if !isObject(b) {
		return nil
	}
	type plain Languages
	return json.Unmarshal(b, (*plain)(l))
}

// Localized is the nested `language.<code>` block.
type Localized struct {
	Title       Text `json:"title,omitempty"`
	Place       Text `json:"place,omitempty"`
	Description Text `json:"description,omitempty"`
}

func (l *Localized) UnmarshalJSON(b []byte) error {
	*l = Localized{}
	if !isObject(b) {
		return nil
	}
	type plain Localized
	return json.Unmarshal(b, (*plain)(l))
}

// Text is a string that also accepts other JSON scalars. Numbers and
// booleans keep their literal text; objects and arrays become "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	*t = Text(scalarText(b))
	return nil
}

// IsZero lets `omitzero` drop empty values.
func (t Text) IsZero() bool { return t == "" }

func (t Text) String() string { return string(t) }

// scalarText renders a raw JSON value as text. Strings are unquoted;
// numbers and booleans are kept verbatim; null, objects and arrays yield "".
func scalarText(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(b)
	}
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

// Category is the `category` field, which is either a single string or a
// list of strings. The original shape is kept so records marshal back the
// way they arrived.
type Category struct {
	Value  string
	List   []string
	IsList bool
}

// SingleCategory builds a string-shaped Category.
func SingleCategory(v string) Category { return Category{Value: v} }

// CategoryList builds a list-shaped Category.
func CategoryList(v ...string) Category {
	return Category{List: append([]string(nil), v...), IsList: true}
}

// UnmarshalJSON never fails: a list keeps its elements as text, any other
// scalar becomes a single value, and an object is treated as absent.
func (c *Category) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*c = Category{}
	if len(b) == 0 || b[0] != '[' {
		c.Value = scalarText(b)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	list := make([]string, 0, len(raw))
	for _, v := range raw {
		list = append(list, scalarText(v))
	}
	c.List = list
	c.IsList = true
	return nil
}

func (c Category) MarshalJSON() ([]byte, error) {
	if c.IsList {
		if c.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.List)
	}
	return json.Marshal(c.Value)
}

func (c Category) IsZero() bool {
	return !c.IsList && c.Value == ""
}
