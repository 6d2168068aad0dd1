package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidState is wrapped by Validate failures.
var ErrInvalidState = errors.New("invalid filter state")

// Any is the "no filter" value for Category and Location.
const Any = "any"

type SortKey string

const (
	SortByDate     SortKey = "date"
	SortByTitle    SortKey = "title"
	SortByLocation SortKey = "location"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseSortKey accepts "name" as an alias for "title". Empty means date.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date":
		return SortByDate, nil
	case "title", "name":
		return SortByTitle, nil
	case "location":
		return SortByLocation, nil
	default:
		return "", fmt.Errorf("%w: unknown sort key %q", ErrInvalidState, s)
	}
}

// ParseDirection accepts asc/desc and their long forms. Empty means asc.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Asc, nil
	case "desc", "descending":
		return Desc, nil
	default:
		return "", fmt.Errorf("%w: unknown sort direction %q", ErrInvalidState, s)
	}
}

// State is one immutable snapshot of what the user asked for. The With*
// methods return a modified copy; nothing mutates a State in place.
type State struct {
	// Query is matched case-insensitively. Empty means no text filter.
	Query string
	// Category and Location are exact-match filters. "" or Any disables.
	Category string
	Location string

	Sort      SortKey
	Direction Direction

	// From / To bound the resolved date, inclusive. Zero means unbounded.
	From time.Time
	To   time.Time
}

// DefaultState sorts by date ascending with no filters.
func DefaultState() State {
	return State{Category: Any, Location: Any, Sort: SortByDate, Direction: Asc}
}

func (s State) WithQuery(q string) State {
	s.Query = strings.ToLower(strings.TrimSpace(q))
	return s
}

func (s State) WithCategory(c string) State {
	s.Category = c
	return s
}

func (s State) WithLocation(l string) State {
	s.Location = l
	return s
}

func (s State) WithSort(key SortKey, dir Direction) State {
	s.Sort = key
	s.Direction = dir
	return s
}

func (s State) WithRange(from, to time.Time) State {
	s.From = from
	s.To = to
	return s
}

// Validate rejects unknown sort settings and inverted ranges.
func (s State) Validate() error {
	switch s.Sort {
	case "", SortByDate, SortByTitle, SortByLocation:
	default:
		return fmt.Errorf("%w: unknown sort key %q", ErrInvalidState, s.Sort)
	}
	switch s.Direction {
	case "", Asc, Desc:
	default:
		return fmt.Errorf("%w: unknown sort direction %q", ErrInvalidState, s.Direction)
	}
	if !s.From.IsZero() && !s.To.IsZero() && s.To.Before(s.From) {
		return fmt.Errorf("%w: range end %s is before start %s", ErrInvalidState,
			s.To.Format(time.RFC3339), s.From.Format(time.RFC3339))
	}
	return nil
}

func active(filter string) bool {
	return filter != "" && filter != Any
}
