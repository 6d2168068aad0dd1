package engine

import (
	"fmt"
	"net/url"
	"time"

	"eventfinder/internal/model"
)

// ParseState builds a State from request-style parameters:
//
//	q, category, location, sort (date|title|name|location), dir (asc|desc),
//	from, to (any shape model.ParseDate accepts; inclusive)
//
// Missing parameters keep DefaultState values. The result is validated.
func ParseState(p url.Values) (State, error) {
	st := DefaultState().WithQuery(p.Get("q"))
	if v := p.Get("category"); v != "" {
		st = st.WithCategory(v)
	}
	if v := p.Get("location"); v != "" {
		st = st.WithLocation(v)
	}

	key, err := ParseSortKey(p.Get("sort"))
	if err != nil {
		return st, err
	}
	dir, err := ParseDirection(p.Get("dir"))
	if err != nil {
		return st, err
	}
	st = st.WithSort(key, dir)

	from, err := parseBound(p.Get("from"))
	if err != nil {
		return st, err
	}
	to, err := parseBound(p.Get("to"))
	if err != nil {
		return st, err
	}
	st = st.WithRange(from, to)

	return st, st.Validate()
}

func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, ok := model.ParseDate(v)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unparsable date %q", ErrInvalidState, v)
	}
	return t, nil
}
