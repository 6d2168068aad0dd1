package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	appLog "eventfinder/internal/log"
	"eventfinder/internal/model"
)

// ErrDataUnavailable is returned when neither the primary nor the fallback
// source produced events.
var ErrDataUnavailable = errors.New("event data unavailable")

// Result is the outcome of a successful Load.
type Result struct {
	Events []model.Event
	// Source is the source that produced Events.
	Source Source
	// Fallback is true when the primary failed and the fallback served.
	Fallback bool
	// PrimaryErr is why the primary failed, if it did.
	PrimaryErr error
}

// Options configures a Loader.
type Options struct {
	Primary  Source
	Fallback Source

	Client    *http.Client
	UserAgent string

	// HorizonDays / BackfillDays bound recurrence expansion for ICS feeds.
	HorizonDays  int
	BackfillDays int
	Location     *time.Location

	// Now is injectable for tests.
	Now func() time.Time
}

// Loader fetches the full event list from a primary source, falling back to
// a static resource when the primary fails.
type Loader struct {
	opts Options
}

// NewLoader builds a Loader. At least one of Primary or Fallback must be set.
func NewLoader(opts Options) (*Loader, error) {
	if opts.Primary.URL == "" && opts.Fallback.URL == "" {
		return nil, errors.New("feed: no primary or fallback source configured")
	}
	if opts.Primary.Name == "" {
		opts.Primary.Name = "primary"
	}
	if opts.Fallback.Name == "" {
		opts.Fallback.Name = "fallback"
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(0)
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 90
	}
	if opts.BackfillDays < 0 {
		opts.BackfillDays = 0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loader{opts: opts}, nil
}

// Load tries the primary source and, only after it has fully failed, the
// fallback. There is no retry; the first success wins.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	var primaryErr error
	if l.opts.Primary.URL != "" {
		events, err := l.loadSource(ctx, l.opts.Primary)
		if err == nil {
			return Result{Events: events, Source: l.opts.Primary}, nil
		}
		primaryErr = err
		appLog.Warn("primary event source failed, trying fallback",
			"err", err, "url", appLog.RedactURL(l.opts.Primary.URL))
	} else {
		primaryErr = errors.New("no primary source configured")
	}

	if l.opts.Fallback.URL == "" {
		return Result{}, fmt.Errorf("%w: primary: %v", ErrDataUnavailable, primaryErr)
	}

	events, err := l.loadSource(ctx, l.opts.Fallback)
	if err != nil {
		appLog.Error("fallback event source failed", err, "url", appLog.RedactURL(l.opts.Fallback.URL))
		return Result{}, fmt.Errorf("%w: primary: %v; fallback: %v", ErrDataUnavailable, primaryErr, err)
	}
	return Result{
		Events:     events,
		Source:     l.opts.Fallback,
		Fallback:   true,
		PrimaryErr: primaryErr,
	}, nil
}

func (l *Loader) loadSource(ctx context.Context, src Source) ([]model.Event, error) {
	body, err := read(ctx, l.opts.Client, src, l.opts.UserAgent)
	if err != nil {
		return nil, err
	}

	switch detectFormat(src, body) {
	case FormatICS:
		parsed, err := ParseICS(src, body)
		if err != nil {
			return nil, err
		}
		now := l.opts.Now().In(l.opts.Location)
		return Expand(parsed, ExpandConfig{
			DisplayLocation: l.opts.Location,
			RangeStart:      now.AddDate(0, 0, -l.opts.BackfillDays),
			RangeEnd:        now.AddDate(0, 0, l.opts.HorizonDays),
		})
	default:
		events, err := decodeEvents(body)
		if err != nil {
			return nil, err
		}
		appLog.Debug("event source decoded", "source", src.Name, "event_count", len(events))
		return events, nil
	}
}
