package feed

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventfinder/internal/log"
	"eventfinder/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls how recurring ICS events become event records.
type ExpandConfig struct {
	// DisplayLocation is the zone start/end strings are written in.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound recurrence expansion (inclusive).
	// Non-recurring events are always kept.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means the default.
	MaxOccurrencesPerEvent int
}

// Expand turns parsed VEVENTs into event records, expanding RRULEs within
// the configured range and applying EXDATE and RECURRENCE-ID overrides.
// Output order follows the input order of base events.
func Expand(events []ParsedEvent, cfg ExpandConfig) ([]model.Event, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overridesByUID := make(map[string][]ParsedEvent)
	var bases []ParsedEvent
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]model.Event, 0, len(bases))
	for _, ev := range bases {
		ov := overridesByUID[ev.UID]
		if ev.RawRRule == "" {
			if o, ok := findOverrideForStart(ov, ev.Start); ok {
				ev = o
			}
			out = append(out, toRecord(ev, ev.UID, ev.Start, ev.End, cfg.DisplayLocation))
			continue
		}
		occ, hitCap := expandRecurring(ev, ov, cfg)
		if hitCap {
			appLog.Warn("expand: occurrences truncated", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		}
		out = append(out, occ...)
	}
	return out, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		end := start.Add(dur)
		if ev.AllDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			end = start.AddDate(0, 0, 1)
		}

		base := ev
		id := ev.UID + "/" + start.UTC().Format("20060102T150405Z")
		if o, ok := findOverrideForStart(overrides, start); ok {
			base = o
			start, end = o.Start, o.End
		}
		out = append(out, toRecord(base, id, start, end, cfg.DisplayLocation))
	}
	return out, hitCap
}

// findOverrideForStart returns the override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func toRecord(ev ParsedEvent, id string, start, end time.Time, loc *time.Location) model.Event {
	rec := model.Event{
		ID:          model.Text(id),
		Title:       model.Text(ev.Summary),
		Description: model.Text(ev.Description),
		Location:    model.Text(ev.Location),
		Organizer:   model.Text(ev.Organizer),
		URL:         model.Text(ev.URL),
		Image:       model.Text(ev.Attach),
	}
	if len(ev.Categories) > 0 {
		rec.Category = model.CategoryList(ev.Categories...)
	}
	if ev.AllDay {
		rec.Start = model.Text(start.Format("2006-01-02"))
		rec.End = model.Text(end.Format("2006-01-02"))
	} else {
		rec.Start = model.Text(start.In(loc).Format(time.RFC3339))
		rec.End = model.Text(end.In(loc).Format(time.RFC3339))
	}
	return rec
}
