package web

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	appLog "eventfinder/internal/log"
	"eventfinder/internal/model"
)

const productID = "-//eventfinder//favorites//EN"

// favoritesCalendar converts events into a VCALENDAR. Records without a
// usable date are skipped: a VEVENT needs a DTSTART.
func favoritesCalendar(events []model.Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, ev := range events {
		start := ev.ResolvedDate()
		if start.IsZero() {
			appLog.Debug("favorite has no date; left out of export", "id", ev.ID.String())
			continue
		}
		cal.Children = append(cal.Children, toVEvent(ev, start, stamp))
	}
	return cal
}

func toVEvent(ev model.Event, start, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.ID.String()+"@eventfinder")
	ve.Props.SetText(ical.PropSummary, ev.ResolvedTitle())
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

	if isDateOnly(ev.ResolvedDateText()) {
		ve.Props.SetDate(ical.PropDateTimeStart, start)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, start)
		if end := ev.ResolvedEnd(); end.After(start) {
			ve.Props.SetDateTime(ical.PropDateTimeEnd, end)
		}
	}

	if desc := ev.ResolvedDescription(); desc != "" {
		ve.Props.SetText(ical.PropDescription, desc)
	}
	if loc := ev.ResolvedLocation(); loc != "" {
		ve.Props.SetText(ical.PropLocation, loc)
	}

	cats := make([]string, 0)
	for _, c := range ev.ResolvedCategories() {
		if c != "" {
			cats = append(cats, categoryEscaper.Replace(c))
		}
	}
	if len(cats) > 0 {
		// CATEGORIES is a comma-separated list of TEXT values; each value is
		// escaped on its own so SetText cannot be used on the joined list.
		p := ical.NewProp(ical.PropCategories)
		p.Value = strings.Join(cats, ",")
		ve.Props.Set(p)
	}
	return ve
}

var categoryEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", "",
)

func isDateOnly(s string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	return err == nil
}

// handleFavoritesICS: GET /api/favorites.ics
func (s *Server) handleFavoritesICS(w http.ResponseWriter, r *http.Request) {
	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	favs := s.engine.FindAll(events, s.prefs.Get().Favorites)
	cal := favoritesCalendar(favs, s.now())

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		appLog.Error("failed to encode favorites calendar", err)
		writeError(w, http.StatusInternalServerError, "failed to encode calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="favorites.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
