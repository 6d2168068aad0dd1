package web

import (
	"net/http"
	"strconv"
	"time"

	"eventfinder/internal/engine"
	"eventfinder/internal/model"
)

// eventDTO is the resolved view of a record: every fallback chain has
// already been applied.
type eventDTO struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Location    string     `json:"location"`
	Categories  []string   `json:"categories"`
	Date        string     `json:"date,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Description string     `json:"description,omitempty"`
	Image       string     `json:"image,omitempty"`
	Price       string     `json:"price,omitempty"`
	Organizer   string     `json:"organizer,omitempty"`
	URL         string     `json:"url,omitempty"`
	Favorite    bool       `json:"favorite"`
}

func toDTO(ev model.Event, favorite bool) eventDTO {
	d := eventDTO{
		ID:          ev.ID.String(),
		Title:       ev.ResolvedTitle(),
		Location:    ev.ResolvedLocation(),
		Categories:  ev.ResolvedCategories(),
		Date:        ev.ResolvedDateText(),
		Description: ev.ResolvedDescription(),
		Image:       ev.ResolvedImage(),
		Price:       ev.Price.String(),
		Organizer:   ev.Organizer.String(),
		URL:         ev.URL.String(),
		Favorite:    favorite,
	}
	if t := ev.ResolvedDate(); !t.IsZero() {
		d.Start = &t
		if end := ev.ResolvedEnd(); !end.IsZero() {
			d.End = &end
		}
	}
	return d
}

func (s *Server) toDTOs(events []model.Event) []eventDTO {
	favs := make(map[string]struct{})
	for _, id := range s.prefs.Get().Favorites {
		favs[id] = struct{}{}
	}
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		_, fav := favs[ev.ID.String()]
		out = append(out, toDTO(ev, fav))
	}
	return out
}

type eventsResponse struct {
	Events    []eventDTO `json:"events"`
	Count     int        `json:"count"`
	Total     int        `json:"total"`
	Query     string     `json:"query,omitempty"`
	Category  string     `json:"category"`
	Location  string     `json:"location"`
	Sort      string     `json:"sort"`
	Direction string     `json:"dir"`
}

// handleEvents: GET /api/events
//
// remember=true also records q in the search history.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := engine.ParseState(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	selected := s.engine.Select(events, st)

	if remember, _ := strconv.ParseBool(q.Get("remember")); remember {
		s.prefs.AddSearch(st.Query)
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:    s.toDTOs(selected),
		Count:     len(selected),
		Total:     len(events),
		Query:     st.Query,
		Category:  st.Category,
		Location:  st.Location,
		Sort:      string(st.Sort),
		Direction: string(st.Direction),
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	ev, found := s.engine.Find(events, r.PathValue("id"))
	if !found {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(ev, s.prefs.IsFavorite(ev.ID.String())))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": s.engine.Categories(events)})
}

func (s *Server) handleCategoryEvents(w http.ResponseWriter, r *http.Request) {
	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	list := s.engine.ByCategory(events, r.PathValue("name"))
	writeJSON(w, http.StatusOK, map[string][]eventDTO{"events": s.toDTOs(list)})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"locations": s.engine.Locations(events)})
}

func (s *Server) handleLocationEvents(w http.ResponseWriter, r *http.Request) {
	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	list := s.engine.ByLocation(events, r.PathValue("name"))
	writeJSON(w, http.StatusOK, map[string][]eventDTO{"events": s.toDTOs(list)})
}

// handleFeatured: GET /api/featured?count=N (default featured_count).
func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	n, err := parseIntDefault(r.URL.Query().Get("count"), s.cfg.FeaturedCount)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
		return
	}
	events, ok := s.currentEvents(w, r)
	if !ok {
		return
	}
	list := s.engine.Featured(events, s.now(), n)
	writeJSON(w, http.StatusOK, map[string][]eventDTO{"events": s.toDTOs(list)})
}
