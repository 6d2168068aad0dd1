package web

import (
	"encoding/json"
	"net/http"

	"eventfinder/internal/model"
	"eventfinder/internal/prefs"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleGetPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.prefs.Get())
}

// handlePatchPreferences merges the body onto the stored blob. Keys that are
// absent from the body are left as they are.
func (s *Server) handlePatchPreferences(w http.ResponseWriter, r *http.Request) {
	var patch prefs.Patch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.prefs.Save(patch))
}

type favoritesResponse struct {
	IDs    []string   `json:"ids"`
	Events []eventDTO `json:"events"`
}

// handleFavorites lists favorite ids and, when event data is available, the
// matching records. Ids whose event is gone are still listed.
func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	ids := s.prefs.Get().Favorites

	var events []model.Event
	if all, err := s.events.Events(r.Context()); err == nil {
		events = all
	} else if snap, ok := s.events.Snapshot(); ok {
		w.Header().Set("X-Data-Stale", "true")
		events = snap.Events
	}

	matched := s.engine.FindAll(events, ids)
	dtos := make([]eventDTO, 0, len(matched))
	for _, ev := range matched {
		dtos = append(dtos, toDTO(ev, true))
	}
	writeJSON(w, http.StatusOK, favoritesResponse{IDs: ids, Events: dtos})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prefs.AddFavorite(r.PathValue("id")))
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prefs.RemoveFavorite(r.PathValue("id")))
}

type historyResponse struct {
	History []string `json:"history"`
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, historyResponse{History: s.prefs.Get().SearchHistory})
}

// handleAddHistory: POST /api/history {"query": "..."}. A blank query is
// accepted and ignored.
func (s *Server) handleAddHistory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid history body: "+err.Error())
		return
	}
	p := s.prefs.AddSearch(body.Query)
	writeJSON(w, http.StatusOK, historyResponse{History: p.SearchHistory})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	p := s.prefs.ClearHistory()
	writeJSON(w, http.StatusOK, historyResponse{History: p.SearchHistory})
}
