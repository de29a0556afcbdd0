package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/setup"
)

// handleListEntries returns the config entries.
//
// Query parameters:
//   - include_ignored: also return ignore placeholders (default false)
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	includeIgnored := false
	if v := r.URL.Query().Get("include_ignored"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "include_ignored must be a boolean")
			return
		}
		includeIgnored = b
	}

	entries, err := s.entries.List(r.Context(), includeIgnored)
	if err != nil {
		s.logger.Error("listing entries failed", "error", err)
		writeInternalError(w, "failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleGetEntry returns one entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteEntry unloads the entry's receiver and removes the entry.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.entries.Get(r.Context(), id); err != nil {
		s.writeEntryError(w, err)
		return
	}

	if s.receivers != nil {
		if err := s.receivers.Unload(id); err != nil && !errors.Is(err, setup.ErrNotLoaded) {
			s.logger.Warn("unloading receiver failed", "entry_id", id, "error", err)
		}
	}
	if err := s.entries.Delete(r.Context(), id); err != nil {
		s.writeEntryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetEntryState returns the last state snapshot of a set-up entry.
func (s *Server) handleGetEntryState(w http.ResponseWriter, r *http.Request) {
	if s.receivers == nil {
		writeUnavailable(w, "receivers not available")
		return
	}
	state, err := s.receivers.State(chi.URLParam(r, "id"))
	if err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleEntryCommand sends a command to a set-up entry's receiver.
func (s *Server) handleEntryCommand(w http.ResponseWriter, r *http.Request) {
	if s.receivers == nil {
		writeUnavailable(w, "receivers not available")
		return
	}
	var cmd setup.CommandMessage
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.receivers.Command(r.Context(), chi.URLParam(r, "id"), cmd); err != nil {
		s.writeEntryError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) writeEntryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entry.ErrEntryNotFound):
		writeNotFound(w, "entry not found")
	case errors.Is(err, setup.ErrNotLoaded):
		writeError(w, http.StatusConflict, ErrCodeConflict, "receiver is not set up")
	case errors.Is(err, setup.ErrInvalidCommand):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("entry request failed", "error", err)
		writeInternalError(w, "entry request failed")
	}
}
