package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/flow"
)

// startFlowRequest is the body of POST /flows.
type startFlowRequest struct {
	Source entry.Source      `json:"source"`
	Data   map[string]string `json:"data,omitempty"`
}

// handleListFlows returns the in-progress flows.
func (s *Server) handleListFlows(w http.ResponseWriter, _ *http.Request) {
	flows := s.flows.List()
	writeJSON(w, http.StatusOK, map[string]any{"flows": flows, "count": len(flows)})
}

// handleStartFlow starts a user, ignore or unignore flow.
func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	var req startFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Source == "" {
		req.Source = entry.SourceUser
	}

	res, err := s.flows.Start(r.Context(), req.Source, req.Data)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetFlow returns the current step of a flow.
func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	res, err := s.flows.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleStepFlow submits form input to a flow. An empty body submits no
// fields, which confirms a confirm step.
func (s *Server) handleStepFlow(w http.ResponseWriter, r *http.Request) {
	input := map[string]string{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.flows.Step(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAbortFlow abandons a flow.
func (s *Server) handleAbortFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Abort(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrFlowNotFound):
		writeNotFound(w, "flow not found")
	case errors.Is(err, flow.ErrInvalidSource), errors.Is(err, flow.ErrInvalidInput):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("flow step failed", "error", err)
		writeInternalError(w, "flow step failed")
	}
}
