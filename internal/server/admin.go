package server

import (
	"encoding/json"
	"net/http"

	"github.com/castwatch/castwatch/pkg/scopes"
)

// handleGetConfig returns the scope's stored settings, or the defaults when
// none are stored yet.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	scopeID := r.PathValue("scope")
	cfg, err := s.platform.ScopeStore().Get(r.Context(), scopeID)
	if err != nil {
		s.internalError(w, r, "loading scope config", err)
		return
	}
	if cfg == nil {
		defaults := scopes.DefaultConfig(scopeID)
		writeJSON(w, http.StatusOK, defaults)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePutConfig stores the scope's settings. Out-of-range values are
// clamped by the store, and the stored result is returned.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg scopes.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed config body")
		return
	}
	cfg.ScopeID = r.PathValue("scope")

	if err := s.platform.ScopeStore().Put(r.Context(), cfg); err != nil {
		s.internalError(w, r, "storing scope config", err)
		return
	}

	stored, err := s.platform.ScopeStore().Get(r.Context(), cfg.ScopeID)
	if err != nil || stored == nil {
		s.internalError(w, r, "reading back scope config", err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// handleDeleteConfig removes the scope's settings and filter entries.
func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.platform.ScopeStore().Delete(r.Context(), r.PathValue("scope")); err != nil {
		s.internalError(w, r, "deleting scope config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSubjectFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := s.platform.ScopeStore().SubjectFlags(r.Context(),
		r.PathValue("scope"), r.PathValue("subject"))
	if err != nil {
		s.internalError(w, r, "loading subject flags", err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handlePutSubjectFlags(w http.ResponseWriter, r *http.Request) {
	var flags scopes.Flags
	if err := json.NewDecoder(r.Body).Decode(&flags); err != nil {
		writeError(w, http.StatusBadRequest, "malformed flags body")
		return
	}
	if err := s.platform.ScopeStore().SetSubjectFlags(r.Context(),
		r.PathValue("scope"), r.PathValue("subject"), flags); err != nil {
		s.internalError(w, r, "storing subject flags", err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handleGetGroupFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := s.platform.ScopeStore().GroupFlags(r.Context(),
		r.PathValue("scope"), r.PathValue("group"))
	if err != nil {
		s.internalError(w, r, "loading group flags", err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handlePutGroupFlags(w http.ResponseWriter, r *http.Request) {
	var flags scopes.Flags
	if err := json.NewDecoder(r.Body).Decode(&flags); err != nil {
		writeError(w, http.StatusBadRequest, "malformed flags body")
		return
	}
	if err := s.platform.ScopeStore().SetGroupFlags(r.Context(),
		r.PathValue("scope"), r.PathValue("group"), flags); err != nil {
		s.internalError(w, r, "storing group flags", err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}
