package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/castwatch/castwatch/pkg/ingest"
)

// handleEvent accepts a presence event and queues it for reconciliation.
// The scope in the path wins over any scope named in the body.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event ingest.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "malformed event body")
		return
	}
	event.ScopeID = r.PathValue("scope")

	// Validate here so the assigned event ID can be returned to the caller.
	if err := event.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.platform.Dispatcher().Dispatch(r.Context(), event); err != nil {
		if errors.Is(err, ingest.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "event queue unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": event.ID})
}
