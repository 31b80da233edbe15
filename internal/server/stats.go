package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/castwatch/castwatch/pkg/stats"
)

// handleMemberStats returns a subject's aggregate statistics and session
// history over the requested period.
func (s *Server) handleMemberStats(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}

	member, err := s.platform.Aggregator().Member(r.Context(),
		r.PathValue("scope"), r.PathValue("subject"), period)
	if err != nil {
		s.internalError(w, r, "aggregating member stats", err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// handleTop returns the scope's ranking by time or session count. When no
// limit is given the scope's configured ranking size applies.
func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}

	metric, err := stats.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scopeID := r.PathValue("scope")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	} else if cfg, err := s.platform.ScopeStore().Get(r.Context(), scopeID); err == nil && cfg != nil {
		limit = cfg.TopLimit
	}

	entries, err := s.platform.Aggregator().Top(r.Context(), scopeID, metric, period, limit)
	if err != nil {
		s.internalError(w, r, "ranking scope", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metric":  string(metric),
		"period":  period.String(),
		"entries": entries,
	})
}

// handleHeatmap returns the 7x24 UTC activity grid. The subject comes from
// the path on the per-subject route or the subject query parameter on the
// scope route; with neither, the whole scope is aggregated.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}

	subject := r.PathValue("subject")
	if subject == "" {
		subject = r.URL.Query().Get("subject")
	}

	cells, err := s.platform.Aggregator().Heatmap(r.Context(),
		r.PathValue("scope"), subject, period)
	if err != nil {
		s.internalError(w, r, "building heatmap", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": cells})
}

// handlePartners returns schedule-complementary streaming partner
// suggestions for the subject.
func (s *Server) handlePartners(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	entries, err := s.platform.Aggregator().Partners(r.Context(),
		r.PathValue("scope"), r.PathValue("subject"), period, limit)
	if err != nil {
		s.internalError(w, r, "suggesting partners", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleExport streams the subject's session history as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}

	subject := r.PathValue("subject")
	rows, err := s.platform.Aggregator().ExportRows(r.Context(),
		r.PathValue("scope"), subject, period)
	if err != nil {
		s.internalError(w, r, "exporting sessions", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "sessions_"+subject+".csv"))
	if err := stats.WriteCSV(w, rows); err != nil {
		s.logger.Error("writing csv export failed",
			"scope", r.PathValue("scope"), "subject", subject, "error", err)
	}
}

// handleBadges returns the subject's badge progress.
func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.platform.Badges().MemberBadges(r.Context(),
		r.PathValue("scope"), r.PathValue("subject"))
	if err != nil {
		s.internalError(w, r, "evaluating badges", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": statuses})
}

// handleAchievements returns the scope-wide achievement holders.
func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.platform.Badges().ScopeAchievements(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.internalError(w, r, "evaluating achievements", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": statuses})
}

// internalError logs the failure and reports a generic 500.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, during string, err error) {
	s.logger.Error(during+" failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
