package apihttp

import (
	"net/http"
	"strconv"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/store"
)

func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.db.GetStatsSummary(r.Context())
	if err != nil {
		s.logger.Error("stats summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not compute summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStatsRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.db.ListRecentStats(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not list stats")
		return
	}
	if rows == nil {
		rows = []domain.ProcessingStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": rows})
}

func (s *Server) handleStatsTrends(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	buckets, err := s.db.GetStatsTrends(r.Context(), days)
	if err != nil {
		s.logger.Error("stats trends failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not compute trends")
		return
	}
	if buckets == nil {
		buckets = []store.TrendBucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": buckets})
}
