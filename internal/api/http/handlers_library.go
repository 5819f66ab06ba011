package apihttp

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/store"
)

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := s.db.ListPlugins(r.Context())
	if err != nil {
		s.logger.Error("list plugins failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not list plugins")
		return
	}
	if plugins == nil {
		plugins = []store.PluginRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": plugins})
}

func (s *Server) handleLibraryFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file id must be an integer")
		return
	}
	rec, info, err := s.db.GetFileByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "store_error", "could not load file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": rec, "info": info})
}

func (s *Server) handleLibraryPluginData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file id must be an integer")
		return
	}
	analyses, err := s.db.LoadAnalyses(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "could not load plugin data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": analyses.Plugins})
}
