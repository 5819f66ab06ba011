package apihttp

import (
	"bufio"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/store"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{
		Status:    q.Get("status"),
		Kind:      q.Get("type"),
		Since:     q.Get("since"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	jobs, err := s.db.ListJobs(r.Context(), filter)
	if err != nil {
		s.logger.Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not list jobs")
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

type createJobRequest struct {
	Kind     string `json:"kind"`
	FilePath string `json:"filePath"`
	Policy   string `json:"policy,omitempty"`
	Priority *int   `json:"priority,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	kind := domain.JobKind(strings.ToLower(req.Kind))
	switch kind {
	case domain.JobScan, domain.JobApply, domain.JobTranscode, domain.JobMove:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown job kind")
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "filePath is required")
		return
	}
	priority := 100
	if req.Priority != nil {
		priority = *req.Priority
	}

	job, err := s.db.InsertJob(r.Context(), kind, req.FilePath, req.Policy, priority)
	if err != nil {
		s.logger.Error("insert job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not enqueue job")
		return
	}
	s.BroadcastJob(job)
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.db.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "store_error", "could not load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "queue not available")
		return
	}
	ok, err := s.queue.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "could not cancel job")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "not_cancellable", "only queued jobs can be cancelled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleRequeueJob(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "queue not available")
		return
	}
	ok, err := s.queue.Requeue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "could not requeue job")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "not_requeueable", "only failed or cancelled jobs can be requeued")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// handleJobLogs streams paginated lines from the per-job log file.
func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if strings.ContainsAny(jobID, "/\\") || strings.Contains(jobID, "..") {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid job id")
		return
	}
	if s.logDir == "" {
		writeError(w, http.StatusNotImplemented, "not_configured", "job logs not available")
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	f, err := os.Open(filepath.Join(s.logDir, jobID+".log"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "no logs for job")
		return
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	index := 0
	for scanner.Scan() {
		if index >= offset && len(lines) < limit {
			lines = append(lines, scanner.Text())
		}
		index++
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":  lines,
		"offset": offset,
		"total":  index,
	})
}
