package apihttp

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status  string `json:"status"`
	Detail  any    `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleHealth reports healthy, degraded, or unhealthy. Shutdown and a
// broken store both answer 503 so orchestrators stop routing work here.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Message: "shutting down"})
		return
	}
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Message: err.Error()})
		return
	}

	resp := healthResponse{Status: "healthy"}
	if s.queue != nil {
		health, err := s.queue.Health(r.Context())
		if err != nil {
			resp.Status = "degraded"
			resp.Message = "queue metrics unavailable"
		} else {
			resp.Detail = health
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
