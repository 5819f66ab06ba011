package apihttp

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/randomparity/vpo/internal/queue"
	"github.com/randomparity/vpo/internal/store"
)

// Server is the daemon's JSON API surface.
type Server struct {
	db     *store.DB
	queue  *queue.Queue
	logger *slog.Logger

	authToken string
	logDir    string
	rateRPS   float64
	rateBurst int

	hub *wsHub

	handler http.Handler

	// shuttingDown flips health to 503 while the daemon drains.
	shuttingDown atomic.Bool
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func WithQueue(q *queue.Queue) ServerOption {
	return func(s *Server) { s.queue = q }
}

// WithAuthToken enables HTTP Basic auth using the shared token as the
// password (any username).
func WithAuthToken(token string) ServerOption {
	return func(s *Server) { s.authToken = token }
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) { s.rateRPS = rps; s.rateBurst = burst }
}

// WithJobLogsDir enables the per-job log endpoint.
func WithJobLogsDir(dir string) ServerOption {
	return func(s *Server) { s.logDir = dir }
}

func NewServer(db *store.DB, opts ...ServerOption) *Server {
	s := &Server{
		db:        db,
		rateRPS:   50,
		rateBurst: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.hub = newWSHub(s.logger)
	go s.hub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{id}/logs", s.handleJobLogs)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("POST /api/jobs/{id}/requeue", s.handleRequeueJob)

	mux.HandleFunc("GET /api/stats/summary", s.handleStatsSummary)
	mux.HandleFunc("GET /api/stats/recent", s.handleStatsRecent)
	mux.HandleFunc("GET /api/stats/trends", s.handleStatsTrends)

	mux.HandleFunc("GET /api/plugins", s.handleListPlugins)
	mux.HandleFunc("GET /api/library/{id}", s.handleLibraryFile)
	mux.HandleFunc("GET /api/library/{id}/plugin-data", s.handleLibraryPluginData)

	mux.HandleFunc("GET /ws/jobs", s.handleJobsWS)

	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = rateLimitMiddleware(s.rateRPS, s.rateBurst, handler)
	handler = metricsMiddleware(handler)
	handler = loggingMiddleware(s.logger, handler)
	handler = recoveryMiddleware(s.logger, handler)
	handler = otelhttp.NewHandler(handler, "vpo-api")
	s.handler = handler

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// BeginShutdown flips health to unhealthy so load balancers drain the
// daemon while in-flight jobs finish.
func (s *Server) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// Close tears down the websocket hub.
func (s *Server) Close() {
	s.hub.Close()
}
