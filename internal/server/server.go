package server

import (
	"log/slog"
	"net/http"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/handlers"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

type Server struct {
	analytics    *services.Analytics
	mux          *http.ServeMux
	logger       *slog.Logger
	metrics      *observability.Metrics
	apiHandlers  *handlers.APIHandlers
	sseHandlers  *handlers.SSEHandlers
	pageHandlers *handlers.PageHandlers
}

// Options carries the settings the routes need.
type Options struct {
	Upload         config.UploadConfig
	DefaultProfile string
}

func NewServer(analytics *services.Analytics, src handlers.RulesSource, metrics *observability.Metrics, logger *slog.Logger, opts Options) *Server {
	s := &Server{
		analytics:    analytics,
		mux:          http.NewServeMux(),
		logger:       logger,
		metrics:      metrics,
		apiHandlers:  handlers.NewAPIHandlers(analytics, src, logger, opts.Upload.MaxBytes, opts.DefaultProfile),
		sseHandlers:  handlers.NewSSEHandlers(analytics, logger),
		pageHandlers: handlers.NewPageHandlers(analytics, src, logger, opts.DefaultProfile),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Pages
	s.mux.HandleFunc("GET /{$}", s.pageHandlers.HandleHome)
	s.mux.HandleFunc("GET /datasets/{id}", s.pageHandlers.HandleDashboard)
	s.mux.HandleFunc("POST /upload", s.apiHandlers.HandleUploadForm)

	// Operations
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// REST API endpoints
	s.mux.HandleFunc("GET /api/profiles", s.apiHandlers.HandleProfiles)
	s.mux.HandleFunc("POST /api/datasets", s.apiHandlers.HandleCreateDataset)
	s.mux.HandleFunc("GET /api/datasets/{id}", s.apiHandlers.HandleDataset)
	s.mux.HandleFunc("GET /api/datasets/{id}/aggregate", s.apiHandlers.HandleAggregate)
	s.mux.HandleFunc("POST /api/datasets/{id}/report", s.apiHandlers.HandleReport)
	s.mux.HandleFunc("GET /api/datasets/{id}/export", s.apiHandlers.HandleExport)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/datasets/{id}/report", s.sseHandlers.HandleReport)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
