package server

import (
	"log/slog"
	"net/http"

	"sales-insights/internal/handlers"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(api *handlers.APIHandlers, sse *handlers.SSEHandlers, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: api,
		sseHandlers: sse,
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard and operations
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// Ingestion
	s.mux.HandleFunc("POST /api/v1/upload", s.apiHandlers.HandleUpload)
	s.mux.HandleFunc("POST /api/v1/upload_batch", s.apiHandlers.HandleUploadBatch)

	// Tenant data
	s.mux.HandleFunc("GET /api/v1/data", s.apiHandlers.HandleGetData)
	s.mux.HandleFunc("DELETE /api/v1/data", s.apiHandlers.HandleDeleteData)
	s.mux.HandleFunc("GET /api/v1/tenants", s.apiHandlers.HandleTenants)
	s.mux.HandleFunc("GET /api/v1/health", s.apiHandlers.HandleReadiness)

	// Analytics
	s.mux.HandleFunc("GET /api/v1/overview", s.apiHandlers.HandleOverview)
	s.mux.HandleFunc("GET /api/v1/rfm", s.apiHandlers.HandleRFM)
	s.mux.HandleFunc("GET /api/v1/pareto", s.apiHandlers.HandlePareto)
	s.mux.HandleFunc("GET /api/v1/geo/states", s.apiHandlers.HandleGeoStates)
	s.mux.HandleFunc("GET /api/v1/geo/cities", s.apiHandlers.HandleGeoCities)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/overview", s.sseHandlers.HandleOverview)
	s.mux.HandleFunc("GET /sse/rfm", s.sseHandlers.HandleRFM)
	s.mux.HandleFunc("GET /sse/pareto", s.sseHandlers.HandlePareto)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
