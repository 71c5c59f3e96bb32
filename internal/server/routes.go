package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.Hub.HandleWebSocket)

	// API routes - Generation
	mux.HandleFunc("/api/generate", s.app.GenerateHandler.GenerateHandler)    // POST - submit one job
	mux.HandleFunc("/api/generate/batch", s.app.GenerateHandler.BatchHandler) // POST - fan out per character

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/dismiss", s.app.JobHandler.DismissHandler)
	mux.HandleFunc("/api/jobs/retry-persist", s.app.JobHandler.RetryPersistHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // GET /api/jobs/{id}

	// API routes - Shows
	mux.HandleFunc("/api/shows", s.handleShowsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/shows/", s.handleShowRoutes) // GET /{id}, /{id}/status, /{id}/grid

	// API routes - System
	mux.HandleFunc("/api/pipeline", s.app.APIHandler.PipelineHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleShowsRoute routes the show collection endpoint by method.
func (s *Server) handleShowsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.ShowHandler.ListShowsHandler, s.app.ShowHandler.CreateShowHandler)
}

// handleShowRoutes routes per-show requests: the snapshot itself plus
// the /status and /grid subresources.
func (s *Server) handleShowRoutes(w http.ResponseWriter, r *http.Request) {
	if !RequireGet(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/shows/")
	if rest == "" {
		http.Error(w, "Show ID required", http.StatusBadRequest)
		return
	}

	showID, sub, _ := strings.Cut(rest, "/")
	switch sub {
	case "":
		s.app.ShowHandler.GetShowHandler(w, r, showID)
	case "status":
		s.app.ShowHandler.StatusHandler(w, r, showID)
	case "grid":
		s.app.ShowHandler.GridHandler(w, r, showID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleJobRoutes routes per-job requests.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if !RequireGet(w, r) {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.app.JobHandler.GetJobHandler(w, r, jobID)
}
