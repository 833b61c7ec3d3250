package server

import (
	"net/http"

	"github.com/pagepress/export-api/internal/export"
	"github.com/pagepress/export-api/internal/job"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(exportSvc *export.Service, jobSvc *job.Service, hub *Hub) http.Handler {
	return newMux(exportSvc, jobSvc, hub)
}

func newMux(exportSvc *export.Service, jobSvc *job.Service, hub *Hub) http.Handler {
	h := &handler{
		exportSvc: exportSvc,
		jobSvc:    jobSvc,
		hub:       hub,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/exports", h.submitExport)
	mux.HandleFunc("GET /api/v1/exports", h.listExports)
	mux.HandleFunc("GET /api/v1/exports/{id}", h.getExport)
	mux.HandleFunc("GET /api/v1/exports/{id}/download", h.downloadExport)
	mux.HandleFunc("GET /ws", h.statusStream)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
