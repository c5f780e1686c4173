// Package api wires the HTTP endpoints of the retail ETL service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/retail-etl/internal/api/handlers"
	"github.com/dvloznov/retail-etl/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Runs      *handlers.RunsHandler
	Workbooks *handlers.WorkbooksHandler
	Jobs      *handlers.JobsHandler
}

// NewRouter returns the full handler chain: routes, metrics, health and the
// middleware stack. An empty authToken disables authentication.
func NewRouter(h Handlers, authToken string, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Runs endpoints
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Runs.ListRuns(w, r)
		case http.MethodPost:
			h.Runs.EnqueueRun(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Workbook uploads
	mux.HandleFunc("/api/workbooks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			h.Workbooks.UploadWorkbook(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.Jobs.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			h.Jobs.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(authToken)(mux),
				),
			),
		),
	)
}
