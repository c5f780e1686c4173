package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/dvloznov/retail-etl/internal/api/middleware"
	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/jobs"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/pipeline"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// RunLister lists recorded pipeline runs.
type RunLister interface {
	ListRecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// RunDefaults fill in fields a run request leaves empty.
type RunDefaults struct {
	SourceURI  string
	OutputURI  string
	MaxRetries int
}

// RunsHandler handles run-related endpoints.
type RunsHandler struct {
	publisher jobs.Publisher
	runs      RunLister
	defaults  RunDefaults
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher, runs RunLister, defaults RunDefaults) *RunsHandler {
	return &RunsHandler{
		publisher: publisher,
		runs:      runs,
		defaults:  defaults,
	}
}

// EnqueueRun handles POST /api/runs. The body is optional; missing URIs
// fall back to the configured defaults.
func (h *RunsHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req struct {
		SourceURI string `json:"source_uri"`
		OutputURI string `json:"output_uri"`
		DryRun    bool   `json:"dry_run"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SourceURI == "" {
		req.SourceURI = h.defaults.SourceURI
	}
	if req.OutputURI == "" {
		req.OutputURI = h.defaults.OutputURI
	}
	if err := allowedURI(req.SourceURI, h.defaults.SourceURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid source_uri: "+err.Error())
		return
	}
	if err := allowedURI(req.OutputURI, h.defaults.OutputURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid output_uri: "+err.Error())
		return
	}

	job := &jobs.RunPipelineJob{
		SourceURI:  req.SourceURI,
		OutputURI:  req.OutputURI,
		Trigger:    domain.TriggerAPI,
		DryRun:     req.DryRun,
		MaxRetries: h.defaults.MaxRetries,
	}

	if err := h.publisher.PublishRunPipeline(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue run job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue run job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("source_uri", job.SourceURI).Msg("Run job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// allowedURI accepts uri only in the scheme and bucket of def and under the
// directory holding def's key.
func allowedURI(uri, def string) error {
	loc, err := objectstore.ParseURI(uri)
	if err != nil {
		return err
	}
	ref, err := objectstore.ParseURI(def)
	if err != nil {
		return errors.New("no default location configured")
	}
	if !loc.Within(ref) {
		return fmt.Errorf("%s is outside the configured location", loc)
	}
	return nil
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultRunsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.ListRecentRuns(ctx, limit)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// WorkbooksHandler stores uploaded workbooks next to the configured source.
type WorkbooksHandler struct {
	stores   pipeline.StoreProvider
	root     objectstore.Location
	maxBytes int64
}

// NewWorkbooksHandler creates a handler uploading below root.
func NewWorkbooksHandler(stores pipeline.StoreProvider, root objectstore.Location, maxBytes int64) *WorkbooksHandler {
	return &WorkbooksHandler{
		stores:   stores,
		root:     root,
		maxBytes: maxBytes,
	}
}

// UploadWorkbook handles PUT /api/workbooks?filename=...
// The request body is the raw workbook.
func (h *WorkbooksHandler) UploadWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	filename := path.Base(r.URL.Query().Get("filename"))
	if filename == "" || filename == "." || filename == "/" {
		middleware.WriteError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if path.Ext(filename) != ".xlsx" {
		middleware.WriteError(w, http.StatusBadRequest, "Only .xlsx workbooks are accepted")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Workbook too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Empty request body")
		return
	}

	loc := h.root.Join("uploads", time.Now().UTC().Format("2006/01/02"), filename)
	store, err := h.stores.Store(ctx, loc)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open upload store")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload workbook")
		return
	}
	if err := store.Put(ctx, loc.Key, data); err != nil {
		log.Error().Err(err).Str("uri", loc.String()).Msg("Failed to store workbook")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload workbook")
		return
	}

	log.Info().
		Str("source_uri", loc.String()).
		Int("bytes", len(data)).
		Msg("Workbook uploaded successfully")

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"source_uri": loc.String(),
		"bytes":      len(data),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Trigger: query.Get("trigger"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
