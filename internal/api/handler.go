// Package api provides the HTTP API handlers and routing for the cloud jobs service.
package api

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudjob"
	"cloudjobs/internal/database"
	"cloudjobs/internal/health"
	"cloudjobs/internal/job"
	"cloudjobs/internal/observability"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// JobService is the part of job.Service the handlers use.
type JobService interface {
	Create(ctx context.Context, req *job.Request) (*job.Response, error)
	Get(ctx context.Context, jobID string) (*job.Status, error)
	List(ctx context.Context, status cloudjob.Status) (*job.ListResponse, error)
	Cancel(ctx context.Context, jobID, reason string) error
}

// DatabaseReader looks up databases imported by finished workflows.
type DatabaseReader interface {
	Get(ctx context.Context, id string) (*database.Database, error)
}

// Handler contains HTTP handlers for the jobs API
type Handler struct {
	svc       JobService
	databases DatabaseReader
	metrics   *observability.Metrics
	health    *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(svc JobService, databases DatabaseReader, metrics *observability.Metrics, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:       svc,
		databases: databases,
		metrics:   metrics,
		health:    healthChecker,
	}
}

// CreateJob handles POST /v1/cloud/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req job.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, apperrors.KindValidation, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/cloud/jobs/"+resp.ID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// ListJobs handles GET /v1/cloud/jobs. An optional status query parameter
// filters the result.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := cloudjob.Status(r.URL.Query().Get("status"))
	switch status {
	case "", cloudjob.StatusCreated, cloudjob.StatusRunning, cloudjob.StatusFinished, cloudjob.StatusFailed, cloudjob.StatusCancelled:
	default:
		h.writeError(w, http.StatusBadRequest, apperrors.KindValidation, "unknown status "+string(status))
		return
	}

	resp, err := h.svc.List(r.Context(), status)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /v1/cloud/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, apperrors.KindValidation, "Job ID is required")
		return
	}

	status, err := h.svc.Get(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// DeleteJob handles DELETE /v1/cloud/jobs/{jobId}. The optional reason
// query parameter ends up in the cancelled job's error.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, apperrors.KindValidation, "Job ID is required")
		return
	}

	if err := h.svc.Cancel(r.Context(), jobID, r.URL.Query().Get("reason")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetDatabase handles GET /v1/cloud/databases/{databaseId}, the handle a
// finished workflow reports as its result. The password is never returned.
func (h *Handler) GetDatabase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("databaseId")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, apperrors.KindValidation, "Database ID is required")
		return
	}

	db, err := h.databases.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, db)
}

// ListWorkflows handles GET /v1/cloud/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]cloudjob.Name{"workflows": cloudjob.Names()})
}

// Livez handles GET /livez - liveness check.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness check.
// Returns 503 when a required dependency (the repository) is unavailable.
// A degraded service still returns 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.Serving() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, kind, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, apperrors.Kind(err), err.Error())
}
