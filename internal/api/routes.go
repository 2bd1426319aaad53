package api

import (
	"cloudjobs/internal/health"
	"cloudjobs/internal/observability"
	"net/http"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    JobService
	Databases     DatabaseReader // optional; enables /v1/cloud/databases
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.Databases, cfg.Metrics, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health checks - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("GET /v1/cloud/workflows", authMiddleware(http.HandlerFunc(handler.ListWorkflows)))
	mux.Handle("POST /v1/cloud/jobs", authMiddleware(http.HandlerFunc(handler.CreateJob)))
	mux.Handle("GET /v1/cloud/jobs", authMiddleware(http.HandlerFunc(handler.ListJobs)))
	mux.Handle("GET /v1/cloud/jobs/{jobId}", authMiddleware(http.HandlerFunc(handler.GetJob)))
	mux.Handle("DELETE /v1/cloud/jobs/{jobId}", authMiddleware(http.HandlerFunc(handler.DeleteJob)))
	if cfg.Databases != nil {
		mux.Handle("GET /v1/cloud/databases/{databaseId}", authMiddleware(http.HandlerFunc(handler.GetDatabase)))
	}

	// Outermost last
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
