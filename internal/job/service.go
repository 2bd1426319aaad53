package job

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudjob"
	"cloudjobs/internal/observability"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const maxJobIDLength = 128

// jobIDPattern allows alphanumeric, hyphens, and underscores
var jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

const defaultCancelReason = "cancelled by user"

// Config controls how long settled workflows stay queryable.
type Config struct {
	Retention           time.Duration
	MaintenanceInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = 15 * time.Minute
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Minute
	}
	return c
}

// Service runs provisioning workflows and keeps them addressable by id.
//
// Workflows live in process memory: a restart forgets them, while the
// databases they imported stay in the repository.
type Service struct {
	deps     cloudjob.Deps
	metrics  *observability.Metrics
	cfg      Config
	registry *registry
	cron     *cron.Cron
	watchers sync.WaitGroup
	logger   *slog.Logger
}

// NewService creates a service. Call Start to schedule the retention sweep.
func NewService(deps cloudjob.Deps, metrics *observability.Metrics, cfg Config) *Service {
	return &Service{
		deps:     deps,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		registry: newRegistry(),
		cron:     cron.New(),
		logger:   slog.With("component", "jobs"),
	}
}

// Start schedules the retention sweep.
func (s *Service) Start() error {
	schedule := "@every " + s.cfg.MaintenanceInterval.String()
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(time.Now()) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Retention sweep scheduled", "every", s.cfg.MaintenanceInterval, "retention", s.cfg.Retention)
	return nil
}

// Create validates req and starts its workflow.
// Note: This method assigns an id to the request when it has none.
func (s *Service) Create(ctx context.Context, req *Request) (*Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := s.registry.reserve(req.ID); err != nil {
		return nil, err
	}

	logger := slog.With("jobId", req.ID, "job", req.Name)

	h, err := cloudjob.Start(ctx, req.ID, req.Name, req.Data, req.Credentials, s.deps)
	if err != nil {
		s.registry.release(req.ID)
		logger.Error("Job failed to start", "error", err)
		return nil, err
	}
	s.registry.commit(req.ID, h)

	if s.metrics != nil {
		s.metrics.RecordWorkflowStarted(ctx, string(req.Name))
	}
	s.watchers.Add(1)
	go s.watch(h)

	logger.Info("Job created")

	return &Response{
		ID:     req.ID,
		Name:   req.Name,
		Status: StateAccepted,
	}, nil
}

// watch records the workflow's outcome once it settles.
func (s *Service) watch(h *cloudjob.Handle) {
	defer s.watchers.Done()
	<-h.Done()

	state := h.State()
	finished, _ := h.Settled()
	duration := finished.Sub(h.StartedAt())

	err := h.Err()
	if errors.Is(err, apperrors.ErrUnauthorized) {
		s.logger.Warn("Workflow credentials were rejected", "jobId", h.ID(), "job", h.Name(), "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordWorkflowSettled(context.Background(), string(h.Name()), string(state.Status), apperrors.Kind(err), duration.Seconds())
	}
}

// Get returns the status of a workflow.
func (s *Service) Get(ctx context.Context, jobID string) (*Status, error) {
	h, ok := s.registry.get(jobID)
	if !ok {
		return nil, apperrors.NotFound("job", jobID)
	}
	st := statusOf(h)
	return &st, nil
}

// List returns known workflows, optionally only those in status.
func (s *Service) List(ctx context.Context, status cloudjob.Status) (*ListResponse, error) {
	jobs := []Status{}
	for _, h := range s.registry.list() {
		st := statusOf(h)
		if status != "" && st.State != status {
			continue
		}
		jobs = append(jobs, st)
	}
	return &ListResponse{Jobs: jobs}, nil
}

// Cancel requests cooperative cancellation of a workflow. Cancelling a
// settled workflow is a no-op.
func (s *Service) Cancel(ctx context.Context, jobID, reason string) error {
	h, ok := s.registry.get(jobID)
	if !ok {
		return apperrors.NotFound("job", jobID)
	}
	if reason == "" {
		reason = defaultCancelReason
	}

	logger := slog.With("jobId", jobID, "job", h.Name())
	if _, settled := h.Settled(); settled {
		logger.Debug("Cancel ignored, job already settled")
		return nil
	}
	h.Cancel(reason)
	logger.Info("Job cancellation requested", "reason", reason)
	return nil
}

// Sweep releases workflows that settled more than the retention period
// before now. It returns how many were released.
func (s *Service) Sweep(now time.Time) int {
	released := s.registry.expire(now.Add(-s.cfg.Retention))
	if len(released) > 0 {
		s.logger.Info("Expired settled jobs", "count", len(released))
	}
	return len(released)
}

// Shutdown stops the sweep, cancels running workflows and waits for them to
// settle or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	<-s.cron.Stop().Done()

	running := 0
	for _, h := range s.registry.list() {
		if _, settled := h.Settled(); !settled {
			h.Cancel("service shutting down")
			running++
		}
	}
	s.logger.Info("Cancelling running jobs", "count", running)

	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// validate checks req. Does not modify the request.
func validate(req *Request) error {
	if req.ID == "" {
		return apperrors.Validation("id", "job ID is required")
	}
	if len(req.ID) > maxJobIDLength {
		return apperrors.Validation("id", fmt.Sprintf("job ID exceeds maximum length of %d", maxJobIDLength))
	}
	if !jobIDPattern.MatchString(req.ID) {
		return apperrors.Validation("id", "job ID must be alphanumeric (hyphens and underscores allowed, cannot start with hyphen/underscore)")
	}

	if req.Name == "" {
		return apperrors.Validation("name", "job name is required")
	}
	if err := cloudjob.Validate(req.Name, req.Data); err != nil {
		return err
	}

	if req.Credentials.APIKey == "" || req.Credentials.APISecret == "" {
		return apperrors.Validation("credentials", "apiKey and apiSecretKey are required")
	}
	return nil
}
