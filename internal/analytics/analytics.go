// Package analytics publishes workflow lifecycle telemetry as CloudEvents.
//
// Publishing is fire-and-forget: events are queued on a dispatcher and any
// failure is logged, never returned to the workflow.
package analytics

import (
	"cloudjobs/internal/cloudjob"
	"cloudjobs/internal/dispatcher"
	"cloudjobs/pkg/cloudevent"
	"context"
	"log/slog"
)

// Event types.
const (
	EventTypeStarted   = "cloudjobs.workflow.started"
	EventTypeSucceeded = "cloudjobs.workflow.succeeded"
	EventTypeFailed    = "cloudjobs.workflow.failed"
)

const source = "cloudjobs"

// Sink implements cloudjob.Analytics.
type Sink struct {
	dispatcher  dispatcher.Dispatcher
	destination string
	signingKey  string
	logger      *slog.Logger
}

// NewSink creates a sink. With no destination or dispatcher, events are only logged.
func NewSink(d dispatcher.Dispatcher, destination, signingKey string) *Sink {
	return &Sink{
		dispatcher:  d,
		destination: destination,
		signingKey:  signingKey,
		logger:      slog.With("component", "analytics"),
	}
}

func (s *Sink) WorkflowStarted(ctx context.Context, e cloudjob.Event) {
	s.publish(ctx, EventTypeStarted, e)
}

func (s *Sink) WorkflowSucceeded(ctx context.Context, e cloudjob.Event) {
	s.publish(ctx, EventTypeSucceeded, e)
}

func (s *Sink) WorkflowFailed(ctx context.Context, e cloudjob.Event) {
	s.publish(ctx, EventTypeFailed, e)
}

func (s *Sink) publish(ctx context.Context, eventType string, e cloudjob.Event) {
	data := eventData(e)
	s.logger.DebugContext(ctx, "Workflow event", "type", eventType, "jobId", e.WorkflowID, "job", e.Name)

	if s.dispatcher == nil || s.destination == "" {
		return
	}
	err := s.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     cloudevent.New(eventType, source, e.WorkflowID, data),
		Destination: s.destination,
		SigningKey:  s.signingKey,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Workflow event not queued", "type", eventType, "jobId", e.WorkflowID, "error", err)
	}
}

func eventData(e cloudjob.Event) map[string]any {
	data := map[string]any{
		"workflowId": e.WorkflowID,
		"workflow":   string(e.Name),
		"status":     string(e.Status),
	}
	if e.Step != "" {
		data["step"] = string(e.Step)
	}
	if e.Duration > 0 {
		data["durationMs"] = e.Duration.Milliseconds()
	}
	if e.ErrorKind != "" {
		data["errorKind"] = e.ErrorKind
		data["failedJob"] = string(e.ErrorJob)
		data["error"] = e.Message
	}
	return data
}

var _ cloudjob.Analytics = (*Sink)(nil)
