// Package job exposes provisioning workflows as addressable jobs: it
// validates requests, starts workflows and keeps them queryable by id
// until they expire.
package job

import (
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/cloudjob"
	"time"
)

// Request starts a workflow. Credentials are never echoed back or logged.
type Request struct {
	ID          string               `json:"id,omitempty"`
	Name        cloudjob.Name        `json:"name"`
	Data        cloudjob.Data        `json:"data"`
	Credentials cloudapi.Credentials `json:"credentials"`
}

// Response acknowledges a started workflow.
type Response struct {
	ID     string        `json:"id"`
	Name   cloudjob.Name `json:"name"`
	Status string        `json:"status"` // "accepted"
}

// Status is the externally visible view of a workflow.
type Status struct {
	ID         string              `json:"id"`
	Name       cloudjob.Name       `json:"name"`
	State      cloudjob.Status     `json:"status"`
	Step       cloudjob.Step       `json:"step,omitempty"`
	Error      *cloudjob.ErrorInfo `json:"error,omitempty"`
	Result     any                 `json:"result,omitempty"`
	Job        cloudjob.State      `json:"job"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

// ListResponse lists workflows, oldest first.
type ListResponse struct {
	Jobs []Status `json:"jobs"`
}

const StateAccepted = "accepted"

func statusOf(h *cloudjob.Handle) Status {
	state := h.State()
	st := Status{
		ID:        h.ID(),
		Name:      h.Name(),
		State:     state.Status,
		Step:      state.Step,
		Error:     state.Error,
		Result:    state.Result,
		Job:       state,
		StartedAt: h.StartedAt(),
	}
	if at, ok := h.Settled(); ok {
		st.FinishedAt = &at
	}
	return st
}
