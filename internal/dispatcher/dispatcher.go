// Package dispatcher delivers events in the background with bounded
// buffering, retries and a circuit breaker per destination host.
package dispatcher

import (
	"cloudjobs/pkg/cloudevent"
	"context"
	"errors"
)

var (
	// ErrBufferFull is returned when an event is dropped because the queue is full.
	ErrBufferFull = errors.New("dispatcher buffer full, event dropped")

	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Dispatcher queues events for asynchronous delivery.
type Dispatcher interface {
	// Dispatch queues event without blocking.
	Dispatch(event *Event) error

	// Stats returns delivery counters.
	Stats() Stats

	// Close stops accepting events and delivers what is queued until ctx ends.
	Close(ctx context.Context) error
}

// Event is a CloudEvent addressed to one endpoint.
type Event struct {
	Payload     *cloudevent.CloudEvent
	Destination string
	SigningKey  string // empty sends unsigned

	deferrals int
}

// Stats are cumulative delivery counters.
type Stats struct {
	QueueDepth   int
	Queued       int64
	Delivered    int64
	Failed       int64 // gave up after retries or rejected
	Dropped      int64 // buffer full, closed, or deferred too often
	Deferred     int64 // put back because the destination's breaker was open
	Retries      int64
	BreakersOpen int

	// OpenDestinations are the hosts currently paused, sorted.
	OpenDestinations []string
}
