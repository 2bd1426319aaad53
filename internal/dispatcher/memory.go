package dispatcher

import (
	"cloudjobs/pkg/backoff"
	"cloudjobs/pkg/circuitbreaker"
	"cloudjobs/pkg/cloudevent"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsRecorder receives delivery measurements. Optional.
type MetricsRecorder interface {
	RecordDispatcherDelivered(ctx context.Context, durationSeconds float64)
	RecordDispatcherFailed(ctx context.Context)
	RecordDispatcherDropped(ctx context.Context)
}

// MemoryDispatcher queues events in a bounded channel drained by a worker
// pool. Nothing survives a restart.
type MemoryDispatcher struct {
	cfg      Config
	queue    chan *Event
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	metrics  MetricsRecorder
	logger   *slog.Logger

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	deferred  atomic.Int64
	retries   atomic.Int64

	// mu guards closed against concurrent sends on queue.
	mu       sync.RWMutex
	closed   bool
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewMemory starts a dispatcher with cfg.Workers delivery goroutines.
func NewMemory(cfg Config, metrics MetricsRecorder) *MemoryDispatcher {
	cfg = cfg.withDefaults()
	logger := slog.With("component", "dispatcher")

	d := &MemoryDispatcher{
		cfg:    cfg,
		queue:  make(chan *Event, cfg.BufferSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout, cfg.UserAgent),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
			OnTransition: func(host string, from, to circuitbreaker.State) {
				logger.Info("Destination breaker changed", "destination", host, "from", from, "to", to)
			},
		}),
		metrics:  metrics,
		logger:   logger,
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}
	logger.Info("Dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d
}

// Dispatch queues event. It never blocks.
func (d *MemoryDispatcher) Dispatch(event *Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if !d.enqueue(event) {
		d.drop(event, "buffer full")
		return ErrBufferFull
	}
	d.queued.Add(1)
	return nil
}

// enqueue must be called with mu read-locked and the dispatcher open.
func (d *MemoryDispatcher) enqueue(event *Event) bool {
	select {
	case d.queue <- event:
		return true
	default:
		return false
	}
}

// Stats returns delivery counters.
func (d *MemoryDispatcher) Stats() Stats {
	breakers := d.breakers.Stats()
	return Stats{
		QueueDepth:   len(d.queue),
		Queued:       d.queued.Load(),
		Delivered:    d.delivered.Load(),
		Failed:       d.failed.Load(),
		Dropped:      d.dropped.Load(),
		Deferred:     d.deferred.Load(),
		Retries:      d.retries.Load(),
		BreakersOpen: breakers.Open,

		OpenDestinations: breakers.OpenKeys,
	}
}

// Close stops intake and lets the workers drain the queue until ctx ends.
// Events waiting on a paused destination are dropped.
func (d *MemoryDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.shutdown)
	d.mu.Unlock()

	d.logger.Info("Dispatcher draining", "queued", len(d.queue))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher stopped",
			"delivered", d.delivered.Load(),
			"failed", d.failed.Load(),
			"dropped", d.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		d.logger.Warn("Dispatcher drain timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

func (d *MemoryDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.shutdown:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *MemoryDispatcher) deliver(event *Event) {
	host := destinationKey(event.Destination)
	breaker := d.breakers.Get(host)
	if !breaker.Allow() {
		d.deferEvent(event, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.deliveryBudget())
	defer cancel()

	start := time.Now()
	if err := d.sendWithRetry(ctx, event); err != nil {
		breaker.RecordFailure()
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherFailed(ctx)
		}
		d.logger.Warn("Delivery failed", "destination", host, "type", event.Payload.Type, "error", err)
		return
	}

	breaker.RecordSuccess()
	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDelivered(ctx, time.Since(start).Seconds())
	}
}

// deliveryBudget bounds one event's attempts and the waits between them.
func (d *MemoryDispatcher) deliveryBudget() time.Duration {
	attempts := time.Duration(d.cfg.MaxRetries + 1)
	return attempts * (d.cfg.HTTPTimeout + d.cfg.Backoff.Max)
}

func (d *MemoryDispatcher) sendWithRetry(ctx context.Context, event *Event) error {
	var err error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d.retries.Add(1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			case <-time.After(backoff.Exponential(attempt, &d.cfg.Backoff)):
			}
		}

		err = d.sender.Send(ctx, event.Destination, event.Payload, event.SigningKey)
		if err == nil || !cloudevent.Retryable(err) {
			return err
		}
	}
	return err
}

// deferEvent puts event back once host's cooldown has passed.
func (d *MemoryDispatcher) deferEvent(event *Event, host string) {
	if event.deferrals >= d.cfg.MaxDeferrals {
		d.drop(event, "destination unavailable")
		return
	}
	event.deferrals++
	d.deferred.Add(1)

	time.AfterFunc(d.cfg.BreakerCooldown, func() {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			d.drop(event, "dispatcher closed")
			return
		}
		if !d.enqueue(event) {
			d.drop(event, "buffer full")
			return
		}
		d.logger.Debug("Event deferred", "destination", host, "type", event.Payload.Type, "deferrals", event.deferrals)
	})
}

func (d *MemoryDispatcher) drop(event *Event, reason string) {
	d.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDropped(context.Background())
	}
	d.logger.Warn("Event dropped",
		"reason", reason,
		"destination", destinationKey(event.Destination),
		"type", event.Payload.Type,
	)
}

// destinationKey is the host:port breakers are keyed by.
func destinationKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ Dispatcher = (*MemoryDispatcher)(nil)
