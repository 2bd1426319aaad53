package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service's instruments:
// - HTTP: latency, traffic and errors per route
// - Workflows: starts, outcomes, duration and in-flight count per workflow
// - Dispatcher: analytics delivery latency, failures, drops and queue depth
type Metrics struct {
	meter metric.Meter

	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	WorkflowDuration metric.Float64Histogram
	WorkflowsStarted metric.Int64Counter
	WorkflowsSettled metric.Int64Counter
	WorkflowsActive  metric.Int64UpDownCounter

	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
}

// NewMetrics registers all instruments with a Prometheus exporter and
// returns the handler serving them.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider)
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

func newMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("cloudjobs")
	m := &Metrics{meter: meter}
	var err error

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	// Provisioning a database can take ten minutes.
	m.WorkflowDuration, err = meter.Float64Histogram(
		"workflow_duration_seconds",
		metric.WithDescription("Workflow duration from start to settlement in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, err
	}

	m.WorkflowsStarted, err = meter.Int64Counter(
		"workflows_started_total",
		metric.WithDescription("Total number of workflows started"),
	)
	if err != nil {
		return nil, err
	}

	m.WorkflowsSettled, err = meter.Int64Counter(
		"workflows_settled_total",
		metric.WithDescription("Total number of workflows settled, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.WorkflowsActive, err = meter.Int64UpDownCounter(
		"workflows_active",
		metric.WithDescription("Number of workflows still running"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Analytics delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total analytics events delivered"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total analytics events failed after retries"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total analytics events dropped"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveDispatcherQueue reports depth() as the dispatcher_queue_size gauge
// on every collection.
func (m *Metrics) ObserveDispatcherQueue(depth func() int64) error {
	_, err := m.meter.Int64ObservableGauge(
		"dispatcher_queue_size",
		metric.WithDescription("Events waiting in the analytics queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
	return err
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordWorkflowStarted counts a started workflow as active.
func (m *Metrics) RecordWorkflowStarted(ctx context.Context, workflow string) {
	attrs := metric.WithAttributes(workflowAttr(workflow))
	m.WorkflowsStarted.Add(ctx, 1, attrs)
	m.WorkflowsActive.Add(ctx, 1, attrs)
}

// RecordWorkflowSettled records a workflow's terminal status.
func (m *Metrics) RecordWorkflowSettled(ctx context.Context, workflow, status, errorKind string, durationSeconds float64) {
	m.WorkflowsActive.Add(ctx, -1, metric.WithAttributes(workflowAttr(workflow)))
	m.WorkflowDuration.Record(ctx, durationSeconds, metric.WithAttributes(workflowAttr(workflow), outcomeAttr(status)))
	m.WorkflowsSettled.Add(ctx, 1, metric.WithAttributes(
		workflowAttr(workflow),
		outcomeAttr(status),
		errorKindAttr(errorKind),
	))
}

func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}
