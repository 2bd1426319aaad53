package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := newMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("Expected int64 sum, got %T", data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	m, handler, err := NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	m.RecordWorkflowStarted(context.Background(), "create-free-database")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"workflows_started_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %s in exposition", want)
		}
	}
}

func TestRecordWorkflowLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordWorkflowStarted(ctx, "create-free-database")
	m.RecordWorkflowStarted(ctx, "create-free-database")
	m.RecordWorkflowStarted(ctx, "import-free-database")
	m.RecordWorkflowSettled(ctx, "create-free-database", "finished", "", 42)
	m.RecordWorkflowSettled(ctx, "import-free-database", "failed", "timeout", 600)

	data := collect(t, reader)
	if got := sumFor(t, data["workflows_started_total"], attrWorkflow, "create-free-database"); got != 2 {
		t.Errorf("Expected 2 starts, got %d", got)
	}
	if got := sumFor(t, data["workflows_active"], attrWorkflow, "create-free-database"); got != 1 {
		t.Errorf("Expected 1 active, got %d", got)
	}
	if got := sumFor(t, data["workflows_active"], attrWorkflow, "import-free-database"); got != 0 {
		t.Errorf("Expected 0 active imports, got %d", got)
	}
	if got := sumFor(t, data["workflows_settled_total"], attrErrorKind, "timeout"); got != 1 {
		t.Errorf("Expected 1 timeout, got %d", got)
	}
	if got := sumFor(t, data["workflows_settled_total"], attrErrorKind, "none"); got != 1 {
		t.Errorf("Expected 1 clean settlement, got %d", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordHTTPRequest(ctx, "POST", "/v1/cloud/jobs", 202, 0.05)
	m.RecordHTTPRequest(ctx, "GET", "/v1/cloud/jobs/abc", 200, 0.01)
	m.RecordHTTPRequest(ctx, "GET", "/v1/cloud/jobs/xyz", 404, 0.01)

	data := collect(t, reader)
	if got := sumFor(t, data["http_requests_total"], attrPath, "/v1/cloud/jobs/{jobId}"); got != 2 {
		t.Errorf("Expected 2 requests on the job route, got %d", got)
	}
	if got := sumFor(t, data["http_errors_total"], attrStatus, "4xx"); got != 1 {
		t.Errorf("Expected 1 client error, got %d", got)
	}
}

func TestObserveDispatcherQueue(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	if err := m.ObserveDispatcherQueue(func() int64 { return 7 }); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	m.RecordDispatcherDelivered(context.Background(), 0.2)
	m.RecordDispatcherDropped(context.Background())

	data := collect(t, reader)
	gauge, ok := data["dispatcher_queue_size"].(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 7 {
		t.Errorf("Expected queue size 7, got %+v", data["dispatcher_queue_size"])
	}
	if _, ok := data["dispatcher_dropped_total"]; !ok {
		t.Error("Expected dropped counter collected")
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/v1/cloud/jobs", "/v1/cloud/jobs"},
		{"/v1/cloud/jobs/", "/v1/cloud/jobs/"},
		{"/v1/cloud/jobs/abc123", "/v1/cloud/jobs/{jobId}"},
		{"/v1/cloud/jobs/7f0c-uuid", "/v1/cloud/jobs/{jobId}"},
		{"/v1/cloud/databases/9b1e", "/v1/cloud/databases/{databaseId}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
