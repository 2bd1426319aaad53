package cloudevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()
	a := New("cloudjobs.workflow.started", "cloudjobs", "wf-1", map[string]any{"k": "v"})
	b := New("cloudjobs.workflow.started", "cloudjobs", "wf-1", nil)

	if a.SpecVersion != "1.0" || a.DataContentType != "application/json" {
		t.Errorf("Unexpected envelope %+v", a)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.Time.Location() != time.UTC {
		t.Error("Expected UTC timestamp")
	}
}

func TestSender_Send(t *testing.T) {
	t.Parallel()
	var (
		gotBody      []byte
		gotSignature string
		gotType      string
		gotAgent     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Ce-Type")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	event := New("cloudjobs.workflow.succeeded", "cloudjobs", "wf-1", map[string]any{"step": "import"})
	err := NewSender(time.Second, "cloudjobs/test").Send(context.Background(), server.URL, event, "secret")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var decoded CloudEvent
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("Invalid body: %v", err)
	}
	if decoded.ID != event.ID || decoded.Data["step"] != "import" {
		t.Errorf("Unexpected event %+v", decoded)
	}
	if gotSignature != Sign(gotBody, "secret") {
		t.Errorf("Signature mismatch: %q", gotSignature)
	}
	if gotType != event.Type || gotAgent != "cloudjobs/test" {
		t.Errorf("Unexpected headers type=%q agent=%q", gotType, gotAgent)
	}
}

func TestSender_NoSignatureWithoutKey(t *testing.T) {
	t.Parallel()
	var signed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed = r.Header.Get(SignatureHeader) != ""
	}))
	defer server.Close()

	if err := NewSender(time.Second, "").Send(context.Background(), server.URL, New("t", "s", "", nil), ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if signed {
		t.Error("Expected no signature header")
	}
}

func TestSender_HTTPError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad event", http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewSender(time.Second, "").Send(context.Background(), server.URL, New("t", "s", "", nil), "")
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest || he.Body != "bad event" {
		t.Fatalf("Expected HTTP 400 with body, got %v", err)
	}
	if err.Error() != "HTTP 400: bad event" {
		t.Errorf("Unexpected message %q", err)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &HTTPError{StatusCode: 400}, false},
		{"unauthorized", &HTTPError{StatusCode: 401}, false},
		{"request timeout", &HTTPError{StatusCode: 408}, true},
		{"too many requests", &HTTPError{StatusCode: 429}, true},
		{"server error", &HTTPError{StatusCode: 503}, true},
		{"wrapped client error", fmt.Errorf("deliver: %w", &HTTPError{StatusCode: 404}), false},
		{"network error", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
