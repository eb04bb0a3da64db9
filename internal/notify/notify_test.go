package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyPostsWebhookPayload(t *testing.T) {
	var got payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(testLogger(), server.URL)
	n.Critical(context.Background(), "rollback force-push failed", map[string]string{
		"backup_branch": "backup-main-20260115-120000",
	})

	if got.Severity != SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", got.Severity)
	}
	if got.Message != "rollback force-push failed" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Fields["backup_branch"] == "" {
		t.Error("fields not delivered")
	}
	if got.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestNotifySwallowsWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := New(testLogger(), server.URL)
	// Must not panic or propagate the failure.
	n.Info(context.Background(), "push complete", nil)
}

func TestNotifyWithoutWebhookIsLogOnly(t *testing.T) {
	n := New(testLogger(), "")
	n.Notify(context.Background(), SeverityWarning, "retries exhausted", nil)
}
