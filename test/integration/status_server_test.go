package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"pushgate/internal/audit"
	"pushgate/internal/server"
)

// TestStatusServerOverLiveStore exercises the full path from audit writes
// through the HTTP surface: records appended by the push side must be
// visible through the status endpoints without restarts or cache flushes.
func TestStatusServerOverLiveStore(t *testing.T) {
	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.NewServer(store, logger, true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	get := func(path string) (int, map[string]any) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("invalid JSON from %s: %v", path, err)
		}
		return resp.StatusCode, body
	}

	// Empty store: healthy, no attempts.
	if code, body := get("/healthz"); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", code, body)
	}
	if code, body := get("/api/attempts"); code != http.StatusOK || body["count"].(float64) != 0 {
		t.Fatalf("attempts on empty store = %d %v", code, body)
	}

	// Simulate one push invocation: started + result for two attempts,
	// conflict then success.
	ctx := context.Background()
	seed := []audit.AttemptRecord{
		{Branch: "main", Remote: "origin", AttemptNumber: 1, Phase: audit.PhaseStarted},
		{Branch: "main", Remote: "origin", AttemptNumber: 1, Phase: audit.PhaseResult, Outcome: audit.OutcomeConflict},
		{Branch: "main", Remote: "origin", AttemptNumber: 2, Phase: audit.PhaseStarted},
		{Branch: "main", Remote: "origin", AttemptNumber: 2, Phase: audit.PhaseResult, Outcome: audit.OutcomeSuccess},
	}
	for i := range seed {
		if _, err := store.AppendAttempt(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	code, body := get("/api/attempts/main")
	if code != http.StatusOK {
		t.Fatalf("branch attempts = %d", code)
	}
	if got := len(body["attempts"].([]any)); got != 4 {
		t.Errorf("attempts = %d, want 4", got)
	}

	code, body = get("/api/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}
	if body["total_attempts"].(float64) != 2 {
		t.Errorf("total_attempts = %v, want 2 result-phase records", body["total_attempts"])
	}
	byOutcome := body["by_outcome"].(map[string]any)
	if byOutcome["SUCCESS"].(float64) != 1 || byOutcome["CONFLICT"].(float64) != 1 {
		t.Errorf("by_outcome = %v", byOutcome)
	}
}
