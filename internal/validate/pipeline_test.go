package validate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeStage struct {
	name   string
	result Result
	delay  time.Duration

	mu   sync.Mutex
	runs int
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Run(ctx context.Context) Result {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{Status: StatusFail, Detail: ctx.Err().Error()}
		}
	}
	return s.result
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipelineRunsAllStagesToCompletion(t *testing.T) {
	first := &fakeStage{name: "first", result: Result{Status: StatusFail, Detail: "broken"}}
	second := &fakeStage{name: "second", result: Result{Status: StatusPass}}
	third := &fakeStage{name: "third", result: Result{Status: StatusSkip}}

	p := NewPipeline(discard())
	p.Register(first).Register(second).RegisterConcurrent(third)

	report := p.Validate(context.Background(), "main")

	for _, s := range []*fakeStage{first, second, third} {
		if s.runs != 1 {
			t.Errorf("stage %s ran %d times, want 1", s.name, s.runs)
		}
	}
	if len(report.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(report.Results))
	}
	if report.Overall() != StatusFail {
		t.Errorf("overall = %s, want FAIL", report.Overall())
	}
}

func TestPipelineResultOrderIsRegistrationOrder(t *testing.T) {
	p := NewPipeline(discard())
	p.Register(&fakeStage{name: "a", result: Result{Status: StatusPass}})
	p.RegisterConcurrent(&fakeStage{name: "slow", result: Result{Status: StatusPass}, delay: 50 * time.Millisecond})
	p.RegisterConcurrent(&fakeStage{name: "fast", result: Result{Status: StatusPass}})

	report := p.Validate(context.Background(), "main")

	want := []string{"a", "slow", "fast"}
	if len(report.Results) != len(want) {
		t.Fatalf("got %d results, want %d", len(report.Results), len(want))
	}
	for i, name := range want {
		if report.Results[i].Stage != name {
			t.Errorf("result %d is %q, want %q", i, report.Results[i].Stage, name)
		}
	}
}

func TestPipelineStageTimeoutFails(t *testing.T) {
	p := NewPipeline(discard())
	p.stageTimeout = 20 * time.Millisecond
	p.Register(&fakeStage{name: "hang", result: Result{Status: StatusPass}, delay: time.Second})

	report := p.Validate(context.Background(), "main")

	if report.Results[0].Status != StatusFail {
		t.Errorf("timed-out stage status = %s, want FAIL", report.Results[0].Status)
	}
	if report.Overall() != StatusFail {
		t.Errorf("overall = %s, want FAIL", report.Overall())
	}
}

func TestReportOverall(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all pass", []Status{StatusPass, StatusPass}, StatusPass},
		{"skip does not fail", []Status{StatusPass, StatusSkip}, StatusPass},
		{"single fail", []Status{StatusPass, StatusFail, StatusPass}, StatusFail},
		{"empty report passes", nil, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &Report{Branch: "main"}
			for i, status := range tt.statuses {
				report.Results = append(report.Results, Result{
					Stage:  string(rune('a' + i)),
					Status: status,
				})
			}
			if got := report.Overall(); got != tt.want {
				t.Errorf("Overall() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReportFailedStages(t *testing.T) {
	report := &Report{
		Branch: "main",
		Results: []Result{
			{Stage: "worktree", Status: StatusPass},
			{Stage: "commits", Status: StatusFail},
			{Stage: "secrets", Status: StatusFail},
		},
	}
	failed := report.FailedStages()
	if len(failed) != 2 || failed[0] != "commits" || failed[1] != "secrets" {
		t.Errorf("FailedStages() = %v, want [commits secrets]", failed)
	}

	err := &FailedError{Stages: failed}
	if err.Error() == "" {
		t.Error("FailedError.Error() is empty")
	}
}
