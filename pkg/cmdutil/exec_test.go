package cmdutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRun_CapturesOutput(t *testing.T) {
	result, err := Run(context.Background(), ExecOptions{}, []string{"echo", "hello"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.OK() {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}

	if result.Stdout != "hello\n" {
		t.Errorf("Expected stdout 'hello\\n', got %q", result.Stdout)
	}
}

func TestRun_NonZeroExitIsNotError(t *testing.T) {
	result, err := Run(context.Background(), ExecOptions{}, []string{"false"})
	if err != nil {
		t.Fatalf("Non-zero exit should not be an error, got: %v", err)
	}

	if result.OK() {
		t.Error("Expected non-zero exit code from 'false'")
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	_, err := Run(context.Background(), ExecOptions{}, nil)
	if err == nil {
		t.Fatal("Expected error for empty command")
	}
}

func TestRun_Timeout(t *testing.T) {
	opts := ExecOptions{Timeout: 50 * time.Millisecond}
	_, err := Run(context.Background(), opts, []string{"sleep", "5"})
	if err == nil {
		t.Fatal("Expected timeout error")
	}

	if !errors.Is(err, ErrTimedOut) {
		t.Errorf("Expected ErrTimedOut, got: %v", err)
	}
}

func TestParseCommandString(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
		wantErr  bool
	}{
		{"git push origin main", []string{"git", "push", "origin", "main"}, false},
		{`git commit -m "my message"`, []string{"git", "commit", "-m", "my message"}, false},
		{"", nil, true},
		{`unbalanced "quote`, nil, true},
	}

	for _, tt := range tests {
		parts, err := ParseCommandString(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCommandString(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCommandString(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if len(parts) != len(tt.expected) {
			t.Errorf("ParseCommandString(%q): got %v, want %v", tt.input, parts, tt.expected)
			continue
		}
		for i := range parts {
			if parts[i] != tt.expected[i] {
				t.Errorf("ParseCommandString(%q): got %v, want %v", tt.input, parts, tt.expected)
				break
			}
		}
	}
}

func TestFormatCommand(t *testing.T) {
	got := FormatCommand([]string{"git", "commit", "-m", "fix: a thing"})
	want := `git commit -m 'fix: a thing'`
	if got != want {
		t.Errorf("FormatCommand: got %q, want %q", got, want)
	}

	if FormatCommand(nil) != "<empty command>" {
		t.Error("FormatCommand(nil) should return placeholder")
	}
}

func TestRedact(t *testing.T) {
	out := Redact("token=ghp_abc123 ok", []string{"ghp_abc123", ""})
	if out != "token=***REDACTED*** ok" {
		t.Errorf("Redact failed: %q", out)
	}
}

func TestRun_CanceledContextIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := Run(ctx, ExecOptions{}, []string{"sleep", "5"})
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if errors.Is(err, ErrTimedOut) {
		t.Errorf("Cancellation must not be reported as a timeout: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}
