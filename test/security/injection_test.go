package security

import (
	"strings"
	"testing"

	"pushgate/internal/security"
)

// TestGitArgumentInjectionPrevention validates that operator-supplied
// identifiers cannot smuggle options or shell metacharacters onto a git
// command line.
func TestGitArgumentInjectionPrevention(t *testing.T) {
	tests := []struct {
		name      string
		branch    string
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid branch",
			branch:    "feature/login",
			wantError: false,
		},
		{
			name:      "option injection",
			branch:    "--force-with-lease=main:0000",
			wantError: true,
			errorMsg:  "cannot start with '-'",
		},
		{
			name:      "semicolon injection",
			branch:    "main; rm -rf /",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "command substitution",
			branch:    "main$(reboot)",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "range smuggling",
			branch:    "main..origin/main",
			wantError: true,
			errorMsg:  "'..'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := security.ValidateBranchName(tt.branch)
			if tt.wantError {
				if err == nil {
					t.Fatalf("ValidateBranchName(%q) = nil, want error", tt.branch)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not mention %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateBranchName(%q) = %v", tt.branch, err)
			}
		})
	}
}

func TestRollbackTargetInjectionPrevention(t *testing.T) {
	for _, target := range []string{"--hard", "HEAD; reboot", "$(cat /etc/passwd)", "main"} {
		if err := security.ValidateCommitHash(target); err == nil {
			t.Errorf("ValidateCommitHash(%q) = nil, want error", target)
		}
	}
	for _, target := range []string{"HEAD~2", "abcd1234"} {
		if err := security.ValidateCommitHash(target); err != nil {
			t.Errorf("ValidateCommitHash(%q) = %v", target, err)
		}
	}
}
