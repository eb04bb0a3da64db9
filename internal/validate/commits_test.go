package validate

import (
	"testing"

	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

func TestCheckMessage(t *testing.T) {
	machine := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))

	tests := []struct {
		name    string
		subject string
		wantOK  bool
	}{
		{"conventional fix", "fix: correct off-by-one in parser", true},
		{"conventional feat with scope", "feat(auth): add token refresh", true},
		{"plain descriptive message", "Rework retry loop to honour per-attempt timeout", true},
		{"wip prefix", "wip fix", false},
		{"bare wip", "wip", false},
		{"wip with colon", "WIP: still broken", false},
		{"temp prefix", "temp hack for demo", false},
		{"tmp with dash", "tmp-commit before lunch", false},
		{"too short", "fix stuff", false},
		{"short but conventional", "fix: typo", true},
		{"leading whitespace trimmed", "  fix: correct off-by-one in parser  ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := checkMessage(machine, tt.subject)
			if tt.wantOK && reason != "" {
				t.Errorf("checkMessage(%q) rejected: %s", tt.subject, reason)
			}
			if !tt.wantOK && reason == "" {
				t.Errorf("checkMessage(%q) accepted, want rejection", tt.subject)
			}
		})
	}
}
