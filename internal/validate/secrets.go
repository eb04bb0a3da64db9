package validate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"pushgate/internal/gitrepo"
	"pushgate/pkg/cmdutil"
)

// Severity ranks a secret-pattern finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Rule is one secret-detection pattern. Rules are data-driven so custom
// patterns can be added per repository without code changes.
type Rule struct {
	Name     string   `yaml:"name"`
	Pattern  string   `yaml:"pattern"`
	Severity Severity `yaml:"severity"`

	re *regexp.Regexp
}

// Finding is one secret-pattern match.
type Finding struct {
	Rule     string
	Severity Severity
	Path     string
	Line     int
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d: %s (%s)", f.Path, f.Line, f.Rule, f.Severity)
}

// DefaultRules covers private-key headers, inline credential assignments,
// and host-specific access-token shapes.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "private-key-header",
			Pattern:  `-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY`,
			Severity: SeverityCritical,
		},
		{
			Name:     "inline-credential-assignment",
			Pattern:  `(?i)(password|passwd|api[_-]?key|secret|token)\s*[:=]\s*["'][^"']{6,}["']`,
			Severity: SeverityHigh,
		},
		{
			Name:     "github-access-token",
			Pattern:  `gh[pousr]_[A-Za-z0-9]{36,}`,
			Severity: SeverityCritical,
		},
		{
			Name:     "aws-access-key-id",
			Pattern:  `AKIA[0-9A-Z]{16}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "slack-token",
			Pattern:  `xox[baprs]-[0-9A-Za-z-]{10,}`,
			Severity: SeverityHigh,
		},
	}
}

// LoadRules reads additional rules from a YAML file and appends them to
// the defaults. The file holds a list of {name, pattern, severity}.
func LoadRules(path string) ([]Rule, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rules, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret rules file: %w", err)
	}

	var extra []Rule
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse secret rules file: %w", err)
	}
	return append(rules, extra...), nil
}

// excludedPathParts skips content whose findings are overwhelmingly test
// fixtures or documentation, not live credentials.
var excludedPathParts = []string{"test", "tests", "example", "examples", "log", "logs", "fixture", "fixtures"}

// SecretsStage scans tracked content for secret patterns and optionally
// runs external auditors (dependency scanner, static analyzer) on a
// best-effort basis. The stage fails only when the finding count exceeds
// the configured threshold.
type SecretsStage struct {
	Repo        *gitrepo.Repo
	Rules       []Rule
	MaxFindings int

	// ExtraScanners are optional shell-quoted commands (e.g. a dependency
	// auditor). A missing tool is skipped; a non-zero exit adds one
	// finding.
	ExtraScanners []string
}

func (s *SecretsStage) Name() string { return "secrets" }

func (s *SecretsStage) Run(ctx context.Context) Result {
	rules, err := compileRules(s.Rules)
	if err != nil {
		return Result{Status: StatusFail, Detail: err.Error()}
	}

	files, err := s.Repo.TrackedFiles(ctx)
	if err != nil {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("cannot list tracked files: %v", err)}
	}

	var findings []Finding
	for _, path := range files {
		if excludedPath(path) {
			continue
		}
		fileFindings, err := scanFile(filepath.Join(s.Repo.Dir, path), path, rules)
		if err != nil {
			// Unreadable files are skipped, not fatal.
			continue
		}
		findings = append(findings, fileFindings...)
	}

	var warnings []string
	for _, scanner := range s.ExtraScanners {
		argv, err := cmdutil.ParseCommandString(scanner)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid scanner command %q: %v", scanner, err))
			continue
		}
		result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: s.Repo.Dir}, argv)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("scanner %s unavailable: %v", argv[0], err))
			continue
		}
		if !result.OK() {
			findings = append(findings, Finding{
				Rule:     "external-scanner:" + argv[0],
				Severity: SeverityMedium,
				Path:     ".",
			})
		}
	}

	for _, f := range findings {
		warnings = append(warnings, f.String())
	}

	if len(findings) > s.MaxFindings {
		return Result{
			Status:   StatusFail,
			Detail:   fmt.Sprintf("%d finding(s) exceed threshold of %d", len(findings), s.MaxFindings),
			Warnings: warnings,
		}
	}

	detail := "no findings"
	if len(findings) > 0 {
		detail = fmt.Sprintf("%d finding(s) within threshold of %d", len(findings), s.MaxFindings)
	}
	return Result{Status: StatusPass, Detail: detail, Warnings: warnings}
}

func compileRules(rules []Rule) ([]Rule, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	compiled := make([]Rule, len(rules))
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("secret rule %q has an invalid pattern: %w", rule.Name, err)
		}
		rule.re = re
		compiled[i] = rule
	}
	return compiled, nil
}

func excludedPath(path string) bool {
	lower := strings.ToLower(path)
	for _, part := range strings.Split(lower, "/") {
		for _, excluded := range excludedPathParts {
			if part == excluded {
				return true
			}
		}
	}
	base := filepath.Base(lower)
	return strings.Contains(base, "_test.") || strings.HasSuffix(base, ".log")
}

func scanFile(fullPath, relPath string, rules []Rule) ([]Finding, error) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(data, 0) >= 0 {
		// Binary content.
		return nil, nil
	}

	var findings []Finding
	for lineNo, line := range strings.Split(string(data), "\n") {
		for _, rule := range rules {
			if rule.re.MatchString(line) {
				findings = append(findings, Finding{
					Rule:     rule.Name,
					Severity: rule.Severity,
					Path:     relPath,
					Line:     lineNo + 1,
				})
			}
		}
	}
	return findings, nil
}
