package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pushgate/internal/gitrepo"
	"pushgate/pkg/cmdutil"
)

// DefaultSuiteTimeout bounds one discovered test suite.
const DefaultSuiteTimeout = 10 * time.Minute

// suite is one discovered test runner invocation.
type suite struct {
	name string
	argv []string
}

// TestsStage discovers whatever test suites the repository carries and
// runs them. The stage fails if any discovered suite reports failure and
// skips when nothing is discovered.
type TestsStage struct {
	Repo         *gitrepo.Repo
	SuiteTimeout time.Duration

	// ExtraSuites are shell-quoted commands configured by the operator in
	// addition to the discovered ones.
	ExtraSuites []string

	// MinCoverage, when positive, requires at least one suite to report a
	// coverage percentage at or above it.
	MinCoverage int
}

func (s *TestsStage) Name() string { return "tests" }

func (s *TestsStage) Run(ctx context.Context) Result {
	timeout := s.SuiteTimeout
	if timeout <= 0 {
		timeout = DefaultSuiteTimeout
	}

	suites := s.discover()
	if len(suites) == 0 {
		return Result{Status: StatusSkip, Detail: "no test suites discovered"}
	}

	var failures []string
	var warnings []string
	bestCoverage := -1.0
	for _, st := range suites {
		result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
			Dir:     s.Repo.Dir,
			Timeout: timeout,
		}, st.argv)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", st.name, err))
			continue
		}
		if !result.OK() {
			failures = append(failures, fmt.Sprintf("%s exited with code %d", st.name, result.ExitCode))
			warnings = append(warnings, tail(result.Combined(), 5))
		}
		if cov, ok := parseCoverage(result.Combined()); ok && cov > bestCoverage {
			bestCoverage = cov
		}
	}

	if s.MinCoverage > 0 {
		switch {
		case bestCoverage < 0:
			warnings = append(warnings, fmt.Sprintf("no suite reported coverage; %d%% required", s.MinCoverage))
		case bestCoverage < float64(s.MinCoverage):
			failures = append(failures, fmt.Sprintf("coverage %.1f%% below required %d%%", bestCoverage, s.MinCoverage))
		}
	}

	if len(failures) > 0 {
		return Result{
			Status:   StatusFail,
			Detail:   strings.Join(failures, "; "),
			Warnings: warnings,
		}
	}
	return Result{Status: StatusPass, Detail: fmt.Sprintf("%d suite(s) passed", len(suites))}
}

// discover probes for the common test entrypoints present in the tree.
func (s *TestsStage) discover() []suite {
	var suites []suite

	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(s.Repo.Dir, name))
		return err == nil
	}

	if exists("go.mod") {
		suites = append(suites, suite{name: "go test", argv: []string{"go", "test", "./..."}})
	}
	if exists("package.json") {
		suites = append(suites, suite{name: "npm test", argv: []string{"npm", "test", "--silent"}})
	}
	if exists("pytest.ini") || (exists("pyproject.toml") && exists("tests")) {
		suites = append(suites, suite{name: "pytest", argv: []string{"pytest", "-q"}})
	}
	if exists("Cargo.toml") {
		suites = append(suites, suite{name: "cargo test", argv: []string{"cargo", "test", "--quiet"}})
	}

	for _, extra := range s.ExtraSuites {
		argv, err := cmdutil.ParseCommandString(extra)
		if err != nil {
			continue
		}
		suites = append(suites, suite{name: extra, argv: argv})
	}
	return suites
}

// coveragePattern matches the percentage most test runners print, e.g.
// go test's "coverage: 87.5% of statements".
var coveragePattern = regexp.MustCompile(`coverage[:\s]+(\d+(?:\.\d+)?)%`)

// parseCoverage extracts the highest coverage percentage reported in the
// suite output, if any.
func parseCoverage(output string) (float64, bool) {
	best := -1.0
	for _, m := range coveragePattern.FindAllStringSubmatch(output, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > best {
			best = v
		}
	}
	return best, best >= 0
}

func tail(s string, lines int) string {
	all := strings.Split(strings.TrimSpace(s), "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.Join(all, "\n")
}
