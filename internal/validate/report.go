// Package validate runs the pre-push validation pipeline. Every enabled
// stage runs to completion so operators get the full failure set in one
// report; there is no short-circuit on first failure.
package validate

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of one validation stage.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

// Result is the immutable outcome of one stage.
type Result struct {
	Stage    string
	Status   Status
	Detail   string
	Duration time.Duration
	Warnings []string
}

// Report is the ordered collection of stage results for one push
// invocation.
type Report struct {
	Branch  string
	Results []Result
}

// Overall derives the report outcome: PASS iff no stage is FAIL. Warnings
// and SKIPs never affect the overall result.
func (r *Report) Overall() Status {
	for _, result := range r.Results {
		if result.Status == StatusFail {
			return StatusFail
		}
	}
	return StatusPass
}

// FailedStages lists the names of every failed stage, in report order.
func (r *Report) FailedStages() []string {
	var failed []string
	for _, result := range r.Results {
		if result.Status == StatusFail {
			failed = append(failed, result.Stage)
		}
	}
	return failed
}

// String renders the report for the operator.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation report for %s:\n", r.Branch)
	for _, result := range r.Results {
		fmt.Fprintf(&b, "  %-12s %s", result.Stage, result.Status)
		if result.Detail != "" {
			fmt.Fprintf(&b, "  %s", result.Detail)
		}
		fmt.Fprintf(&b, "  (%s)\n", result.Duration.Round(time.Millisecond))
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "    warning: %s\n", w)
		}
	}
	fmt.Fprintf(&b, "overall: %s\n", r.Overall())
	return b.String()
}

// FailedError reports that one or more pipeline stages failed. The push
// must not proceed.
type FailedError struct {
	Stages []string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("validation failed: [%s]", strings.Join(e.Stages, ", "))
}
