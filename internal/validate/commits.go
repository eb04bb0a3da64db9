package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"

	"pushgate/internal/gitrepo"
)

// fallbackCommitCount bounds the commit range when the remote branch has
// no known tip yet.
const fallbackCommitCount = 10

// linesPerMB converts the max_commit_size_mb policy into a cumulative
// changed-line budget, assuming an average source line of 64 bytes.
const linesPerMB = 16 * 1024

// minMessageLength is the floor for non-conventional commit messages.
const minMessageLength = 10

// throwawayPrefixes disqualify a commit message outright.
var throwawayPrefixes = []string{"wip", "temp", "tmp"}

// CommitsStage validates every commit between the remote tip and the local
// branch tip: message quality, cumulative change size, and (optionally)
// cryptographic signatures. One bad commit fails the whole stage.
type CommitsStage struct {
	Repo                 *gitrepo.Repo
	Remote               string
	Branch               string
	MaxCommitSizeMB      int
	RequireSignedCommits bool
}

func (s *CommitsStage) Name() string { return "commits" }

func (s *CommitsStage) Run(ctx context.Context) Result {
	remoteTip, err := s.Repo.RemoteTip(ctx, s.Remote, s.Branch)
	if err != nil && !errors.Is(err, gitrepo.ErrNoRef) {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("cannot resolve remote tip: %v", err)}
	}

	commits, err := s.Repo.CommitsBetween(ctx, remoteTip, s.Branch, fallbackCommitCount)
	if err != nil {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("cannot list commits: %v", err)}
	}
	if len(commits) == 0 {
		return Result{Status: StatusPass, Detail: "no new commits to validate"}
	}

	var problems []string
	machine := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))

	for _, commit := range commits {
		short := commit.Hash
		if len(short) > 8 {
			short = short[:8]
		}

		if reason := checkMessage(machine, commit.Subject); reason != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", short, reason))
		}

		if s.RequireSignedCommits {
			signed, err := s.Repo.VerifyCommitSignature(ctx, commit.Hash)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: signature check failed: %v", short, err))
			} else if !signed {
				problems = append(problems, fmt.Sprintf("%s: commit is not signed", short))
			}
		}
	}

	var warnings []string
	if remoteTip != "" && s.MaxCommitSizeMB > 0 {
		size, err := s.Repo.DiffSize(ctx, remoteTip, s.Branch)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not measure change size: %v", err))
		} else if limit := s.MaxCommitSizeMB * linesPerMB; size > limit {
			problems = append(problems,
				fmt.Sprintf("cumulative change of %d lines exceeds limit of %d", size, limit))
		}
	}

	if len(problems) > 0 {
		return Result{
			Status:   StatusFail,
			Detail:   strings.Join(problems, "; "),
			Warnings: warnings,
		}
	}
	return Result{
		Status:   StatusPass,
		Detail:   fmt.Sprintf("%d commit(s) validated", len(commits)),
		Warnings: warnings,
	}
}

// checkMessage accepts a conventional-commit subject, or any subject of at
// least minMessageLength characters that does not start with a throwaway
// prefix. Returns a non-empty reason on rejection.
func checkMessage(machine conventionalcommits.Machine, subject string) string {
	trimmed := strings.TrimSpace(subject)
	lower := strings.ToLower(trimmed)

	for _, prefix := range throwawayPrefixes {
		if lower == prefix || strings.HasPrefix(lower, prefix+" ") ||
			strings.HasPrefix(lower, prefix+":") || strings.HasPrefix(lower, prefix+"-") {
			return fmt.Sprintf("throwaway commit message %q", trimmed)
		}
	}

	if _, err := machine.Parse([]byte(trimmed)); err == nil {
		return ""
	}

	if len(trimmed) < minMessageLength {
		return fmt.Sprintf("message %q is too short (minimum %d characters)", trimmed, minMessageLength)
	}
	return ""
}
