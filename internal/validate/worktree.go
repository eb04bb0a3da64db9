package validate

import (
	"context"
	"fmt"

	"pushgate/internal/gitrepo"
)

// WorktreeStage fails on uncommitted changes to tracked files. Untracked
// files produce a warning only.
type WorktreeStage struct {
	Repo *gitrepo.Repo
}

func (s *WorktreeStage) Name() string { return "worktree" }

func (s *WorktreeStage) Run(ctx context.Context) Result {
	dirty, err := s.Repo.HasUncommittedChanges(ctx)
	if err != nil {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("cannot inspect working tree: %v", err)}
	}
	if dirty {
		return Result{Status: StatusFail, Detail: "working tree has uncommitted changes"}
	}

	result := Result{Status: StatusPass, Detail: "working tree clean"}

	untracked, err := s.Repo.UntrackedFiles(ctx)
	if err == nil && len(untracked) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d untracked file(s) will not be pushed", len(untracked)))
	}
	return result
}
