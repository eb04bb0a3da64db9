package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRollbackAborted reports that the operator declined the confirmation
// prompt. It is a no-op, not a failure.
var ErrRollbackAborted = errors.New("rollback aborted by operator")

// RollbackRequest describes an emergency branch revert.
type RollbackRequest struct {
	TargetCommit string
	Branch       string
	Remote       string

	// Confirm asks the operator before any history is mutated. A nil
	// Confirm always declines: rollback never proceeds silently.
	Confirm func(prompt string) (bool, error)
}

// RollbackResult names what the rollback produced, most importantly the
// backup branch that preserves the pre-rollback tip.
type RollbackResult struct {
	BackupBranch string
	OldTip       string
}

// Rollback resets branch to the target commit and force-publishes the
// result. A timestamped backup branch is created at the current tip
// before anything is mutated; every failure after that point leaves the
// backup in place and raises a CRITICAL alert naming it.
func (o *Orchestrator) Rollback(ctx context.Context, req RollbackRequest) (*RollbackResult, error) {
	branch := req.Branch
	if branch == "" {
		branch = o.Config.DefaultBranch
	}
	remoteName := req.Remote
	if remoteName == "" {
		remoteName = DefaultRemote
	}

	current, err := o.Repo.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot determine current branch: %w", err)
	}
	if current != branch {
		return nil, fmt.Errorf("rollback targets %s but the checked-out branch is %s", branch, current)
	}

	oldTip, err := o.Repo.Tip(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("cannot read current tip of %s: %w", branch, err)
	}

	prompt := fmt.Sprintf("Reset %s from %s to %s and force-push to %s?",
		branch, shortHash(oldTip), req.TargetCommit, remoteName)
	if req.Confirm == nil {
		return nil, ErrRollbackAborted
	}
	confirmed, err := req.Confirm(prompt)
	if err != nil {
		return nil, fmt.Errorf("confirmation failed: %w", err)
	}
	if !confirmed {
		return nil, ErrRollbackAborted
	}

	result := &RollbackResult{
		BackupBranch: fmt.Sprintf("backup-%s-%s", branch, time.Now().UTC().Format("20060102-150405")),
		OldTip:       oldTip,
	}
	if err := o.Repo.CreateBranch(ctx, result.BackupBranch, oldTip); err != nil {
		return nil, fmt.Errorf("cannot create backup branch: %w", err)
	}
	o.Logger.Info("backup branch created", "branch", result.BackupBranch, "tip", shortHash(oldTip))

	if err := o.Repo.ResetHard(ctx, req.TargetCommit); err != nil {
		o.criticalRollbackAlert(ctx, result.BackupBranch, branch, "reset failed", err)
		return result, fmt.Errorf("reset to %s failed (backup at %s): %w", req.TargetCommit, result.BackupBranch, err)
	}

	if _, err := o.Executor.Push(ctx, branch, remoteName, "", true); err != nil {
		o.criticalRollbackAlert(ctx, result.BackupBranch, branch, "force push failed", err)
		return result, fmt.Errorf("rollback push failed (backup at %s): %w", result.BackupBranch, err)
	}

	if o.Notifier != nil {
		o.Notifier.Info(ctx, "rollback complete", map[string]string{
			"branch":        branch,
			"target":        req.TargetCommit,
			"backup_branch": result.BackupBranch,
		})
	}
	return result, nil
}

func (o *Orchestrator) criticalRollbackAlert(ctx context.Context, backup, branch, what string, cause error) {
	if o.Notifier == nil {
		return
	}
	o.Notifier.Critical(ctx, fmt.Sprintf("rollback of %s: %s; pre-rollback state preserved on %s", branch, what, backup),
		map[string]string{
			"branch":        branch,
			"backup_branch": backup,
			"error":         cause.Error(),
		})
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
