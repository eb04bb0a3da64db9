// Package push executes the actual branch publication with bounded
// retries, per-attempt timeouts, and automatic divergence resolution.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pushgate/internal/audit"
	"pushgate/internal/gitrepo"
	"pushgate/pkg/cmdutil"
)

var (
	// ErrConflict reports divergence that automatic rebase could not
	// resolve. The executor never force-resolves a conflict on its own.
	ErrConflict = errors.New("push conflict: branch diverged and automatic rebase failed")

	// ErrTimeout reports that the final attempt exceeded its time bound.
	ErrTimeout = errors.New("push attempt timed out")

	// ErrBranchBusy reports that another push for the same branch/remote
	// pair is already in progress in this process.
	ErrBranchBusy = errors.New("a push for this branch and remote is already in progress")
)

// DefaultRetryDelay separates consecutive push attempts.
const DefaultRetryDelay = 2 * time.Second

// Branch is the slice of repository operations the executor needs. It is
// satisfied by *gitrepo.Repo.
type Branch interface {
	Push(ctx context.Context, remote, branch string, opts gitrepo.PushOptions) (*cmdutil.Result, error)
	Fetch(ctx context.Context, remote, branch string) error
	Tip(ctx context.Context, ref string) (string, error)
	RemoteTip(ctx context.Context, remote, branch string) (string, error)
	Rebase(ctx context.Context, onto string) (bool, error)
	RebaseAbort(ctx context.Context) error
}

// Recorder appends attempt records to the audit trail. Satisfied by
// *audit.Store.
type Recorder interface {
	AppendAttempt(ctx context.Context, rec *audit.AttemptRecord) (int64, error)
}

// Attempt is the outcome of one push invocation. Only the final attempt's
// outcome is surfaced; intermediate attempts live in the audit trail.
type Attempt struct {
	Branch   string
	Remote   string
	Version  string
	Number   int
	Outcome  audit.Outcome
	Detail   string
	Duration time.Duration

	// Resolved is set when a rejected push succeeded after an automatic
	// rebase within the same attempt.
	Resolved bool
}

// Executor pushes a branch with retry and conflict resolution. Each
// attempt is bounded by AttemptTimeout; the whole sequence is serialized
// per branch/remote pair through Locks.
type Executor struct {
	Repo  Branch
	Audit Recorder
	Locks *LockManager

	MaxRetries     int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration

	// Alert, when set, is called after all retries are exhausted.
	Alert func(ctx context.Context, message string)

	// Secrets are values scrubbed from attempt details before they reach
	// the audit trail, logs, or alerts. Git surfaces the remote URL in
	// rejection output, and a configured token may be embedded in it.
	Secrets []string

	Logger *slog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor wires an executor with the given policy. Zero policy values
// fall back to one attempt with DefaultRetryDelay and no attempt bound.
func NewExecutor(repo Branch, store Recorder, locks *LockManager, maxRetries int, attemptTimeout time.Duration, logger *slog.Logger) *Executor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Repo:           repo,
		Audit:          store,
		Locks:          locks,
		MaxRetries:     maxRetries,
		AttemptTimeout: attemptTimeout,
		RetryDelay:     DefaultRetryDelay,
		Logger:         logger,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push publishes branch to remote, retrying up to MaxRetries times. The
// returned Attempt always describes the final attempt; the error is
// ErrConflict or ErrTimeout when that attempt did not succeed.
func (e *Executor) Push(ctx context.Context, branch, remote, version string, force bool) (*Attempt, error) {
	if e.Locks != nil {
		if !e.Locks.TryLock(branch, remote) {
			return nil, fmt.Errorf("%w: %s@%s", ErrBranchBusy, branch, remote)
		}
		defer e.Locks.Unlock(branch, remote)
	}

	var last *Attempt
	for number := 1; number <= e.MaxRetries; number++ {
		e.recordAttempt(ctx, branch, remote, version, number, audit.PhaseStarted, "", "")

		attempt := e.runAttempt(ctx, branch, remote, force)
		attempt.Version = version
		attempt.Number = number
		attempt.Detail = cmdutil.Redact(attempt.Detail, e.Secrets)
		last = attempt

		e.recordAttempt(ctx, branch, remote, version, number, audit.PhaseResult, attempt.Outcome, attempt.Detail)
		e.Logger.Info("push attempt finished",
			"branch", branch,
			"remote", remote,
			"attempt", number,
			"outcome", string(attempt.Outcome),
			"resolved_by_rebase", attempt.Resolved)

		if attempt.Outcome == audit.OutcomeSuccess {
			return attempt, nil
		}
		if number < e.MaxRetries {
			if err := e.sleep(ctx, e.RetryDelay); err != nil {
				break
			}
		}
	}

	if e.Alert != nil {
		e.Alert(ctx, fmt.Sprintf("push of %s to %s failed after %d attempt(s): %s",
			branch, remote, last.Number, last.Detail))
	}

	switch last.Outcome {
	case audit.OutcomeTimeout:
		return last, fmt.Errorf("%w: %s", ErrTimeout, last.Detail)
	default:
		return last, fmt.Errorf("%w: %s", ErrConflict, last.Detail)
	}
}

// runAttempt performs one bounded push attempt: push, and on rejection
// fetch, rebase onto the moved remote tip, and push once more.
func (e *Executor) runAttempt(ctx context.Context, branch, remote string, force bool) *Attempt {
	attempt := &Attempt{Branch: branch, Remote: remote}
	start := time.Now()
	defer func() { attempt.Duration = time.Since(start) }()

	if e.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.AttemptTimeout)
		defer cancel()
	}

	result, err := e.Repo.Push(ctx, remote, branch, gitrepo.PushOptions{ForceWithLease: force})
	if timedOut(ctx, err) {
		attempt.Outcome = audit.OutcomeTimeout
		attempt.Detail = "push exceeded the attempt time bound"
		return attempt
	}
	if err != nil {
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("push could not run: %v", err)
		return attempt
	}
	if result.OK() {
		attempt.Outcome = audit.OutcomeSuccess
		attempt.Detail = "pushed"
		return attempt
	}

	rejection := result.Stderr

	if force {
		// A rejected lease push means the remote moved past the last
		// fetch. Rebasing here would fast-forward the branch back onto
		// the very commits the caller is trying to overwrite, so the
		// rejection surfaces as a conflict for the operator to resolve.
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("lease push rejected; remote moved since last fetch: %s", rejection)
		return attempt
	}

	// Rejected. Resolve divergence by rebasing local commits onto the new
	// remote tip, then retry once within this attempt.

	if err := e.Repo.Fetch(ctx, remote, branch); err != nil {
		if timedOut(ctx, err) {
			attempt.Outcome = audit.OutcomeTimeout
			attempt.Detail = "fetch exceeded the attempt time bound"
			return attempt
		}
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("push rejected and fetch failed: %v", err)
		return attempt
	}

	localTip, err := e.Repo.Tip(ctx, branch)
	if err != nil {
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("push rejected and local tip unreadable: %v", err)
		return attempt
	}
	remoteTip, err := e.Repo.RemoteTip(ctx, remote, branch)
	if err != nil {
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("push rejected and remote tip unreadable: %v", err)
		return attempt
	}

	if localTip == remoteTip {
		// Not a divergence; the remote refused the push for another
		// reason (hooks, protected branch). Nothing to rebase.
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("push rejected without divergence: %s", rejection)
		return attempt
	}

	clean, err := e.Repo.Rebase(ctx, remoteTip)
	if err != nil {
		if timedOut(ctx, err) {
			attempt.Outcome = audit.OutcomeTimeout
			attempt.Detail = "rebase exceeded the attempt time bound"
			return attempt
		}
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("rebase could not run: %v", err)
		return attempt
	}
	if !clean {
		// A conflicted rebase must never be left half-applied.
		if abortErr := e.Repo.RebaseAbort(ctx); abortErr != nil {
			e.Logger.Error("rebase abort failed", "branch", branch, "error", abortErr)
		}
		attempt.Outcome = audit.OutcomeConflict
		attempt.Detail = fmt.Sprintf("diverged from %s and rebase hit conflicts", remote)
		return attempt
	}

	result, err = e.Repo.Push(ctx, remote, branch, gitrepo.PushOptions{ForceWithLease: force})
	if timedOut(ctx, err) {
		attempt.Outcome = audit.OutcomeTimeout
		attempt.Detail = "post-rebase push exceeded the attempt time bound"
		return attempt
	}
	if err == nil && result.OK() {
		attempt.Outcome = audit.OutcomeSuccess
		attempt.Detail = "pushed after rebasing onto the moved remote tip"
		attempt.Resolved = true
		return attempt
	}

	attempt.Outcome = audit.OutcomeConflict
	if err != nil {
		attempt.Detail = fmt.Sprintf("post-rebase push failed: %v", err)
	} else {
		attempt.Detail = fmt.Sprintf("post-rebase push rejected: %s", result.Stderr)
	}
	return attempt
}

func (e *Executor) recordAttempt(ctx context.Context, branch, remote, version string, number int, phase audit.Phase, outcome audit.Outcome, detail string) {
	if e.Audit == nil {
		return
	}
	_, err := e.Audit.AppendAttempt(ctx, &audit.AttemptRecord{
		Branch:        branch,
		Remote:        remote,
		Version:       version,
		AttemptNumber: number,
		Phase:         phase,
		Outcome:       outcome,
		Detail:        detail,
	})
	if err != nil {
		e.Logger.Error("audit write failed", "branch", branch, "attempt", number, "error", err)
	}
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, cmdutil.ErrTimedOut) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}
