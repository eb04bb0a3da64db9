// Package gitrepo wraps the git command line. The exit status and
// structured output of each command is the only contract with the
// underlying repository.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pushgate/pkg/cmdutil"
)

// ErrNoRef reports that a requested ref does not exist.
var ErrNoRef = errors.New("ref not found")

// DefaultOpTimeout bounds a single git invocation when the caller does not
// supply its own deadline.
const DefaultOpTimeout = 60 * time.Second

// Commit is one commit in a validation range.
type Commit struct {
	Hash    string
	Subject string
}

// Repo runs git commands in a working directory.
type Repo struct {
	Dir     string
	Timeout time.Duration
}

// New returns a Repo rooted at dir with the default per-operation timeout.
func New(dir string) *Repo {
	return &Repo{Dir: dir, Timeout: DefaultOpTimeout}
}

func (r *Repo) run(ctx context.Context, args ...string) (*cmdutil.Result, error) {
	return cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:     r.Dir,
		Timeout: r.Timeout,
	}, append([]string{"git"}, args...))
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	result, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", fmt.Errorf("failed to determine current branch: %s", result.Stderr)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// HasUncommittedChanges reports whether tracked files differ from HEAD,
// including staged changes. Untracked files do not count.
func (r *Repo) HasUncommittedChanges(ctx context.Context) (bool, error) {
	result, err := r.run(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	if !result.OK() {
		return false, fmt.Errorf("git status failed: %s", result.Stderr)
	}
	return strings.TrimSpace(result.Stdout) != "", nil
}

// UntrackedFiles lists files git does not know about.
func (r *Repo) UntrackedFiles(ctx context.Context) ([]string, error) {
	result, err := r.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, fmt.Errorf("git ls-files failed: %s", result.Stderr)
	}
	return splitLines(result.Stdout), nil
}

// TrackedFiles lists all files under version control.
func (r *Repo) TrackedFiles(ctx context.Context) ([]string, error) {
	result, err := r.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, fmt.Errorf("git ls-files failed: %s", result.Stderr)
	}
	return splitLines(result.Stdout), nil
}

// Tip resolves a ref to a commit hash. Returns ErrNoRef if it does not
// exist.
func (r *Repo) Tip(ctx context.Context, ref string) (string, error) {
	result, err := r.run(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", fmt.Errorf("%w: %s", ErrNoRef, ref)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// RemoteTip resolves the last-fetched tip of remote/branch. Returns ErrNoRef
// when the remote branch has never been fetched or does not exist.
func (r *Repo) RemoteTip(ctx context.Context, remote, branch string) (string, error) {
	return r.Tip(ctx, fmt.Sprintf("refs/remotes/%s/%s", remote, branch))
}

// Fetch updates the local copy of the remote branch.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	result, err := r.run(ctx, "fetch", remote, branch)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("git fetch %s %s failed: %s", remote, branch, result.Stderr)
	}
	return nil
}

// PushOptions controls how Push publishes the branch.
type PushOptions struct {
	// ForceWithLease performs a lease-protected force push: it is rejected
	// if the remote tip moved past the last fetched state.
	ForceWithLease bool
}

// Push publishes branch to remote. A rejected push is reported through the
// Result's exit code, not an error.
func (r *Repo) Push(ctx context.Context, remote, branch string, opts PushOptions) (*cmdutil.Result, error) {
	args := []string{"push"}
	if opts.ForceWithLease {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, branch)
	return r.run(ctx, args...)
}

// PushTag publishes a single tag to the remote.
func (r *Repo) PushTag(ctx context.Context, remote, tag string) error {
	result, err := r.run(ctx, "push", remote, "refs/tags/"+tag)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("git push tag %s failed: %s", tag, result.Stderr)
	}
	return nil
}

// Rebase replays local commits onto the given tip. Returns false with a nil
// error when the rebase stops on conflicts; the caller must then run
// RebaseAbort to restore the branch.
func (r *Repo) Rebase(ctx context.Context, onto string) (bool, error) {
	result, err := r.run(ctx, "rebase", onto)
	if err != nil {
		return false, err
	}
	return result.OK(), nil
}

// RebaseAbort restores the branch after a conflicted rebase. It must never
// leave a rebase half-applied.
func (r *Repo) RebaseAbort(ctx context.Context) error {
	result, err := r.run(ctx, "rebase", "--abort")
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("git rebase --abort failed: %s", result.Stderr)
	}
	return nil
}

// CommitsBetween lists commits in from..to, oldest first. When from is
// empty (no remote tip exists yet) the most recent fallbackLimit commits
// of to are returned instead.
func (r *Repo) CommitsBetween(ctx context.Context, from, to string, fallbackLimit int) ([]Commit, error) {
	args := []string{"log", "--reverse", "--format=%H%x1f%s"}
	if from == "" {
		args = append(args, fmt.Sprintf("--max-count=%d", fallbackLimit), to)
	} else {
		args = append(args, from+".."+to)
	}

	result, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, fmt.Errorf("git log failed: %s", result.Stderr)
	}

	var commits []Commit
	for _, line := range splitLines(result.Stdout) {
		hash, subject, found := strings.Cut(line, "\x1f")
		if !found {
			continue
		}
		commits = append(commits, Commit{Hash: hash, Subject: subject})
	}
	return commits, nil
}

// DiffSize returns the cumulative added plus removed line count between two
// commits, from --numstat. Binary files report no line counts and are
// skipped.
func (r *Repo) DiffSize(ctx context.Context, from, to string) (int, error) {
	result, err := r.run(ctx, "diff", "--numstat", from, to)
	if err != nil {
		return 0, err
	}
	if !result.OK() {
		return 0, fmt.Errorf("git diff failed: %s", result.Stderr)
	}

	total := 0
	for _, line := range splitLines(result.Stdout) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		added, err1 := strconv.Atoi(fields[0])
		removed, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		total += added + removed
	}
	return total, nil
}

// VerifyCommitSignature checks the cryptographic signature on a commit.
func (r *Repo) VerifyCommitSignature(ctx context.Context, hash string) (bool, error) {
	result, err := r.run(ctx, "verify-commit", hash)
	if err != nil {
		return false, err
	}
	return result.OK(), nil
}

// TagExists reports whether a local tag is present.
func (r *Repo) TagExists(ctx context.Context, tag string) (bool, error) {
	result, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "refs/tags/"+tag)
	if err != nil {
		return false, err
	}
	return result.OK(), nil
}

// LatestTag returns the most recent tag reachable from HEAD, or ErrNoRef
// when the repository has no tags yet.
func (r *Repo) LatestTag(ctx context.Context) (string, error) {
	result, err := r.run(ctx, "describe", "--tags", "--abbrev=0")
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", fmt.Errorf("%w: no tags", ErrNoRef)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// PreviousTag returns the most recent tag strictly before the given tag,
// or ErrNoRef when none exists.
func (r *Repo) PreviousTag(ctx context.Context, tag string) (string, error) {
	result, err := r.run(ctx, "describe", "--tags", "--abbrev=0", tag+"^")
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", fmt.Errorf("%w: no tag before %s", ErrNoRef, tag)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// SubjectsSince lists commit subjects after the given ref, newest first.
// An empty since lists all subjects reachable from HEAD.
func (r *Repo) SubjectsSince(ctx context.Context, since string, limit int) ([]string, error) {
	args := []string{"log", "--format=%s"}
	if limit > 0 {
		args = append(args, fmt.Sprintf("--max-count=%d", limit))
	}
	if since == "" {
		args = append(args, "HEAD")
	} else {
		args = append(args, since+"..HEAD")
	}

	result, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, fmt.Errorf("git log failed: %s", result.Stderr)
	}
	return splitLines(result.Stdout), nil
}

// CreateBranch creates a branch pointing at the given commit without
// switching to it.
func (r *Repo) CreateBranch(ctx context.Context, name, at string) error {
	result, err := r.run(ctx, "branch", name, at)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("git branch %s failed: %s", name, result.Stderr)
	}
	return nil
}

// ResetHard moves the current branch to target and resets the working tree.
func (r *Repo) ResetHard(ctx context.Context, target string) error {
	result, err := r.run(ctx, "reset", "--hard", target)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("git reset --hard %s failed: %s", target, result.Stderr)
	}
	return nil
}

// ConfigValue reads a git configuration value; missing keys return ErrNoRef.
func (r *Repo) ConfigValue(ctx context.Context, key string) (string, error) {
	result, err := r.run(ctx, "config", "--get", key)
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", fmt.Errorf("%w: config %s", ErrNoRef, key)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// RemoteOwnerRepo parses owner and repository name from the remote URL.
// Supports both SSH and HTTPS GitHub remotes.
func (r *Repo) RemoteOwnerRepo(ctx context.Context, remote string) (string, string, error) {
	url, err := r.ConfigValue(ctx, fmt.Sprintf("remote.%s.url", remote))
	if err != nil {
		return "", "", err
	}
	return ParseOwnerRepo(url)
}

// ParseOwnerRepo extracts owner/repo from a GitHub remote URL.
func ParseOwnerRepo(url string) (string, string, error) {
	trimmed := strings.TrimSuffix(url, ".git")

	var path string
	switch {
	case strings.HasPrefix(trimmed, "git@"):
		_, after, found := strings.Cut(trimmed, ":")
		if !found {
			return "", "", fmt.Errorf("unrecognized remote URL: %s", url)
		}
		path = after
	case strings.Contains(trimmed, "://"):
		_, after, _ := strings.Cut(trimmed, "://")
		parts := strings.SplitN(after, "/", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("unrecognized remote URL: %s", url)
		}
		path = parts[1]
	default:
		return "", "", fmt.Errorf("unrecognized remote URL: %s", url)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("remote URL does not contain owner/repo: %s", url)
	}
	return parts[0], parts[1], nil
}

func splitLines(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
