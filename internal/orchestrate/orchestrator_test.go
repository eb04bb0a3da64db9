package orchestrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pushgate/internal/audit"
	"pushgate/internal/auth"
	"pushgate/internal/config"
	"pushgate/internal/gitrepo"
	"pushgate/internal/notify"
	"pushgate/internal/push"
	"pushgate/internal/remote"
	"pushgate/internal/validate"
	"pushgate/pkg/cmdutil"
)

type staticSource struct{}

func (staticSource) Name() auth.Source { return auth.SourceEnv }

func (staticSource) Token(ctx context.Context) (string, error) {
	return "test-token-value", nil
}

type fakeAPI struct {
	releases []remote.ReleaseRequest
	prs      []remote.PullRequestRequest
}

func (f *fakeAPI) GetBranchProtection(ctx context.Context, owner, repo, branch string) (*remote.BranchProtection, error) {
	return &remote.BranchProtection{Protected: false}, nil
}

func (f *fakeAPI) GetRepository(ctx context.Context, owner, repo string) (string, error) {
	return "main", nil
}

func (f *fakeAPI) CreateRelease(ctx context.Context, owner, repo string, req remote.ReleaseRequest) (string, error) {
	f.releases = append(f.releases, req)
	return "https://example.com/releases/1", nil
}

func (f *fakeAPI) CreatePullRequest(ctx context.Context, owner, repo string, req remote.PullRequestRequest) (string, error) {
	f.prs = append(f.prs, req)
	return "https://example.com/pulls/1", nil
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	result, err := cmdutil.Run(context.Background(), cmdutil.ExecOptions{Dir: dir},
		append([]string{"git"}, args...))
	if err != nil || !result.OK() {
		t.Fatalf("git %v failed: %v (%s)", args, err, result.Combined())
	}
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-m", message)
}

// newWorkspace creates a working repository on the given branch plus a
// bare repository acting as origin. The origin URL is a GitHub-shaped
// URL so owner/repo parsing works; pushes go to the bare copy.
func newWorkspace(t *testing.T, branch string) (workDir string) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	bare := t.TempDir()
	runGit(t, bare, "init", "--bare", "-b", branch)

	workDir = t.TempDir()
	runGit(t, workDir, "init", "-b", branch)
	runGit(t, workDir, "config", "user.email", "ci@example.com")
	runGit(t, workDir, "config", "user.name", "CI")
	runGit(t, workDir, "config", "commit.gpgsign", "false")
	runGit(t, workDir, "remote", "add", "origin", "https://github.com/acme/widgets.git")
	runGit(t, workDir, "config", "remote.origin.pushurl", bare)

	commitFile(t, workDir, "README.md", "widgets\n", "feat: initial commit")
	return workDir
}

func newTestOrchestrator(t *testing.T, workDir string, api *fakeAPI) (*Orchestrator, *audit.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()

	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	repo := gitrepo.New(workDir)
	executor := push.NewExecutor(repo, store, push.NewLockManager(), cfg.MaxPushRetries, 0, logger)
	executor.RetryDelay = 0
	resolver := auth.NewResolver(logger, staticSource{})

	o := New(cfg, repo, store, notify.New(logger, ""), resolver, executor, logger)
	o.NewAPI = func(ctx context.Context, cred *auth.Credential) (API, error) {
		return api, nil
	}
	return o, store
}

func TestPushEndToEnd(t *testing.T) {
	workDir := newWorkspace(t, "main")
	api := &fakeAPI{}
	o, store := newTestOrchestrator(t, workDir, api)

	result, err := o.Push(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if result.Attempt == nil || result.Attempt.Outcome != audit.OutcomeSuccess {
		t.Fatalf("attempt = %+v, want SUCCESS", result.Attempt)
	}
	if result.Report == nil || result.Report.Overall() != validate.StatusPass {
		t.Errorf("report = %v, want overall PASS", result.Report)
	}

	// The default branch gets no auto PR and no release without a version.
	if len(api.prs) != 0 || len(api.releases) != 0 {
		t.Errorf("unexpected API actions: prs=%d releases=%d", len(api.prs), len(api.releases))
	}

	records, err := store.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("audit records = %d, want started+result", len(records))
	}
}

func TestPushFailsValidationOnDirtyWorktree(t *testing.T) {
	workDir := newWorkspace(t, "main")
	if err := os.WriteFile(filepath.Join(workDir, "README.md"), []byte("dirty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	o, _ := newTestOrchestrator(t, workDir, &fakeAPI{})

	_, err := o.Push(context.Background(), Request{})
	var failed *validate.FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Push() error = %v, want FailedError", err)
	}
	if len(failed.Stages) == 0 || failed.Stages[0] != "worktree" {
		t.Errorf("failed stages = %v, want [worktree ...]", failed.Stages)
	}
	if !IsFatal(err) {
		t.Error("validation failure must be fatal")
	}
}

func TestPushSkipValidationBypassesPipeline(t *testing.T) {
	workDir := newWorkspace(t, "main")
	if err := os.WriteFile(filepath.Join(workDir, "README.md"), []byte("dirty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	o, _ := newTestOrchestrator(t, workDir, &fakeAPI{})

	result, err := o.Push(context.Background(), Request{SkipValidation: true})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if result.Report != nil {
		t.Error("report produced although validation was bypassed")
	}
	if result.Attempt.Outcome != audit.OutcomeSuccess {
		t.Errorf("outcome = %s, want SUCCESS", result.Attempt.Outcome)
	}
}

func TestPushOpensPullRequestForFeatureBranch(t *testing.T) {
	workDir := newWorkspace(t, "feature-widgets")
	commitFile(t, workDir, "widget.go", "package widgets\n", "feat: add widget scaffolding")
	api := &fakeAPI{}
	o, _ := newTestOrchestrator(t, workDir, api)

	result, err := o.Push(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if result.PullRequestURL == "" {
		t.Fatal("no pull request opened for a non-default branch")
	}
	if len(api.prs) != 1 {
		t.Fatalf("prs = %d, want 1", len(api.prs))
	}
	pr := api.prs[0]
	if pr.Head != "feature-widgets" || pr.Base != "main" {
		t.Errorf("pr = %+v", pr)
	}
	if !strings.Contains(pr.Body, "add widget scaffolding") {
		t.Errorf("pr body lacks commit subjects: %q", pr.Body)
	}
}

func TestPushCreatesReleaseForReleaseBranch(t *testing.T) {
	workDir := newWorkspace(t, "release/1.2")
	runGit(t, workDir, "tag", "v1.2.0")
	api := &fakeAPI{}
	o, _ := newTestOrchestrator(t, workDir, api)

	result, err := o.Push(context.Background(), Request{Version: "1.2.0"})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if result.TagPushed != "v1.2.0" {
		t.Errorf("tag pushed = %q, want v1.2.0", result.TagPushed)
	}
	if len(api.releases) != 1 {
		t.Fatalf("releases = %d, want 1", len(api.releases))
	}
	rel := api.releases[0]
	if rel.TagName != "v1.2.0" {
		t.Errorf("release tag = %q", rel.TagName)
	}
	if rel.Body != "Initial release" {
		t.Errorf("release body = %q, want Initial release for first tag", rel.Body)
	}
	if result.ReleaseURL == "" {
		t.Error("release URL not surfaced")
	}
}

func TestPushAuthFailureIsFatal(t *testing.T) {
	workDir := newWorkspace(t, "main")
	o, store := newTestOrchestrator(t, workDir, &fakeAPI{})
	o.Resolver = auth.NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := o.Push(context.Background(), Request{})
	if !errors.Is(err, auth.ErrUnavailable) {
		t.Fatalf("Push() error = %v, want ErrUnavailable", err)
	}
	if !IsFatal(err) {
		t.Error("auth failure must be fatal")
	}

	records, err := store.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Outcome != audit.OutcomeAuthFailed {
		t.Errorf("records = %+v, want one AUTH_FAILED", records)
	}
}

func TestRollbackDeclined(t *testing.T) {
	workDir := newWorkspace(t, "main")
	o, _ := newTestOrchestrator(t, workDir, &fakeAPI{})

	repo := gitrepo.New(workDir)
	before, err := repo.Tip(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}

	_, err = o.Rollback(context.Background(), RollbackRequest{
		TargetCommit: before,
		Branch:       "main",
		Confirm:      func(string) (bool, error) { return false, nil },
	})
	if !errors.Is(err, ErrRollbackAborted) {
		t.Fatalf("Rollback() error = %v, want ErrRollbackAborted", err)
	}

	after, err := repo.Tip(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Error("declined rollback mutated the branch")
	}
}

func TestRollbackCreatesBackupAndForcePushes(t *testing.T) {
	workDir := newWorkspace(t, "main")
	repo := gitrepo.New(workDir)
	ctx := context.Background()

	target, err := repo.Tip(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	commitFile(t, workDir, "broken.go", "package broken\n", "feat: commit to roll back")
	badTip, err := repo.Tip(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}

	o, _ := newTestOrchestrator(t, workDir, &fakeAPI{})
	var prompted string
	result, err := o.Rollback(ctx, RollbackRequest{
		TargetCommit: target,
		Branch:       "main",
		Confirm: func(prompt string) (bool, error) {
			prompted = prompt
			return true, nil
		},
	})
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if prompted == "" {
		t.Error("rollback did not ask for confirmation")
	}

	tip, err := repo.Tip(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if tip != target {
		t.Errorf("tip = %s, want reset to %s", tip, target)
	}

	backupTip, err := repo.Tip(ctx, result.BackupBranch)
	if err != nil {
		t.Fatalf("backup branch missing: %v", err)
	}
	if backupTip != badTip {
		t.Errorf("backup tip = %s, want the pre-rollback tip %s", backupTip, badTip)
	}

	remoteTip, err := repo.RemoteTip(ctx, "origin", "main")
	if err != nil {
		t.Fatal(err)
	}
	if remoteTip != target {
		t.Errorf("remote tip = %s, want %s", remoteTip, target)
	}
}

func TestRollbackWithoutConfirmNeverProceeds(t *testing.T) {
	workDir := newWorkspace(t, "main")
	o, _ := newTestOrchestrator(t, workDir, &fakeAPI{})

	_, err := o.Rollback(context.Background(), RollbackRequest{TargetCommit: "HEAD", Branch: "main"})
	if !errors.Is(err, ErrRollbackAborted) {
		t.Fatalf("Rollback() error = %v, want ErrRollbackAborted", err)
	}
}

func TestRollbackConflictsWhenRemoteMoved(t *testing.T) {
	workDir := newWorkspace(t, "main")
	repo := gitrepo.New(workDir)
	ctx := context.Background()

	target, err := repo.Tip(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	commitFile(t, workDir, "broken.go", "package broken\n", "feat: commit to roll back")
	badTip, err := repo.Tip(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	runGit(t, workDir, "push", "origin", "main")

	// Someone else pushes after our last fetch, so the lease on the
	// remote-tracking ref is stale.
	pushURL := gitConfig(t, workDir, "remote.origin.pushurl")
	otherDir := t.TempDir()
	runGit(t, otherDir, "clone", pushURL, "clone")
	otherClone := filepath.Join(otherDir, "clone")
	runGit(t, otherClone, "config", "user.email", "other@example.com")
	runGit(t, otherClone, "config", "user.name", "Other")
	runGit(t, otherClone, "config", "commit.gpgsign", "false")
	commitFile(t, otherClone, "hotfix.go", "package hotfix\n", "fix: urgent hotfix")
	runGit(t, otherClone, "push", "origin", "main")
	movedTip := tipOf(t, otherClone, "HEAD")

	o, _ := newTestOrchestrator(t, workDir, &fakeAPI{})
	result, err := o.Rollback(ctx, RollbackRequest{
		TargetCommit: target,
		Branch:       "main",
		Confirm:      func(string) (bool, error) { return true, nil },
	})
	if err == nil {
		t.Fatal("Rollback() reported success with a moved remote")
	}
	if errors.Is(err, ErrRollbackAborted) {
		t.Fatalf("Rollback() error = %v, want a publish failure, not an abort", err)
	}

	// The local reset happened and is preserved on the backup branch.
	tip, tipErr := repo.Tip(ctx, "main")
	if tipErr != nil {
		t.Fatal(tipErr)
	}
	if tip != target {
		t.Errorf("local tip = %s, want the rollback target %s", tip, target)
	}
	if result != nil && result.BackupBranch != "" {
		backupTip, backupErr := repo.Tip(ctx, result.BackupBranch)
		if backupErr != nil {
			t.Fatalf("backup branch missing: %v", backupErr)
		}
		if backupTip != badTip {
			t.Errorf("backup tip = %s, want %s", backupTip, badTip)
		}
	}

	// The moved remote was never rebased onto or overwritten.
	runGit(t, otherClone, "fetch", "origin")
	if got := tipOf(t, otherClone, "origin/main"); got != movedTip {
		t.Errorf("remote tip = %s, want untouched %s", got, movedTip)
	}
}

func gitConfig(t *testing.T, dir, key string) string {
	t.Helper()
	result, err := cmdutil.Run(context.Background(), cmdutil.ExecOptions{Dir: dir},
		[]string{"git", "config", "--get", key})
	if err != nil || !result.OK() {
		t.Fatalf("git config %s failed: %v (%s)", key, err, result.Combined())
	}
	return strings.TrimSpace(result.Stdout)
}

func tipOf(t *testing.T, dir, ref string) string {
	t.Helper()
	result, err := cmdutil.Run(context.Background(), cmdutil.ExecOptions{Dir: dir},
		[]string{"git", "rev-parse", ref})
	if err != nil || !result.OK() {
		t.Fatalf("git rev-parse %s failed: %v (%s)", ref, err, result.Combined())
	}
	return strings.TrimSpace(result.Stdout)
}

func TestValidationFailureRaisesAlert(t *testing.T) {
	workDir := newWorkspace(t, "main")
	if err := os.WriteFile(filepath.Join(workDir, "dirty.txt"), []byte("uncommitted\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, workDir, "add", "dirty.txt")

	var mu sync.Mutex
	var bodies []string
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	o, _ := newTestOrchestrator(t, workDir, &fakeAPI{})
	o.Notifier = notify.New(slog.New(slog.NewTextHandler(io.Discard, nil)), webhook.URL)

	_, err := o.Push(context.Background(), Request{})
	var failed *validate.FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Push() error = %v, want FailedError", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) == 0 {
		t.Fatal("validation failure raised no alert")
	}
	if !strings.Contains(bodies[0], "worktree") {
		t.Errorf("alert %q does not name the failed stage", bodies[0])
	}
	if !strings.Contains(bodies[0], string(notify.SeverityWarning)) {
		t.Errorf("alert %q is not a warning", bodies[0])
	}
}
