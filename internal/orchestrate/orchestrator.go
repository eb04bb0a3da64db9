// Package orchestrate ties the push pipeline together: credential
// resolution, validation, the resilient push, and post-push actions run
// sequentially for one branch/remote pair.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pushgate/internal/audit"
	"pushgate/internal/auth"
	"pushgate/internal/breaker"
	"pushgate/internal/config"
	"pushgate/internal/gitrepo"
	"pushgate/internal/notify"
	"pushgate/internal/push"
	"pushgate/internal/remote"
	"pushgate/internal/validate"
)

// DefaultRemote is used when the caller names no remote.
const DefaultRemote = "origin"

// API is the slice of the hosting client the orchestrator needs. It is
// satisfied by *remote.Client.
type API interface {
	validate.ProtectionAPI
	GetRepository(ctx context.Context, owner, repo string) (string, error)
	CreateRelease(ctx context.Context, owner, repo string, req remote.ReleaseRequest) (string, error)
	CreatePullRequest(ctx context.Context, owner, repo string, req remote.PullRequestRequest) (string, error)
}

// Request describes one push invocation.
type Request struct {
	Branch  string
	Remote  string
	Version string
	Force   bool

	// SkipValidation bypasses the pipeline entirely (--no-validation).
	SkipValidation bool
}

// Result collects everything a successful invocation produced.
type Result struct {
	Attempt        *push.Attempt
	Report         *validate.Report
	TagPushed      string
	ReleaseURL     string
	PullRequestURL string
	AuditPath      string
}

// Orchestrator drives the full push flow.
type Orchestrator struct {
	Config   *config.Config
	Repo     *gitrepo.Repo
	Audit    *audit.Store
	Notifier *notify.Notifier
	Breakers *breaker.Registry
	Resolver *auth.Resolver
	Executor *push.Executor
	Rules    []validate.Rule
	Logger   *slog.Logger

	// NewAPI builds the hosting client once a credential is resolved.
	// Replaceable in tests.
	NewAPI func(ctx context.Context, cred *auth.Credential) (API, error)
}

// New wires an orchestrator over already-constructed collaborators.
func New(cfg *config.Config, repo *gitrepo.Repo, store *audit.Store, notifier *notify.Notifier, resolver *auth.Resolver, executor *push.Executor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		Config:   cfg,
		Repo:     repo,
		Audit:    store,
		Notifier: notifier,
		Breakers: breaker.NewRegistry(breaker.DefaultFailureThreshold, breaker.DefaultCooldown, logger),
		Resolver: resolver,
		Executor: executor,
		Logger:   logger,
	}
	o.NewAPI = func(ctx context.Context, cred *auth.Credential) (API, error) {
		return remote.NewClient(ctx, cred, cfg.APIURL, logger)
	}
	return o
}

// Push runs the full pipeline: resolve a credential, validate, execute
// the push, then run post-push actions. Validation and authentication
// failures are fatal and abort before any mutation.
func (o *Orchestrator) Push(ctx context.Context, req Request) (*Result, error) {
	branch, remoteName, err := o.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if o.Audit != nil {
		result.AuditPath = o.Audit.Path()
	}

	cred, err := o.Resolver.Resolve(ctx)
	if err != nil {
		o.recordOutcome(ctx, branch, remoteName, req.Version, audit.OutcomeAuthFailed, err.Error())
		return result, fmt.Errorf("credential resolution: %w", err)
	}
	o.Logger.Info("credential resolved", "credential", cred)

	api, apiErr := o.NewAPI(ctx, cred)
	if apiErr != nil {
		// The push itself only needs git-level auth; API-backed stages
		// and post-push actions degrade gracefully.
		o.Logger.Warn("hosting API unavailable", "error", apiErr)
		api = nil
	}

	if req.SkipValidation || !o.Config.EnablePrePushHooks {
		o.Logger.Warn("validation bypassed", "branch", branch)
	} else {
		report, err := o.runValidation(ctx, api, branch, remoteName)
		if err != nil {
			return result, err
		}
		result.Report = report
		if report.Overall() == validate.StatusFail {
			failed := report.FailedStages()
			o.recordOutcome(ctx, branch, remoteName, req.Version, audit.OutcomeValidationFailed,
				strings.Join(failed, ", "))
			if o.Notifier != nil {
				o.Notifier.Notify(ctx, notify.SeverityWarning,
					fmt.Sprintf("validation failed for %s: %s", branch, strings.Join(failed, ", ")),
					map[string]string{"branch": branch, "stages": strings.Join(failed, ", ")})
			}
			return result, &validate.FailedError{Stages: failed}
		}
	}

	attempt, err := o.Executor.Push(ctx, branch, remoteName, req.Version, req.Force)
	result.Attempt = attempt
	if err != nil {
		return result, err
	}

	o.runPostPush(ctx, api, branch, remoteName, req.Version, attempt, result)
	return result, nil
}

// resolveTarget fills in the current branch and the default remote when
// the caller omitted them.
func (o *Orchestrator) resolveTarget(ctx context.Context, req Request) (branch, remoteName string, err error) {
	branch = req.Branch
	if branch == "" {
		branch, err = o.Repo.CurrentBranch(ctx)
		if err != nil {
			return "", "", fmt.Errorf("cannot determine current branch: %w", err)
		}
	}
	remoteName = req.Remote
	if remoteName == "" {
		remoteName = DefaultRemote
	}
	return branch, remoteName, nil
}

func (o *Orchestrator) runValidation(ctx context.Context, api API, branch, remoteName string) (*validate.Report, error) {
	var owner, repoName string
	if api != nil {
		var err error
		owner, repoName, err = o.Repo.RemoteOwnerRepo(ctx, remoteName)
		if err != nil {
			o.Logger.Warn("cannot derive owner/repo from remote; skipping protection check", "error", err)
			api = nil
		}
	}

	pipeline := validate.Build(validate.BuildOptions{
		Config:   o.Config,
		Repo:     o.Repo,
		API:      api,
		Breakers: o.Breakers,
		Remote:   remoteName,
		Branch:   branch,
		Owner:    owner,
		RepoName: repoName,
		Rules:    o.Rules,
		Logger:   o.Logger,
	})

	report := pipeline.Validate(ctx, branch)
	if o.Audit != nil {
		if _, err := o.Audit.AppendReport(ctx, &audit.ReportRecord{
			Branch:       branch,
			Overall:      string(report.Overall()),
			FailedStages: strings.Join(report.FailedStages(), ","),
		}); err != nil {
			o.Logger.Error("could not record validation report", "error", err)
		}
	}
	return report, nil
}

// recordOutcome appends a terminal record for invocations that never
// reached the executor (auth or validation failure).
func (o *Orchestrator) recordOutcome(ctx context.Context, branch, remoteName, version string, outcome audit.Outcome, detail string) {
	if o.Audit == nil {
		return
	}
	_, err := o.Audit.AppendAttempt(ctx, &audit.AttemptRecord{
		Branch:  branch,
		Remote:  remoteName,
		Version: version,
		Phase:   audit.PhaseResult,
		Outcome: outcome,
		Detail:  detail,
	})
	if err != nil {
		o.Logger.Error("audit write failed", "branch", branch, "error", err)
	}
}

// IsFatal reports whether the error must abort with no retry: bad
// credentials, bad configuration, or a failed validation report.
func IsFatal(err error) bool {
	var failed *validate.FailedError
	return errors.Is(err, auth.ErrUnavailable) ||
		errors.Is(err, config.ErrInvalid) ||
		errors.As(err, &failed)
}
