package orchestrate

import (
	"context"
	"fmt"
	"strings"

	"pushgate/internal/audit"
	"pushgate/internal/push"
	"pushgate/internal/remote"
)

// prSubjectLimit bounds the commit subjects listed in an auto-generated
// pull request body.
const prSubjectLimit = 10

// runPostPush executes the follow-on actions after a successful push.
// Each action is independently best-effort: a failure is logged and the
// next action still runs, since the push itself already landed.
func (o *Orchestrator) runPostPush(ctx context.Context, api API, branch, remoteName, version string, attempt *push.Attempt, result *Result) {
	if version != "" {
		o.pushTag(ctx, remoteName, version, result)
	}

	if api != nil {
		owner, repoName, err := o.Repo.RemoteOwnerRepo(ctx, remoteName)
		if err != nil {
			o.Logger.Warn("skipping release and pull request actions", "error", err)
		} else {
			if version != "" && strings.HasPrefix(branch, o.Config.ReleaseBranchPrefix) {
				o.createRelease(ctx, api, owner, repoName, version, result)
			}
			if branch != o.Config.DefaultBranch {
				o.openPullRequest(ctx, api, owner, repoName, branch, result)
			}
		}
	}

	if o.Notifier != nil {
		fields := map[string]string{"branch": branch, "remote": remoteName}
		if version != "" {
			fields["version"] = version
		}
		o.Notifier.Info(ctx, "push complete", fields)
	}

	if o.Audit != nil {
		err := o.Audit.AppendMetric(ctx, &audit.MetricRecord{
			Event:           "push",
			Branch:          branch,
			Remote:          remoteName,
			DurationSeconds: attempt.Duration.Seconds(),
			Success:         true,
		})
		if err != nil {
			o.Logger.Error("could not record push metric", "error", err)
		}
	}
}

// Release publishes the tag for version and creates a hosted release
// with generated notes, independent of a push invocation.
func (o *Orchestrator) Release(ctx context.Context, version, remoteName string) (string, error) {
	if remoteName == "" {
		remoteName = DefaultRemote
	}

	cred, err := o.Resolver.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("credential resolution: %w", err)
	}
	api, err := o.NewAPI(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("hosting API unavailable: %w", err)
	}
	owner, repoName, err := o.Repo.RemoteOwnerRepo(ctx, remoteName)
	if err != nil {
		return "", fmt.Errorf("cannot derive owner/repo from remote %s: %w", remoteName, err)
	}

	result := &Result{}
	o.pushTag(ctx, remoteName, version, result)
	o.createRelease(ctx, api, owner, repoName, version, result)
	if result.ReleaseURL == "" {
		return "", fmt.Errorf("release for %s was not created", version)
	}
	return result.ReleaseURL, nil
}

// pushTag publishes the local tag for version if one exists. Both
// "v<version>" and the bare version are accepted.
func (o *Orchestrator) pushTag(ctx context.Context, remoteName, version string, result *Result) {
	for _, tag := range []string{"v" + version, version} {
		exists, err := o.Repo.TagExists(ctx, tag)
		if err != nil {
			o.Logger.Warn("tag lookup failed", "tag", tag, "error", err)
			return
		}
		if !exists {
			continue
		}
		if err := o.Repo.PushTag(ctx, remoteName, tag); err != nil {
			o.Logger.Warn("tag push failed", "tag", tag, "error", err)
			return
		}
		o.Logger.Info("tag pushed", "tag", tag, "remote", remoteName)
		result.TagPushed = tag
		return
	}
}

func (o *Orchestrator) createRelease(ctx context.Context, api API, owner, repoName, version string, result *Result) {
	tag := "v" + version
	if result.TagPushed != "" {
		tag = result.TagPushed
	}

	url, err := api.CreateRelease(ctx, owner, repoName, remote.ReleaseRequest{
		TagName: tag,
		Name:    "Release " + version,
		Body:    o.releaseNotes(ctx, tag),
	})
	if err != nil {
		o.Logger.Warn("release creation failed", "version", version, "error", err)
		return
	}
	o.Logger.Info("release created", "version", version, "url", url)
	result.ReleaseURL = url
}

// releaseNotes lists the commit subjects since the previous tag, or a
// fixed first-release note when no earlier tag exists.
func (o *Orchestrator) releaseNotes(ctx context.Context, currentTag string) string {
	previous, err := o.Repo.LatestTag(ctx)
	if err == nil && previous == currentTag {
		// The tag for this release already exists locally; step past it.
		previous, err = o.Repo.PreviousTag(ctx, currentTag)
	}
	if err != nil || previous == "" {
		return "Initial release"
	}

	subjects, err := o.Repo.SubjectsSince(ctx, previous, 0)
	if err != nil || len(subjects) == 0 {
		return "Initial release"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Changes since %s\n\n", previous)
	for _, subject := range subjects {
		fmt.Fprintf(&b, "- %s\n", subject)
	}
	return b.String()
}

func (o *Orchestrator) openPullRequest(ctx context.Context, api API, owner, repoName, branch string, result *Result) {
	base := o.Config.DefaultBranch
	subjects, err := o.Repo.SubjectsSince(ctx, "", prSubjectLimit)
	if err != nil {
		o.Logger.Warn("cannot list commit subjects for pull request body", "error", err)
	}

	var b strings.Builder
	b.WriteString("Automated pull request.\n\nRecent commits:\n")
	for _, subject := range subjects {
		fmt.Fprintf(&b, "- %s\n", subject)
	}

	url, err := api.CreatePullRequest(ctx, owner, repoName, remote.PullRequestRequest{
		Title: fmt.Sprintf("Merge %s into %s", branch, base),
		Head:  branch,
		Base:  base,
		Body:  b.String(),
	})
	if err != nil {
		o.Logger.Warn("pull request creation failed", "branch", branch, "error", err)
		return
	}
	o.Logger.Info("pull request opened", "branch", branch, "url", url)
	result.PullRequestURL = url
}
