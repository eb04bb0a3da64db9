// Package remote is the authenticated client for the hosting API. It
// attaches the resolved credential and a fixed client identifier to every
// request and classifies failures into transport and remote errors. Retry
// policy lives in callers, not here.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"pushgate/internal/auth"
)

// UserAgent is the fixed client identifier sent with every API request.
const UserAgent = "pushgate"

// requestsPerSecond throttles outbound API calls well under GitHub's
// secondary rate limits.
const requestsPerSecond = 5

// ReleaseRequest describes a release to create. Immutable; constructed
// once per post-push action.
type ReleaseRequest struct {
	TagName string
	Name    string
	Body    string
	Draft   bool
}

// PullRequestRequest describes a pull request to open. Immutable.
type PullRequestRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// BranchProtection summarizes protection rules on a branch.
type BranchProtection struct {
	Protected           bool
	RequiredReviews     int
	RequireStatusChecks bool
	EnforceAdmins       bool
}

// Client wraps the hosting API with authentication and throttling.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient builds an authenticated client from the resolved credential.
// A non-default apiURL (GitHub Enterprise) is honored.
func NewClient(ctx context.Context, cred *auth.Credential, apiURL string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	token, err := cred.Token()
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	gh := github.NewClient(httpClient)
	gh.UserAgent = UserAgent
	if apiURL != "" && !strings.HasPrefix(apiURL, "https://api.github.com") {
		gh, err = gh.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid API URL: %w", err)
		}
		gh.UserAgent = UserAgent
	}

	return &Client{
		gh:      gh,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:  logger,
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Op: "rate-wait", Err: err}
	}
	return nil
}

// CurrentUser returns the login of the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", classify("get user", resp, err)
	}
	return user.GetLogin(), nil
}

// GetRepository fetches basic repository info, mainly to verify the
// credential has access.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (defaultBranch string, err error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", classify("get repository", resp, err)
	}
	return r.GetDefaultBranch(), nil
}

// CreateRelease publishes a release and returns its HTML URL.
func (c *Client) CreateRelease(ctx context.Context, owner, repo string, req ReleaseRequest) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	release := &github.RepositoryRelease{
		TagName: github.String(req.TagName),
		Name:    github.String(req.Name),
		Body:    github.String(req.Body),
		Draft:   github.Bool(req.Draft),
	}

	created, resp, err := c.gh.Repositories.CreateRelease(ctx, owner, repo, release)
	if err != nil {
		return "", classify("create release", resp, err)
	}

	c.logger.Info("release created", "tag", req.TagName, "url", created.GetHTMLURL())
	return created.GetHTMLURL(), nil
}

// CreatePullRequest opens a pull request and returns its HTML URL.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, req PullRequestRequest) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	pr := &github.NewPullRequest{
		Title: github.String(req.Title),
		Head:  github.String(req.Head),
		Base:  github.String(req.Base),
		Body:  github.String(req.Body),
	}

	created, resp, err := c.gh.PullRequests.Create(ctx, owner, repo, pr)
	if err != nil {
		return "", classify("create pull request", resp, err)
	}

	c.logger.Info("pull request opened", "head", req.Head, "url", created.GetHTMLURL())
	return created.GetHTMLURL(), nil
}

// GetBranchProtection looks up protection rules for a branch. An
// unprotected branch returns Protected=false with a nil error; the policy
// decision belongs to the caller.
func (c *Client) GetBranchProtection(ctx context.Context, owner, repo, branch string) (*BranchProtection, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	protection, resp, err := c.gh.Repositories.GetBranchProtection(ctx, owner, repo, branch)
	if err != nil {
		classified := classify("get branch protection", resp, err)
		var remoteErr *RemoteError
		if AsRemoteError(classified, &remoteErr) && remoteErr.Status == 404 {
			return &BranchProtection{Protected: false}, nil
		}
		return nil, classified
	}

	bp := &BranchProtection{Protected: true}
	if reviews := protection.GetRequiredPullRequestReviews(); reviews != nil {
		bp.RequiredReviews = reviews.RequiredApprovingReviewCount
	}
	if checks := protection.GetRequiredStatusChecks(); checks != nil {
		bp.RequireStatusChecks = true
	}
	if admins := protection.GetEnforceAdmins(); admins != nil {
		bp.EnforceAdmins = admins.Enabled
	}
	return bp, nil
}

// Do issues a raw API call for endpoints the typed helpers do not cover.
// The response body is decoded into v when v is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, v any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := c.gh.NewRequest(method, strings.TrimPrefix(path, "/"), body)
	if err != nil {
		return &NetworkError{Op: "build request", Err: err}
	}

	resp, err := c.gh.Do(ctx, req, v)
	if err != nil {
		return classify(method+" "+path, resp, err)
	}
	return nil
}
