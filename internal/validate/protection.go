package validate

import (
	"context"
	"fmt"

	"pushgate/internal/breaker"
	"pushgate/internal/remote"
)

// ProtectionAPI is the slice of the remote client this stage needs.
type ProtectionAPI interface {
	GetBranchProtection(ctx context.Context, owner, repo, branch string) (*remote.BranchProtection, error)
}

// ProtectionStage queries the hosting API for protection rules on the
// target branch. Absence of protection is advisory: a warning, never a
// failure. The API call runs under the named circuit breaker so a degraded
// API cannot stall or fail the pipeline.
type ProtectionStage struct {
	API      ProtectionAPI
	Breaker  *breaker.Breaker
	Owner    string
	RepoName string
	Branch   string
}

func (s *ProtectionStage) Name() string { return "branch-protection" }

func (s *ProtectionStage) Run(ctx context.Context) Result {
	fallback := func(ctx context.Context, cause error) (any, error) {
		return nil, cause
	}

	value, err := s.Breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return s.API.GetBranchProtection(ctx, s.Owner, s.RepoName, s.Branch)
	}, fallback)
	if err != nil {
		return Result{
			Status:   StatusPass,
			Detail:   "protection status unknown",
			Warnings: []string{fmt.Sprintf("could not query branch protection: %v", err)},
		}
	}

	bp, ok := value.(*remote.BranchProtection)
	if !ok || bp == nil {
		return Result{Status: StatusPass, Detail: "protection status unknown"}
	}

	if !bp.Protected {
		return Result{
			Status:   StatusPass,
			Detail:   "branch is not protected",
			Warnings: []string{fmt.Sprintf("no protection rules on %s; policy is advisory", s.Branch)},
		}
	}

	return Result{
		Status: StatusPass,
		Detail: fmt.Sprintf("protected (reviews=%d, status checks=%t, enforce admins=%t)",
			bp.RequiredReviews, bp.RequireStatusChecks, bp.EnforceAdmins),
	}
}
