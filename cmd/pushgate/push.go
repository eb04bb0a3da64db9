package main

import (
	"errors"
	"fmt"

	"pushgate/internal/orchestrate"
	"pushgate/internal/security"
	"pushgate/internal/validate"

	"github.com/spf13/cobra"
)

var (
	pushForce        bool
	pushNoValidation bool
	pushVersion      string
)

var pushCmd = &cobra.Command{
	Use:   "push [branch] [remote]",
	Short: "Validate and push a branch",
	Long: `Run the validation pipeline against the pending commits, then push the
branch with bounded retries and automatic rebase on divergence.

With no arguments the current branch is pushed to origin.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().BoolVarP(&pushForce, "force", "f", false, "Use a lease-protected force push")
	pushCmd.Flags().BoolVar(&pushNoValidation, "no-validation", false, "Bypass the validation pipeline")
	pushCmd.Flags().StringVar(&pushVersion, "version", "", "Version to tag/release after a successful push")
}

func runPush(cmd *cobra.Command, args []string) error {
	req := orchestrate.Request{
		Force:          pushForce,
		SkipValidation: pushNoValidation,
		Version:        pushVersion,
	}
	if len(args) > 0 {
		if err := security.ValidateBranchName(args[0]); err != nil {
			return err
		}
		req.Branch = args[0]
	}
	if len(args) > 1 {
		if err := security.ValidateRemoteName(args[1]); err != nil {
			return err
		}
		req.Remote = args[1]
	}
	if req.Version != "" {
		if err := security.ValidateVersion(req.Version); err != nil {
			return err
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.orch.Push(cmd.Context(), req)
	if result != nil && result.Report != nil {
		fmt.Print(result.Report.String())
	}
	if err != nil {
		var failed *validate.FailedError
		if errors.As(err, &failed) {
			return fmt.Errorf("validation failed in stage(s): %v", failed.Stages)
		}
		return err
	}

	fmt.Printf("Pushed %s to %s (attempt %d)\n",
		result.Attempt.Branch, result.Attempt.Remote, result.Attempt.Number)
	if result.Attempt.Resolved {
		fmt.Println("Divergence resolved by automatic rebase.")
	}
	if result.TagPushed != "" {
		fmt.Printf("Tag pushed: %s\n", result.TagPushed)
	}
	if result.ReleaseURL != "" {
		fmt.Printf("Release: %s\n", result.ReleaseURL)
	}
	if result.PullRequestURL != "" {
		fmt.Printf("Pull request: %s\n", result.PullRequestURL)
	}
	fmt.Printf("Audit log: %s\n", result.AuditPath)
	return nil
}
