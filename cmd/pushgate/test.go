package main

import (
	"fmt"

	"pushgate/internal/orchestrate"
	"pushgate/internal/validate"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the validation pipeline without pushing",
	Args:  cobra.NoArgs,
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	branch, err := a.repo.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("cannot determine current branch: %w", err)
	}

	pipeline := validate.Build(validate.BuildOptions{
		Config: a.cfg,
		Repo:   a.repo,
		Remote: orchestrate.DefaultRemote,
		Branch: branch,
		Rules:  a.orch.Rules,
		Logger: a.logger,
	})

	report := pipeline.Validate(ctx, branch)
	fmt.Print(report.String())

	if report.Overall() == validate.StatusFail {
		return &validate.FailedError{Stages: report.FailedStages()}
	}
	return nil
}
