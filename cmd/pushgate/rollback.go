package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"pushgate/internal/orchestrate"
	"pushgate/internal/security"

	"github.com/spf13/cobra"
)

var (
	rollbackRemote string
	rollbackYes    bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <commit> [branch]",
	Short: "Reset a branch to a commit and force-push the result",
	Long: `Emergency revert: reset the branch to the given commit and publish the
reset with a lease-protected force push.

A timestamped backup branch pointing at the current tip is created before
anything is mutated. The command always asks for confirmation unless
--yes is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackRemote, "remote", "origin", "Remote to force-push to")
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runRollback(cmd *cobra.Command, args []string) error {
	target := args[0]
	if err := security.ValidateCommitHash(target); err != nil {
		return err
	}
	req := orchestrate.RollbackRequest{
		TargetCommit: target,
		Remote:       rollbackRemote,
		Confirm:      confirmOnTerminal,
	}
	if len(args) > 1 {
		if err := security.ValidateBranchName(args[1]); err != nil {
			return err
		}
		req.Branch = args[1]
	}
	if err := security.ValidateRemoteName(rollbackRemote); err != nil {
		return err
	}
	if rollbackYes {
		req.Confirm = func(string) (bool, error) { return true, nil }
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.orch.Rollback(cmd.Context(), req)
	if errors.Is(err, orchestrate.ErrRollbackAborted) {
		fmt.Println("Rollback aborted; nothing was changed.")
		return nil
	}
	if err != nil {
		if result != nil && result.BackupBranch != "" {
			fmt.Fprintf(os.Stderr, "Pre-rollback state preserved on branch %s\n", result.BackupBranch)
		}
		return err
	}

	fmt.Printf("Rolled back to %s; previous tip preserved on %s\n", target, result.BackupBranch)
	return nil
}

// confirmOnTerminal asks the operator on stdin. Anything other than an
// explicit yes declines.
func confirmOnTerminal(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
