package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const statusAttemptsLimit = 10

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent push attempts and outcome totals",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	summary, err := a.store.Summarize(ctx)
	if err != nil {
		return fmt.Errorf("failed to aggregate audit trail: %w", err)
	}

	fmt.Printf("Audit log: %s\n", a.store.Path())
	fmt.Printf("Total attempts: %d\n", summary.TotalAttempts)
	for outcome, count := range summary.ByOutcome {
		fmt.Printf("  %-18s %d\n", outcome, count)
	}

	records, err := a.store.RecentAttempts(ctx, statusAttemptsLimit)
	if err != nil {
		return fmt.Errorf("failed to read audit trail: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No push attempts recorded yet.")
		return nil
	}

	fmt.Println("\nRecent attempts:")
	for _, rec := range records {
		line := fmt.Sprintf("  %s  %s -> %s  #%d %s",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.Branch, rec.Remote, rec.AttemptNumber, rec.Phase)
		if rec.Outcome != "" {
			line += fmt.Sprintf("  %s", rec.Outcome)
		}
		fmt.Println(line)
	}
	return nil
}
