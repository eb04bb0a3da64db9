package main

import (
	"fmt"

	"pushgate/internal/audit"
	"pushgate/internal/server"

	"github.com/spf13/cobra"
)

var (
	host     string
	port     int
	testMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only status API",
	Long: `Start the HTTP server exposing the audit trail: recent push attempts,
per-branch history, and aggregated outcome counters. The server never
mutates the audit trail.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("PUSHGATE_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("PUSHGATE_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", false, "Disable rate limiting (for tests)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogging()

	path := auditPath()
	logger.Info("Opening audit database", "db", path)
	store, err := audit.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audit database: %w", err)
	}
	defer store.Close()

	srv := server.NewServer(store, logger, testMode)
	if err := srv.Start(host, port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
