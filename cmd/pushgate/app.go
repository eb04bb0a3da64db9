package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pushgate/internal/audit"
	"pushgate/internal/auth"
	"pushgate/internal/config"
	"pushgate/internal/gitrepo"
	"pushgate/internal/notify"
	"pushgate/internal/orchestrate"
	"pushgate/internal/push"
	"pushgate/internal/validate"
	"pushgate/pkg/fileutil"
)

// app bundles the wired collaborators every subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *gitrepo.Repo
	store    *audit.Store
	notifier *notify.Notifier
	orch     *orchestrate.Orchestrator
}

func newApp() (*app, error) {
	logger := setupLogging()

	path := configFile
	if path == "" {
		path = fileutil.FindConfigOptional("config.json")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	repo := gitrepo.New(".")
	repo.Timeout = time.Duration(cfg.PushTimeoutSeconds) * time.Second

	store, err := audit.Open(auditPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	notifier := notify.New(logger, os.Getenv("PUSHGATE_ALERT_WEBHOOK"))
	resolver := auth.DefaultResolver(logger, cfg.Token, cfg.APIURL)

	executor := push.NewExecutor(repo, store, push.NewLockManager(),
		cfg.MaxPushRetries, time.Duration(cfg.PushTimeoutSeconds)*time.Second, logger)
	executor.Alert = func(ctx context.Context, message string) {
		notifier.Notify(ctx, notify.SeverityWarning, message, nil)
	}
	if cfg.Token != "" {
		executor.Secrets = []string{cfg.Token}
	}

	orch := orchestrate.New(cfg, repo, store, notifier, resolver, executor, logger)

	rules, err := validate.LoadRules(fileutil.FindConfigOptional("secret-rules.yaml"))
	if err != nil {
		logger.Warn("could not load secret scanning rules, using defaults", "error", err)
		rules = validate.DefaultRules()
	}
	orch.Rules = rules

	return &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		store:    store,
		notifier: notifier,
		orch:     orch,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("could not close audit database", "error", err)
		}
	}
}

// auditPath resolves the audit database location: the --db flag, then the
// per-user data location, then the current directory.
func auditPath() string {
	if dbPath != "" {
		return dbPath
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pushgate", "audit.db")
	}
	return "./pushgate.db"
}

// setupLogging builds the CLI logger: text on stderr, level taken from
// PUSHGATE_LOG_LEVEL.
func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("PUSHGATE_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
