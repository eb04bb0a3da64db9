package validate

import (
	"log/slog"

	"pushgate/internal/breaker"
	"pushgate/internal/config"
	"pushgate/internal/gitrepo"
)

// BuildOptions carries everything needed to assemble the standard
// pipeline for one push invocation.
type BuildOptions struct {
	Config   *config.Config
	Repo     *gitrepo.Repo
	API      ProtectionAPI
	Breakers *breaker.Registry
	Remote   string
	Branch   string
	Owner    string
	RepoName string
	Rules    []Rule
	Logger   *slog.Logger
}

// Build assembles the standard stage set. Worktree, commits and
// branch-protection run sequentially; the security scan, test execution
// and performance check are independent and run concurrently. Stages
// disabled by configuration are simply not registered.
func Build(opts BuildOptions) *Pipeline {
	cfg := opts.Config
	p := NewPipeline(opts.Logger)

	p.Register(&WorktreeStage{Repo: opts.Repo})
	p.Register(&CommitsStage{
		Repo:                 opts.Repo,
		Remote:               opts.Remote,
		Branch:               opts.Branch,
		MaxCommitSizeMB:      cfg.MaxCommitSizeMB,
		RequireSignedCommits: cfg.RequireSignedCommits,
	})

	if opts.API != nil {
		p.Register(&ProtectionStage{
			API:      opts.API,
			Breaker:  opts.Breakers.Get("github-api"),
			Owner:    opts.Owner,
			RepoName: opts.RepoName,
			Branch:   opts.Branch,
		})
	}

	if cfg.EnableSecurityScanning {
		p.RegisterConcurrent(&SecretsStage{
			Repo:          opts.Repo,
			Rules:         opts.Rules,
			MaxFindings:   cfg.MaxSecurityVulnerabilities,
			ExtraScanners: cfg.SecurityScanners,
		})
	}
	p.RegisterConcurrent(&TestsStage{
		Repo:        opts.Repo,
		ExtraSuites: cfg.TestCommands,
		MinCoverage: cfg.MinTestCoverage,
	})
	if cfg.EnablePerformanceTesting {
		p.RegisterConcurrent(&PerfStage{Repo: opts.Repo})
	}

	return p
}
