package auth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"pushgate/pkg/cmdutil"
)

// CredentialSource yields a token or reports that it has none. Sources are
// registered into the resolver at construction time and tried in order.
type CredentialSource interface {
	Name() Source
	// Token returns the token, or "" with a nil error when this source
	// simply has nothing to offer. Errors are logged and treated as "no
	// token" so a broken source never blocks the rest of the chain.
	Token(ctx context.Context) (string, error)
}

// Resolver tries each registered source in priority order. The first
// source yielding a non-empty value wins; there is no merging.
type Resolver struct {
	sources []CredentialSource
	logger  *slog.Logger
}

// NewResolver builds a resolver over an explicit source chain.
func NewResolver(logger *slog.Logger, sources ...CredentialSource) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sources: sources, logger: logger}
}

// DefaultResolver builds the standard five-source chain: explicit token
// from environment/config, the gh CLI helper, the user's git configuration,
// the local encrypted store, and the GitHub App installation flow.
func DefaultResolver(logger *slog.Logger, configToken, apiURL string) *Resolver {
	return NewResolver(logger,
		&EnvSource{ConfigToken: configToken},
		&CLISource{},
		&GitConfigSource{},
		NewStoreSource(DefaultStorePath(), logger),
		&AppJWTSource{APIURL: apiURL},
	)
}

// Resolve walks the chain and returns the first credential found, or
// ErrUnavailable when all sources are exhausted.
func (r *Resolver) Resolve(ctx context.Context) (*Credential, error) {
	for _, src := range r.sources {
		token, err := src.Token(ctx)
		if err != nil {
			r.logger.Debug("credential source unavailable", "source", string(src.Name()), "error", err)
			continue
		}
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		r.logger.Info("credential resolved", "source", string(src.Name()))
		return NewCredential(src.Name(), token), nil
	}
	return nil, fmt.Errorf("%w: tried %d sources", ErrUnavailable, len(r.sources))
}

// EnvSource reads an explicit token from the process environment or the
// loaded configuration.
type EnvSource struct {
	ConfigToken string
}

func (s *EnvSource) Name() Source { return SourceEnv }

func (s *EnvSource) Token(ctx context.Context) (string, error) {
	for _, key := range []string{"PUSHGATE_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return s.ConfigToken, nil
}

// CLISource asks an already-authenticated gh CLI for its token.
type CLISource struct{}

func (s *CLISource) Name() Source { return SourceCLITool }

func (s *CLISource) Token(ctx context.Context) (string, error) {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{}, []string{"gh", "auth", "token"})
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", nil
	}
	return result.Stdout, nil
}

// GitConfigSource reads a token from the user's global git configuration.
type GitConfigSource struct{}

func (s *GitConfigSource) Name() Source { return SourceGitConfig }

func (s *GitConfigSource) Token(ctx context.Context) (string, error) {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{},
		[]string{"git", "config", "--global", "--get", "github.token"})
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", nil
	}
	return result.Stdout, nil
}
