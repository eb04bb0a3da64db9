package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubSource is a scripted credential source for resolver tests.
type stubSource struct {
	name  Source
	token string
	err   error
	calls int
}

func (s *stubSource) Name() Source { return s.name }

func (s *stubSource) Token(ctx context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestResolver_FirstNonEmptyWins(t *testing.T) {
	first := &stubSource{name: SourceEnv, token: ""}
	second := &stubSource{name: SourceCLITool, token: "cli-token"}
	third := &stubSource{name: SourceGitConfig, token: "git-token"}

	r := NewResolver(nil, first, second, third)
	cred, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cred.Source != SourceCLITool {
		t.Errorf("Expected source cli-tool, got %s", cred.Source)
	}

	token, err := cred.Token()
	if err != nil {
		t.Fatal(err)
	}
	if token != "cli-token" {
		t.Errorf("Expected cli-token, got %q", token)
	}

	if third.calls != 0 {
		t.Error("Later sources must not be consulted after a hit")
	}
}

func TestResolver_SourceErrorDoesNotBlockChain(t *testing.T) {
	broken := &stubSource{name: SourceCLITool, err: errors.New("gh not installed")}
	working := &stubSource{name: SourceGitConfig, token: "fallback-token"}

	r := NewResolver(nil, broken, working)
	cred, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cred.Source != SourceGitConfig {
		t.Errorf("Expected git-config source, got %s", cred.Source)
	}
}

func TestResolver_AllExhausted(t *testing.T) {
	r := NewResolver(nil,
		&stubSource{name: SourceEnv},
		&stubSource{name: SourceCLITool},
		&stubSource{name: SourceGitConfig},
		&stubSource{name: SourceEncryptedStore},
		&stubSource{name: SourceAppJWT},
	)

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got: %v", err)
	}
}

func TestResolver_WhitespaceTokenIsEmpty(t *testing.T) {
	r := NewResolver(nil, &stubSource{name: SourceEnv, token: "  \n"})

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Whitespace-only token should not resolve, got: %v", err)
	}
}

func TestEnvSource(t *testing.T) {
	t.Setenv("PUSHGATE_TOKEN", "env-token")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")

	src := &EnvSource{}
	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "env-token" {
		t.Errorf("Expected env-token, got %q", token)
	}
}

func TestEnvSource_ConfigFallback(t *testing.T) {
	t.Setenv("PUSHGATE_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")

	src := &EnvSource{ConfigToken: "from-config"}
	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "from-config" {
		t.Errorf("Expected from-config, got %q", token)
	}
}

func TestCredential_StringNeverExposesToken(t *testing.T) {
	cred := NewCredential(SourceEnv, "ghp_verysecret")

	if s := cred.String(); strings.Contains(s, "ghp_verysecret") {
		t.Errorf("String() leaked token: %s", s)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	if err := SaveToken(path, "stored-token", "test-passphrase"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	t.Setenv("PUSHGATE_PASSPHRASE", "test-passphrase")
	src := NewStoreSource(path, nil)

	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "stored-token" {
		t.Errorf("Expected stored-token, got %q", token)
	}
}

func TestStore_MissingFileIsNotAnError(t *testing.T) {
	src := NewStoreSource(filepath.Join(t.TempDir(), "nope.enc"), nil)

	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Missing store should yield no token, not an error: %v", err)
	}
	if token != "" {
		t.Errorf("Expected empty token, got %q", token)
	}
}

func TestStore_WrongPassphraseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	if err := SaveToken(path, "stored-token", "right"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if plaintext, err := decrypt(data, "wrong"); err == nil {
		t.Errorf("Wrong passphrase should fail, got %q", plaintext)
	}
}
