// Package auth resolves a usable access token from a ranked chain of
// credential sources. Resolved values live in locked memory and are never
// written to logs or the audit trail.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"
)

// ErrUnavailable is returned when every credential source is exhausted.
var ErrUnavailable = errors.New("no credential source available")

// Source identifies where a credential came from.
type Source string

const (
	SourceEnv            Source = "env"
	SourceCLITool        Source = "cli-tool"
	SourceGitConfig      Source = "git-config"
	SourceEncryptedStore Source = "encrypted-store"
	SourceAppJWT         Source = "app-jwt"
)

// Credential holds a resolved access token in a memguard enclave. The
// plaintext leaves the enclave only at the API boundary (building an HTTP
// authorization header) and is purged with the rest of the process's
// secure memory at exit.
type Credential struct {
	Source     Source
	ObtainedAt time.Time

	enclave *memguard.Enclave
}

// NewCredential seals a token value. The caller's copy of the token should
// not be retained after this call.
func NewCredential(source Source, token string) *Credential {
	return &Credential{
		Source:     source,
		ObtainedAt: time.Now(),
		enclave:    memguard.NewEnclave([]byte(token)),
	}
}

// Token opens the enclave and returns the plaintext token.
func (c *Credential) Token() (string, error) {
	buf, err := c.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open credential enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// String implements fmt.Stringer so accidental logging of a Credential
// never exposes the token.
func (c *Credential) String() string {
	return fmt.Sprintf("credential(source=%s)", c.Source)
}

// LogValue keeps slog from serializing the enclave.
func (c *Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}
