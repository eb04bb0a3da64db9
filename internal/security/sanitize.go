// Package security validates operator-supplied identifiers before they
// reach git command lines or URL paths. Every value that crosses from a
// CLI argument or HTTP path parameter into a git invocation goes through
// one of these checks.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	branchPattern  = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	remotePattern  = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	versionPattern = regexp.MustCompile(`^v?[0-9]+(\.[0-9]+){0,2}([.-][a-zA-Z0-9.-]+)?$`)
	commitPattern  = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)
)

// ValidateBranchName ensures a branch name is safe to place on a git
// command line. Rejects option-shaped names and shell-significant
// characters.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateRemoteName ensures a remote name is a plain identifier, not a
// URL or an option.
func ValidateRemoteName(remote string) error {
	if remote == "" {
		return fmt.Errorf("remote name cannot be empty")
	}
	if strings.HasPrefix(remote, "-") {
		return fmt.Errorf("remote name cannot start with '-'")
	}
	if !remotePattern.MatchString(remote) {
		return fmt.Errorf("remote name contains invalid characters")
	}
	return nil
}

// ValidateVersion accepts dotted version strings with an optional leading
// "v" and an optional pre-release suffix.
func ValidateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("version cannot be empty")
	}
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("version %q is not a valid version string", version)
	}
	return nil
}

// ValidateCommitHash accepts full or abbreviated hex commit hashes and
// the symbolic HEAD forms used on a rollback command line.
func ValidateCommitHash(commit string) error {
	if commit == "" {
		return fmt.Errorf("commit cannot be empty")
	}
	if commit == "HEAD" || strings.HasPrefix(commit, "HEAD~") || strings.HasPrefix(commit, "HEAD^") {
		rest := strings.TrimLeft(commit[4:], "~^")
		for _, r := range rest {
			if r < '0' || r > '9' {
				return fmt.Errorf("commit %q is not a valid HEAD offset", commit)
			}
		}
		return nil
	}
	if !commitPattern.MatchString(commit) {
		return fmt.Errorf("commit %q is not a valid commit hash", commit)
	}
	return nil
}
