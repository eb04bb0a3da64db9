package validate

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"pushgate/internal/gitrepo"
)

const (
	// largeFileBytes is the per-file size threshold.
	largeFileBytes = 10 * 1024 * 1024

	// maxLargeFiles is how many oversized files are tolerated before the
	// stage fails.
	maxLargeFiles = 5

	// DefaultMaxRepoSizeMB is the total working copy size that triggers a
	// warning.
	DefaultMaxRepoSizeMB = 1024
)

// PerfStage guards against repository bloat: it fails when too many large
// files are present and warns when the total working copy size crosses the
// configured threshold.
type PerfStage struct {
	Repo          *gitrepo.Repo
	MaxRepoSizeMB int
}

func (s *PerfStage) Name() string { return "performance" }

func (s *PerfStage) Run(ctx context.Context) Result {
	maxRepoSize := s.MaxRepoSizeMB
	if maxRepoSize <= 0 {
		maxRepoSize = DefaultMaxRepoSizeMB
	}

	var totalBytes int64
	var largeFiles []string

	err := filepath.WalkDir(s.Repo.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		totalBytes += info.Size()
		if info.Size() > largeFileBytes {
			rel, relErr := filepath.Rel(s.Repo.Dir, path)
			if relErr != nil {
				rel = path
			}
			largeFiles = append(largeFiles, rel)
		}
		return nil
	})
	if err != nil {
		return Result{Status: StatusFail, Detail: fmt.Sprintf("repository walk interrupted: %v", err)}
	}

	var warnings []string
	totalMB := totalBytes / (1024 * 1024)
	if totalMB > int64(maxRepoSize) {
		warnings = append(warnings,
			fmt.Sprintf("working copy is %dMB, over the %dMB threshold", totalMB, maxRepoSize))
	}

	if len(largeFiles) > maxLargeFiles {
		return Result{
			Status:   StatusFail,
			Detail:   fmt.Sprintf("%d files exceed %dMB (limit %d)", len(largeFiles), largeFileBytes/(1024*1024), maxLargeFiles),
			Warnings: warnings,
		}
	}

	for _, f := range largeFiles {
		warnings = append(warnings, fmt.Sprintf("large file: %s", f))
	}
	return Result{
		Status:   StatusPass,
		Detail:   fmt.Sprintf("working copy %dMB, %d large file(s)", totalMB, len(largeFiles)),
		Warnings: warnings,
	}
}
