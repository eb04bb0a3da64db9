// Package fileutil locates configuration files across the standard
// search locations.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// SearchPaths looks for a file in multiple locations. Returns the first
// path where the file exists, or an error if none match.
func SearchPaths(paths []string) (string, error) {
	for _, path := range paths {
		if FileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("file not found in any of the search paths: %v", paths)
}

// SearchPathsOptional looks for a file in multiple locations. Returns the
// first path where the file exists, or an empty string. Useful for files
// that are allowed to be absent.
func SearchPathsOptional(paths []string) string {
	for _, path := range paths {
		if FileExists(path) {
			return path
		}
	}
	return ""
}

// DefaultConfigPaths returns the standard search order for a config file:
// current directory, ./config, the per-user config directory, then the
// system-wide /etc/pushgate.
func DefaultConfigPaths(filename string) []string {
	paths := []string{
		filepath.Join(".", filename),
		filepath.Join(".", "config", filename),
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "pushgate", filename))
	}
	return append(paths, filepath.Join("/etc/pushgate", filename))
}

// FindConfigOptional searches the default locations for a config file.
// Returns the path if found, or an empty string.
func FindConfigOptional(filename string) string {
	return SearchPathsOptional(DefaultConfigPaths(filename))
}

// FileExists checks if a path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
