package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSearchPaths(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "config.json")
	if err := os.WriteFile(present, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := SearchPaths([]string{
		filepath.Join(dir, "missing.json"),
		present,
	})
	if err != nil {
		t.Fatalf("SearchPaths() error = %v", err)
	}
	if found != present {
		t.Errorf("found = %q, want %q", found, present)
	}

	if _, err := SearchPaths([]string{filepath.Join(dir, "absent")}); err == nil {
		t.Error("SearchPaths() with no matches should error")
	}
}

func TestSearchPathsOptional(t *testing.T) {
	dir := t.TempDir()
	if got := SearchPathsOptional([]string{filepath.Join(dir, "absent")}); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestSearchPathsSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "config.json")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := SearchPathsOptional([]string{sub}); got != "" {
		t.Errorf("directory matched as file: %q", got)
	}
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(file) || FileExists(dir) {
		t.Error("FileExists misclassified")
	}
	if !DirExists(dir) || DirExists(file) {
		t.Error("DirExists misclassified")
	}
}

func TestDefaultConfigPathsOrder(t *testing.T) {
	paths := DefaultConfigPaths("config.json")
	if len(paths) < 3 {
		t.Fatalf("paths = %v, want at least cwd, ./config and /etc entries", paths)
	}
	if paths[0] != filepath.Join(".", "config.json") {
		t.Errorf("first path = %q, want current directory", paths[0])
	}
	if paths[len(paths)-1] != "/etc/pushgate/config.json" {
		t.Errorf("last path = %q, want system-wide location", paths[len(paths)-1])
	}
}
