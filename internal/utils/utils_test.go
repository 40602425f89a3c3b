package utils

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestDirIsEmpty(t *testing.T) {
	tempRoot := t.TempDir()

	// Brand new should be empty.
	if empty, err := DirIsEmpty(tempRoot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if !empty {
		t.Errorf("expected %q to be deemed empty", tempRoot)
	}

	// Holding normal dir should not be empty.
	dir := filepath.Join(tempRoot, "files")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("failed to make a temp subdir: %v", err)
	}
	for _, file := range []string{"a", ".b", "c"} {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, []byte{}, 0755); err != nil {
			t.Fatalf("failed to write a file: %v", err)
		}
		if empty, err := DirIsEmpty(dir); err != nil {
			t.Fatalf("unexpected error: %v", err)
		} else if empty {
			t.Errorf("expected %q to be deemed not-empty", dir)
		}
	}

	// Test error path.
	if _, err := DirIsEmpty(filepath.Join(tempRoot, "does-not-exist")); err == nil {
		t.Errorf("unexpected success for non-existent dir")
	}
}

func TestRemoveAll(t *testing.T) {
	tempRoot := t.TempDir()

	dir := filepath.Join(tempRoot, "files")
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0755); err != nil {
		t.Fatalf("failed to make a temp subdir: %v", err)
	}
	for _, file := range []string{"a", "b", "objects/c"} {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write a file: %v", err)
		}
	}

	if err := RemoveAll(dir, slog.Default()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected %q to be removed, stat err: %v", dir, err)
	}

	// removing a missing path is not an error
	if err := RemoveAll(filepath.Join(tempRoot, "does-not-exist"), slog.Default()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRemoveAllReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("read-only dirs are not enforced for root")
	}

	tempRoot := t.TempDir()

	// git pack files are typically left read-only inside read-only dirs
	dir := filepath.Join(tempRoot, "repo")
	packDir := filepath.Join(dir, ".git", "objects", "pack")
	if err := os.MkdirAll(packDir, 0755); err != nil {
		t.Fatalf("failed to make a temp subdir: %v", err)
	}
	packFile := filepath.Join(packDir, "pack-deadbeef.pack")
	if err := os.WriteFile(packFile, []byte("pack"), 0444); err != nil {
		t.Fatalf("failed to write a file: %v", err)
	}
	if err := os.Chmod(packDir, 0555); err != nil {
		t.Fatalf("failed to chmod: %v", err)
	}

	if err := RemoveAll(dir, slog.Default()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected %q to be removed, stat err: %v", dir, err)
	}
}
