package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeLocal struct {
	path string
}

func (f *fakeLocal) Path() string         { return f.path }
func (f *fakeLocal) Head() (string, error) { return "deadbeef", nil }

// fakeGitClient fails the first failBefore attempts, then "clones" by
// writing a marker file into dst.
type fakeGitClient struct {
	failBefore int
	alwaysFail bool

	calls []string
}

func (f *fakeGitClient) Clone(_ context.Context, _, dst, branch string) (LocalRepo, error) {
	f.calls = append(f.calls, branch)
	if f.alwaysFail || len(f.calls) <= f.failBefore {
		return nil, errors.New("connection reset")
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dst, "README.md"), []byte("clone of "+branch), 0644); err != nil {
		return nil, err
	}
	return &fakeLocal{path: dst}, nil
}

func TestDestinationFor(t *testing.T) {
	repo := newTestRepo(t, nil, &fakeMetadata{})

	tests := []struct {
		name          string
		root          string
		branch        string
		defaultBranch string
		want          string
	}{
		{"plain branch", "/stash", "main", "", "/stash/widgets/main"},
		{"slashes flattened", "/stash", "feature/login", "", "/stash/widgets/feature-login"},
		{"remote prefix stripped", "/stash", "origin/main", "", "/stash/widgets/main"},
		{"name already in root", "/stash/widgets", "main", "", "/stash/widgets/main"},
		{"name match is case insensitive", "/stash/Widgets", "main", "", "/stash/Widgets/main"},
		{"empty branch uses resolved default", "/stash", "", "trunk", "/stash/widgets/trunk"},
		{"empty branch unresolved default", "/stash", "", "", "/stash/widgets/main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.defaultBranch = tt.defaultBranch
			if got := repo.DestinationFor(tt.root, tt.branch); got != tt.want {
				t.Errorf("DestinationFor(%q, %q) = %q, want %q", tt.root, tt.branch, got, tt.want)
			}
		})
	}
}

func TestCloneTo(t *testing.T) {
	root := t.TempDir()
	git := &fakeGitClient{}
	repo := newTestRepo(t, git, &fakeMetadata{})

	dst, err := repo.CloneTo(t.Context(), root, "feature/login")
	if err != nil {
		t.Fatalf("CloneTo() error = %v", err)
	}

	want := filepath.Join(root, "widgets", "feature-login")
	if dst != want {
		t.Errorf("CloneTo() = %q, want %q", dst, want)
	}
	if got := repo.ClonedTo(); got != want {
		t.Errorf("ClonedTo() = %q, want %q", got, want)
	}
	if repo.Local() == nil {
		t.Error("Local() = nil after successful clone")
	}
	if got := mustReadFile(t, filepath.Join(dst, "README.md")); got != "clone of feature/login" {
		t.Errorf("clone content = %q", got)
	}
}

func TestCloneToDefaultBranch(t *testing.T) {
	root := t.TempDir()
	git := &fakeGitClient{}
	meta := &fakeMetadata{defaultBranch: "trunk"}
	repo := newTestRepo(t, git, meta)

	dst, err := repo.CloneTo(t.Context(), root, "")
	if err != nil {
		t.Fatalf("CloneTo() error = %v", err)
	}
	if want := filepath.Join(root, "widgets", "trunk"); dst != want {
		t.Errorf("CloneTo() = %q, want %q", dst, want)
	}

	// the resolved default branch is cached
	if _, err := repo.CloneTo(t.Context(), root, ""); err != nil {
		t.Fatalf("CloneTo() error = %v", err)
	}
	if meta.defaultBranchCalls != 1 {
		t.Errorf("DefaultBranch called %d times, want 1", meta.defaultBranchCalls)
	}
}

func TestCloneToRetriesTransientFailures(t *testing.T) {
	root := t.TempDir()
	git := &fakeGitClient{failBefore: 2}
	repo := newTestRepo(t, git, &fakeMetadata{})

	dst, err := repo.CloneTo(t.Context(), root, "main")
	if err != nil {
		t.Fatalf("CloneTo() error = %v", err)
	}
	if len(git.calls) != 3 {
		t.Errorf("clone attempts = %d, want 3", len(git.calls))
	}
	if _, err := os.Stat(filepath.Join(dst, "README.md")); err != nil {
		t.Errorf("clone result missing: %v", err)
	}
}

func TestCloneToPreservesPriorCopyOnFailure(t *testing.T) {
	root := t.TempDir()
	git := &fakeGitClient{}
	repo := newTestRepo(t, git, &fakeMetadata{})

	dst, err := repo.CloneTo(t.Context(), root, "main")
	if err != nil {
		t.Fatalf("CloneTo() error = %v", err)
	}

	git.alwaysFail = true
	if _, err := repo.CloneTo(t.Context(), root, "main"); err == nil {
		t.Fatal("CloneTo() error = nil, want clone failure")
	}

	// the previously good copy survives the failed re-clone
	if got := mustReadFile(t, filepath.Join(dst, "README.md")); got != "clone of main" {
		t.Errorf("prior copy content = %q, want %q", got, "clone of main")
	}
	if _, err := os.Stat(filepath.Join(root, "widgets", "backup-main")); !os.IsNotExist(err) {
		t.Errorf("backup dir left behind after rollback")
	}
	if got := repo.ClonedTo(); got != dst {
		t.Errorf("ClonedTo() = %q, want %q after failed re-clone", got, dst)
	}
}

func TestCloneToCleansUpFreshFailure(t *testing.T) {
	root := t.TempDir()
	git := &fakeGitClient{alwaysFail: true}
	repo := newTestRepo(t, git, &fakeMetadata{})

	if _, err := repo.CloneTo(t.Context(), root, "main"); err == nil {
		t.Fatal("CloneTo() error = nil, want clone failure")
	}
	if len(git.calls) != 3 {
		t.Errorf("clone attempts = %d, want 3", len(git.calls))
	}
	if _, err := os.Stat(filepath.Join(root, "widgets", "main")); !os.IsNotExist(err) {
		t.Errorf("partial destination left behind after failed fresh clone")
	}
	if got := repo.ClonedTo(); got != "" {
		t.Errorf("ClonedTo() = %q, want empty after failed fresh clone", got)
	}
}

func TestNewRejectsInvalidURL(t *testing.T) {
	tests := []string{
		"https://gitlab.com/acme/widgets",
		"https://github.com/acme",
		"://bad",
	}
	for _, url := range tests {
		if _, err := New(Config{URL: url}, nil, nil, nil); err == nil {
			t.Errorf("New(%q) error = nil, want validation error", url)
		}
	}
}

func TestConfigValidateAndApplyDefaults(t *testing.T) {
	conf := Config{URL: " https://github.com/acme/widgets/ ", Root: "/stash"}
	if err := conf.ValidateAndApplyDefaults(); err != nil {
		t.Fatalf("ValidateAndApplyDefaults() error = %v", err)
	}
	if conf.URL != "https://github.com/acme/widgets" {
		t.Errorf("URL = %q, want normalised", conf.URL)
	}
	if conf.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want default 3", conf.Retry.MaxAttempts)
	}

	if err := (&Config{URL: "https://github.com/acme/widgets"}).ValidateAndApplyDefaults(); err == nil {
		t.Error("ValidateAndApplyDefaults() error = nil, want missing root error")
	}
}
