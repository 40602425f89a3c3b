package mirror

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/repostash/repostash/hosting"
	"github.com/repostash/repostash/repository"
)

type fakeLocal struct {
	path string
}

func (l *fakeLocal) Path() string          { return l.path }
func (l *fakeLocal) Head() (string, error) { return "deadbeef", nil }

type fakeGitClient struct{}

func (fakeGitClient) Clone(_ context.Context, _, dst, branch string) (repository.LocalRepo, error) {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dst, "HEAD"), []byte(branch), 0644); err != nil {
		return nil, err
	}
	return &fakeLocal{path: dst}, nil
}

type fakeMetadata struct {
	defaultBranch string
	commits       []hosting.BranchCommit
}

func (f fakeMetadata) DefaultBranch(_ context.Context, _, _ string) string {
	if f.defaultBranch == "" {
		return hosting.FallbackDefaultBranch
	}
	return f.defaultBranch
}

func (f fakeMetadata) BranchesWithCommits(_ context.Context, _, _ string) (int, []hosting.BranchCommit, error) {
	return 200, f.commits, nil
}

func newTestService(t *testing.T, conf Config, meta repository.Metadata) *Service {
	t.Helper()

	if conf.Defaults.Root == "" {
		conf.Defaults.Root = t.TempDir()
	}
	if meta == nil {
		meta = fakeMetadata{}
	}

	svc, err := New(t.Context(), conf, fakeGitClient{}, meta, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func TestServiceValidate(t *testing.T) {
	svc := newTestService(t, Config{}, nil)

	tests := []struct {
		raw  string
		want bool
	}{
		{"https://github.com/acme/widgets", true},
		{"https://github.com/acme/widgets.git", true},
		{"https://www.github.com/acme/widgets", true},
		{"https://gitlab.com/acme/widgets", false},
		{"https://github.com/acme", false},
		{"not a url", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := svc.Validate(tt.raw); got != tt.want {
			t.Errorf("Validate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestServiceSubmit(t *testing.T) {
	root := t.TempDir()
	conf := Config{
		Defaults:     DefaultConfig{Root: root},
		Repositories: []repository.Config{{URL: "https://github.com/acme/widgets"}},
	}
	svc := newTestService(t, conf, nil)

	task, err := svc.Submit("https://github.com/acme/widgets", "", "main")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case res := <-task.Done():
		if res.Err != nil {
			t.Fatalf("task error = %v", res.Err)
		}
		want := filepath.Join(root, "widgets", "main")
		if res.Path != want {
			t.Errorf("task path = %q, want %q", res.Path, want)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for task result")
	}
}

func TestServiceSubmitRejectsInvalidURL(t *testing.T) {
	svc := newTestService(t, Config{}, nil)

	if _, err := svc.Submit("https://gitlab.com/acme/widgets", "", "main"); err == nil {
		t.Error("Submit() error = nil, want validation error")
	}
}

func TestServiceSubmitRegistersUnknownRemote(t *testing.T) {
	svc := newTestService(t, Config{}, nil)

	if _, err := svc.Submit("https://github.com/acme/gadgets", "", "main"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := svc.Repository("https://github.com/acme/gadgets"); err != nil {
		t.Errorf("Repository() after Submit error = %v", err)
	}
}

func TestServiceAddRepository(t *testing.T) {
	svc := newTestService(t, Config{}, nil)

	conf := repository.Config{URL: "https://github.com/acme/widgets", Root: t.TempDir()}
	if err := svc.AddRepository(conf); err != nil {
		t.Fatalf("AddRepository() error = %v", err)
	}
	if err := svc.AddRepository(conf); !errors.Is(err, ErrExist) {
		t.Errorf("AddRepository() duplicate error = %v, want %v", err, ErrExist)
	}

	// same repo identity under a different raw spelling
	dup := repository.Config{URL: "https://github.com/Acme/Widgets.git", Root: t.TempDir()}
	if err := svc.AddRepository(dup); !errors.Is(err, ErrExist) {
		t.Errorf("AddRepository() equivalent URL error = %v, want %v", err, ErrExist)
	}

	if _, err := svc.Repository("https://github.com/unknown/repo"); !errors.Is(err, ErrNotExist) {
		t.Errorf("Repository() unknown error = %v, want %v", err, ErrNotExist)
	}
}

func TestServiceListBranchesAndActivity(t *testing.T) {
	now := time.Now()
	meta := fakeMetadata{
		commits: []hosting.BranchCommit{
			{Name: "main", SHA: "aaa", Date: now.AddDate(0, 0, -1)},
			{Name: "old/experiment", SHA: "bbb", Date: now.AddDate(0, 0, -120)},
		},
	}
	conf := Config{
		Repositories: []repository.Config{{URL: "https://github.com/acme/widgets"}},
	}
	svc := newTestService(t, conf, meta)

	known, active, err := svc.ListBranchesAndActivity(t.Context(), "https://github.com/acme/widgets", 30)
	if err != nil {
		t.Fatalf("ListBranchesAndActivity() error = %v", err)
	}

	wantKnown := []string{"main", "old/experiment"}
	var gotKnown []string
	for _, b := range known {
		gotKnown = append(gotKnown, b.Name)
	}
	if diff := cmp.Diff(wantKnown, gotKnown); diff != "" {
		t.Errorf("known branches mismatch (-want +got):\n%s", diff)
	}

	wantActive := []string{"main"}
	var gotActive []string
	for _, b := range active {
		gotActive = append(gotActive, b.Name)
	}
	if diff := cmp.Diff(wantActive, gotActive); diff != "" {
		t.Errorf("active branches mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidateAndApplyDefaults(t *testing.T) {
	conf := Config{
		Repositories: []repository.Config{{URL: "https://github.com/acme/widgets"}},
	}
	if err := conf.ValidateAndApplyDefaults(); err != nil {
		t.Fatalf("ValidateAndApplyDefaults() error = %v", err)
	}

	if conf.Defaults.Root == "" {
		t.Error("Defaults.Root not populated")
	}
	if conf.Defaults.Interval != time.Hour {
		t.Errorf("Defaults.Interval = %v, want %v", conf.Defaults.Interval, time.Hour)
	}
	if conf.Defaults.CutoffDays != 30 {
		t.Errorf("Defaults.CutoffDays = %d, want 30", conf.Defaults.CutoffDays)
	}

	repo := conf.Repositories[0]
	if repo.Root != conf.Defaults.Root {
		t.Errorf("repo root = %q, want default %q", repo.Root, conf.Defaults.Root)
	}
	if repo.CutoffDays != 30 {
		t.Errorf("repo cutoff = %d, want 30", repo.CutoffDays)
	}
	if repo.Retry.MaxAttempts != 3 {
		t.Errorf("repo retry attempts = %d, want default 3", repo.Retry.MaxAttempts)
	}
}

func TestConfigValidateRejectsPartialAppAuth(t *testing.T) {
	conf := Config{Auth: hosting.Config{GithubAppID: "1234"}}
	if err := conf.ValidateAndApplyDefaults(); err == nil {
		t.Error("ValidateAndApplyDefaults() error = nil, want partial app auth error")
	}
}

func TestConfigValidateRejectsRelativeRoot(t *testing.T) {
	conf := Config{Defaults: DefaultConfig{Root: "relative/path"}}
	if err := conf.ValidateAndApplyDefaults(); err == nil {
		t.Error("ValidateAndApplyDefaults() error = nil, want absolute root error")
	}
}
