package repository

import (
	"context"
	"log/slog"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitClient performs the underlying version-control clone operation.
// Implementations own the transport, the engine only cares that the
// destination directory ends up holding a usable clone.
type GitClient interface {
	// Clone clones remote into dst and returns a handle to the resulting
	// local repository. branch limits the clone to a single branch when
	// non-empty. dst is guaranteed absent or empty by the caller.
	Clone(ctx context.Context, remote, dst, branch string) (LocalRepo, error)
}

// LocalRepo is an opaque handle to a cloned local repository. The engine
// holds it by composition rather than extending the client library's own
// repository type, keeping the client swappable.
type LocalRepo interface {
	// Path returns the absolute path of the clone on disk
	Path() string
	// Head returns the commit hash the clone's HEAD points at
	Head() (string, error)
}

// GoGitClient is the default GitClient backed by the go-git library.
type GoGitClient struct {
	log *slog.Logger
}

func NewGoGitClient(log *slog.Logger) *GoGitClient {
	if log == nil {
		log = slog.Default()
	}
	return &GoGitClient{log: log}
}

func (g *GoGitClient) Clone(ctx context.Context, remote, dst, branch string) (LocalRepo, error) {
	opts := &gogit.CloneOptions{URL: remote}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	g.log.Log(ctx, -8, "running clone", "remote", remote, "dst", dst, "branch", branch)
	repo, err := gogit.PlainCloneContext(ctx, dst, false, opts)
	if err != nil {
		return nil, err
	}
	return &goGitRepo{path: dst, repo: repo}, nil
}

type goGitRepo struct {
	path string
	repo *gogit.Repository
}

func (r *goGitRepo) Path() string {
	return r.path
}

func (r *goGitRepo) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}
