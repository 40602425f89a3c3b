package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/repostash/repostash/giturl"
	"github.com/repostash/repostash/hosting"
	"github.com/repostash/repostash/internal/lock"
	"github.com/repostash/repostash/internal/utils"
)

// Metadata provides remote repository metadata. *hosting.Client satisfies it.
type Metadata interface {
	DefaultBranch(ctx context.Context, owner, name string) string
	BranchesWithCommits(ctx context.Context, owner, name string) (int, []hosting.BranchCommit, error)
}

// Repository represents a single mirrored remote repository. It owns the
// destination resolution, the backup-swap clone protocol and the branch
// activity state for that remote. All state mutations go through the
// repository lock.
type Repository struct {
	lock lock.RWMutex

	gitURL *giturl.URL
	remote string

	// defaultBranch is resolved lazily on first use and cached
	defaultBranch string

	knownBranches  []BranchRef
	activeBranches []BranchRef

	// clonedTo is the destination of the last successful clone. It is only
	// ever updated after the backup slot committed, so it never points at a
	// directory that was just deleted.
	clonedTo string
	local    LocalRepo

	// dirLocks serialises the backup-swap per destination path. Clones of
	// different branches land in different directories and may run
	// concurrently, only same-destination clones queue up.
	dirLocks map[string]*lock.Mutex

	git       GitClient
	meta      Metadata
	clock     clockwork.Clock
	retryConf RetryConfig

	log *slog.Logger
}

// New validates the remote URL and returns a Repository for it. The URL must
// be on the accepted hosting domain and carry both owner and name.
func New(conf Config, git GitClient, meta Metadata, log *slog.Logger) (*Repository, error) {
	if log == nil {
		log = slog.Default()
	}

	gURL, err := giturl.Parse(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse remote url:%s err:%w", conf.URL, err)
	}
	if err := gURL.Validate(); err != nil {
		return nil, fmt.Errorf("unable to validate remote url:%s err:%w", conf.URL, err)
	}

	return &Repository{
		gitURL:    gURL,
		remote:    gURL.Raw,
		dirLocks:  make(map[string]*lock.Mutex),
		git:       git,
		meta:      meta,
		clock:     clockwork.NewRealClock(),
		retryConf: conf.Retry.withDefaults(),
		log:       log.With("repo", gURL.Owner+"/"+gURL.Name),
	}, nil
}

func (r *Repository) Owner() string {
	return r.gitURL.Owner
}

func (r *Repository) Name() string {
	return r.gitURL.Name
}

func (r *Repository) Remote() string {
	return r.remote
}

// ClonedTo returns the destination of the last successful clone, empty if
// the repository was never cloned.
func (r *Repository) ClonedTo() string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.clonedTo
}

// Local returns the handle of the last successful clone, nil if the
// repository was never cloned.
func (r *Repository) Local() LocalRepo {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.local
}

// defaultBranchName resolves the remote's default branch on first use and
// caches it. Resolution never fails, the metadata client falls back to a
// fixed branch name when the remote cannot be asked.
func (r *Repository) defaultBranchName(ctx context.Context) string {
	r.lock.RLock()
	cached := r.defaultBranch
	r.lock.RUnlock()

	if cached != "" {
		return cached
	}

	name := r.meta.DefaultBranch(ctx, r.Owner(), r.Name())

	r.lock.Lock()
	r.defaultBranch = name
	r.lock.Unlock()

	return name
}

// DestinationFor computes the local destination directory for a clone of the
// given branch under root. The repository name is inserted unless root's
// final path segment already equals it, and slashes in the branch name are
// flattened to dashes. Pure path computation, no filesystem or network access.
func (r *Repository) DestinationFor(root, branch string) string {
	leaf := BranchRef{Name: branch}.Short()
	if leaf == "" {
		r.lock.RLock()
		leaf = r.defaultBranch
		r.lock.RUnlock()
	}
	if leaf == "" {
		leaf = hosting.FallbackDefaultBranch
	}
	leaf = strings.ReplaceAll(leaf, "/", "-")

	if !strings.EqualFold(filepath.Base(root), r.Name()) {
		root = filepath.Join(root, r.Name())
	}
	return filepath.Join(root, leaf)
}

// CloneTo clones the given branch (the default branch when empty) under root
// and returns the destination path. An existing copy at the destination is
// moved aside first and restored if every clone attempt fails, so a bad
// network day never costs the previously good copy.
func (r *Repository) CloneTo(ctx context.Context, root, branch string) (string, error) {
	branch = BranchRef{Name: branch}.Short()
	if branch == "" {
		branch = r.defaultBranchName(ctx)
	}
	dst := r.DestinationFor(root, branch)

	dirLock := r.dirLock(dst)
	dirLock.Lock()
	defer dirLock.Unlock()

	start := time.Now()
	defer func() {
		updateCloneLatency(r.remote, time.Since(start).Seconds())
	}()

	if err := os.MkdirAll(filepath.Dir(dst), utils.DefaultDirMode); err != nil {
		recordClone(r.remote, false)
		return "", fmt.Errorf("unable to create destination parent path:%s err:%w", dst, err)
	}

	slot, err := takeBackup(dst, r.log)
	if err != nil {
		recordClone(r.remote, false)
		return "", err
	}

	var local LocalRepo
	err = retryDo(ctx, r.retryConf, r.log, "clone", func() error {
		// a failed attempt can leave a partial directory behind which
		// would break the next attempt
		if err := utils.RemoveAll(dst, r.log); err != nil {
			return fmt.Errorf("unable to clear destination path:%s err:%w", dst, err)
		}
		cloned, err := r.git.Clone(ctx, r.remote, dst, branch)
		if err != nil {
			return err
		}
		local = cloned
		return nil
	})
	if err != nil {
		if slot == nil {
			// fresh destination, nothing to restore but the partial
			// clone must not linger
			if cerr := utils.RemoveAll(dst, r.log); cerr != nil {
				r.log.Error("unable to clean up partial clone", "dst", dst, "err", cerr)
			}
		} else {
			// restore logs its own failures and keeps both paths
			_ = slot.restore()
		}
		recordClone(r.remote, false)
		return "", fmt.Errorf("unable to clone branch:%s err:%w", branch, err)
	}

	slot.commit()

	r.lock.Lock()
	r.clonedTo = dst
	r.local = local
	r.lock.Unlock()

	recordClone(r.remote, true)
	r.log.Info("clone completed", "branch", branch, "dst", dst)

	return dst, nil
}

// dirLock returns the mutex guarding the given destination path, creating
// it on first use.
func (r *Repository) dirLock(dst string) *lock.Mutex {
	r.lock.Lock()
	defer r.lock.Unlock()

	l, ok := r.dirLocks[dst]
	if !ok {
		l = &lock.Mutex{}
		r.dirLocks[dst] = l
	}
	return l
}
