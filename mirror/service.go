// Package mirror is the facade tying the engine together. It owns the set
// of mirrored repositories, submits clone tasks to the bounded scheduler and
// answers branch activity queries. A Service is safe for concurrent use by
// multiple goroutines.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/repostash/repostash/giturl"
	"github.com/repostash/repostash/internal/lock"
	"github.com/repostash/repostash/repository"
	"github.com/repostash/repostash/taskqueue"
)

var (
	ErrExist    = errors.New("repo already exist")
	ErrNotExist = errors.New("repo does not exist")
)

// Service wraps the repository collection and the task queue behind the
// operations external collaborators call.
type Service struct {
	ctx  context.Context
	conf Config

	lock  lock.RWMutex
	log   *slog.Logger
	repos []*repository.Repository

	queue *taskqueue.TaskQueue
	git   repository.GitClient
	meta  repository.Metadata

	Stopped chan bool
}

// New will create the mirror service based on given config. Remote repos
// will not be mirrored until either Submit() or StartLoop() is called.
func New(ctx context.Context, conf Config, git repository.GitClient, meta repository.Metadata, log *slog.Logger) (*Service, error) {
	if err := conf.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}

	svcCtx, svcCancel := context.WithCancel(ctx)

	s := &Service{
		ctx:     svcCtx,
		conf:    conf,
		log:     log.With("logger", "mirror"),
		queue:   taskqueue.New(svcCtx, conf.Queue, log),
		git:     git,
		meta:    meta,
		Stopped: make(chan bool),
	}

	// start shutdown watcher
	go func() {
		defer close(s.Stopped)

		// wait for shutdown signal
		<-ctx.Done()

		svcCancel()

		// queue.Stop drains in-flight clone workers
		s.queue.Stop()
	}()

	for _, repoConf := range conf.Repositories {
		if err := s.AddRepository(repoConf); err != nil {
			svcCancel()
			return nil, err
		}
	}

	return s, nil
}

// Validate reports whether the given raw URL points at a repository on the
// accepted hosting domain. Synchronous, no network access.
func (s *Service) Validate(raw string) bool {
	return giturl.Validate(raw)
}

// AddRepository will add given repository to the service.
// The remote repo will not be mirrored until Submit() or StartLoop() runs.
func (s *Service) AddRepository(repoConf repository.Config) error {
	remoteURL := giturl.NormaliseURL(repoConf.URL)
	if repo, _ := s.Repository(remoteURL); repo != nil {
		return ErrExist
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	repo, err := repository.New(repoConf, s.git, s.meta, s.log)
	if err != nil {
		return err
	}
	s.repos = append(s.repos, repo)

	return nil
}

// Repository will return the Repository object based on given remote URL
func (s *Service) Repository(remote string) (*repository.Repository, error) {
	gitURL, err := giturl.Parse(remote)
	if err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, repo := range s.repos {
		// err can be ignored as remote string from repo object will always be valid
		repoURL, _ := giturl.Parse(repo.Remote())

		if repoURL.Equals(gitURL) {
			return repo, nil
		}
	}
	return nil, ErrNotExist
}

// Submit queues a clone of the given remote's branch under destinationRoot
// and returns the task handle carrying the asynchronous result. An unknown
// remote on the accepted hosting domain is registered on the fly with the
// default settings.
func (s *Service) Submit(remote, destinationRoot, branch string) (*taskqueue.Task, error) {
	if !s.Validate(remote) {
		return nil, fmt.Errorf("invalid repository url:%s", remote)
	}

	repo, err := s.Repository(remote)
	if errors.Is(err, ErrNotExist) {
		if err := s.AddRepository(repository.Config{
			URL:        giturl.NormaliseURL(remote),
			Root:       s.conf.Defaults.Root,
			CutoffDays: s.conf.Defaults.CutoffDays,
			Retry:      s.conf.Defaults.Retry,
		}); err != nil {
			return nil, err
		}
		repo, err = s.Repository(remote)
	}
	if err != nil {
		return nil, err
	}

	if destinationRoot == "" {
		destinationRoot = s.conf.Defaults.Root
	}

	return s.queue.Enqueue(repo, destinationRoot, branch)
}

// ListBranchesAndActivity re-fetches branch metadata of the given remote and
// returns all known branches and the subset considered active within
// cutoffDays. Activity is always decided against fresh metadata.
func (s *Service) ListBranchesAndActivity(ctx context.Context, remote string, cutoffDays int) (known, active []repository.BranchRef, err error) {
	repo, err := s.Repository(remote)
	if err != nil {
		return nil, nil, err
	}

	if err := repo.RefreshBranches(ctx, cutoffDays); err != nil {
		return nil, nil, err
	}

	return repo.KnownBranches(), repo.ActiveBranches(), nil
}

// RepositoriesRemote returns remote URLs of all the repositories
func (s *Service) RepositoriesRemote() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var urls []string
	for _, repo := range s.repos {
		urls = append(urls, repo.Remote())
	}
	return urls
}

// QueuePendingCount returns the number of tasks waiting for a worker slot.
func (s *Service) QueuePendingCount() int {
	return s.queue.PendingCount()
}

// StartLoop runs mirror cycles for all configured repositories on the
// default interval until ctx is cancelled. The first cycle starts
// immediately. Per-task results are collected only for logging, a failed
// clone keeps the previously mirrored copy and waits for the next cycle.
func (s *Service) StartLoop() {
	ticker := time.NewTicker(s.conf.Defaults.Interval)
	defer ticker.Stop()

	for {
		s.mirrorCycle()

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// mirrorCycle submits one clone task per configured repository and branch
// selection and waits for the batch to finish.
func (s *Service) mirrorCycle() {
	var tasks []*taskqueue.Task

	for _, repoConf := range s.conf.Repositories {
		branches, err := s.cycleBranches(repoConf)
		if err != nil {
			s.log.Error("unable to resolve branches for mirror cycle", "repo", repoConf.URL, "err", err)
			continue
		}

		for _, branch := range branches {
			task, err := s.Submit(repoConf.URL, repoConf.Root, branch)
			if err != nil {
				s.log.Error("unable to submit mirror task", "repo", repoConf.URL, "branch", branch, "err", err)
				continue
			}
			tasks = append(tasks, task)
		}
	}

	for _, task := range tasks {
		select {
		case res := <-task.Done():
			if res.Err != nil {
				s.log.Error("mirror cycle task failed", "repo", task.Repo().Remote(), "branch", task.Branch(), "err", res.Err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// cycleBranches resolves which branches of the repository a mirror cycle
// should clone. An empty branch name stands for the default branch.
func (s *Service) cycleBranches(repoConf repository.Config) ([]string, error) {
	if repoConf.MirrorActiveBranches {
		_, active, err := s.ListBranchesAndActivity(s.ctx, repoConf.URL, repoConf.CutoffDays)
		if err != nil {
			return nil, err
		}
		branches := make([]string, 0, len(active))
		for _, b := range active {
			branches = append(branches, b.Short())
		}
		return branches, nil
	}

	if len(repoConf.Branches) > 0 {
		return repoConf.Branches, nil
	}

	return []string{""}, nil
}
