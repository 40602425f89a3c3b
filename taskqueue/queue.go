// Package taskqueue implements the bounded scheduler for clone tasks.
//
// A single dispatcher goroutine feeds per-task worker goroutines. Tasks
// start in strict submission order, the dispatcher only ever looks at the
// head of the queue and leaves it in place until a worker slot is acquired.
// Completion order is unconstrained. The number of concurrently running
// workers never exceeds the configured cap.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/repostash/repostash/internal/lock"
	"github.com/repostash/repostash/repository"
)

// ErrStopped is returned by Enqueue after the queue has been stopped.
var ErrStopped = errors.New("task queue stopped")

const (
	defaultIdleWait = time.Second
	defaultBusyWait = 100 * time.Millisecond
)

// Config holds the scheduler settings.
type Config struct {
	// MaxConcurrentTasks caps the number of simultaneously running clone
	// tasks. When zero the cap is derived from the host's cpu count and
	// available memory
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// LoadFactor scales the cpu term of the derived cap, only used when
	// MaxConcurrentTasks is zero
	LoadFactor int `yaml:"load_factor"`
}

// TaskQueue is a FIFO scheduler with a bounded worker count.
type TaskQueue struct {
	ctx context.Context

	// lck guards pending, running and stopped together so the capacity
	// check and the dequeue are one atomic step
	lck     lock.Mutex
	pending []*Task
	running int
	stopped bool

	capacity int
	idleWait time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log *slog.Logger
}

// New creates the queue and starts its dispatcher. ctx is the global stop
// signal, cancelling it stops dispatch and the running clones. There is no
// per-task cancellation.
func New(ctx context.Context, conf Config, log *slog.Logger) *TaskQueue {
	if log == nil {
		log = slog.Default()
	}

	capacity := conf.MaxConcurrentTasks
	if capacity <= 0 {
		capacity = MaxConcurrentTasks(conf.LoadFactor)
	}

	q := &TaskQueue{
		ctx:      ctx,
		capacity: capacity,
		idleWait: defaultIdleWait,
		stop:     make(chan struct{}),
		log:      log.With("logger", "taskqueue"),
	}

	q.log.Info("starting dispatcher", "max-concurrent-tasks", capacity)

	q.wg.Add(1)
	go q.dispatch()

	go func() {
		<-ctx.Done()
		q.Stop()
	}()

	return q
}

// Enqueue adds a clone task for the given repository and branch to the back
// of the queue and returns its handle.
func (q *TaskQueue) Enqueue(repo *repository.Repository, root, branch string) (*Task, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}

	q.lck.Lock()
	defer q.lck.Unlock()

	if q.stopped {
		return nil, ErrStopped
	}

	t := newTask(repo, root, branch)
	q.pending = append(q.pending, t)
	setQueueDepth(len(q.pending))

	return t, nil
}

// dispatch is the scheduling loop. It peeks at the head of the queue,
// acquires a worker slot and only then dequeues, so a capacity-starved head
// task keeps its place in line. Empty-queue and at-capacity states back off
// on a timer rather than spinning.
func (q *TaskQueue) dispatch() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stop:
			return
		default:
		}

		q.lck.Lock()

		if len(q.pending) == 0 {
			q.lck.Unlock()
			if !q.wait(q.idleWait) {
				return
			}
			continue
		}

		if q.running >= q.capacity {
			q.lck.Unlock()
			if !q.wait(defaultBusyWait) {
				return
			}
			continue
		}

		head := q.pending[0]
		q.pending = q.pending[1:]
		q.running++
		setQueueDepth(len(q.pending))
		setRunningTasks(q.running)

		q.lck.Unlock()

		q.wg.Add(1)
		go q.run(head)
	}
}

// wait sleeps for d or until the queue is stopped, reporting whether
// dispatch should continue.
func (q *TaskQueue) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-q.stop:
		return false
	case <-timer.C:
		return true
	}
}

// run executes one task and delivers its result. The worker slot is
// released in a deferred block so it is given back exactly once on every
// path.
func (q *TaskQueue) run(t *Task) {
	defer q.wg.Done()
	defer func() {
		q.lck.Lock()
		q.running--
		setRunningTasks(q.running)
		q.lck.Unlock()
	}()

	t.setState(StateRunning)

	path, err := t.repo.CloneTo(q.ctx, t.root, t.branch)
	if err != nil {
		t.setState(StateFailed)
		q.log.Error("task failed", "repo", t.repo.Remote(), "branch", t.branch, "err", err)
	} else {
		t.setState(StateSucceeded)
	}

	t.done <- Result{Path: path, Err: err}
}

// Stop halts dispatch and waits for in-flight workers to finish. Tasks
// still pending are left in the queue and never started. Safe to call more
// than once.
func (q *TaskQueue) Stop() {
	q.stopOnce.Do(func() {
		q.lck.Lock()
		q.stopped = true
		q.lck.Unlock()

		close(q.stop)
		q.wg.Wait()
		q.log.Info("dispatcher stopped")
	})
}

// RunningCount returns the number of currently executing tasks.
func (q *TaskQueue) RunningCount() int {
	q.lck.Lock()
	defer q.lck.Unlock()

	return q.running
}

// PendingCount returns the number of tasks waiting for a worker slot.
func (q *TaskQueue) PendingCount() int {
	q.lck.Lock()
	defer q.lck.Unlock()

	return len(q.pending)
}

// Capacity returns the worker slot cap.
func (q *TaskQueue) Capacity() int {
	return q.capacity
}
