package taskqueue

import (
	"sync/atomic"

	"github.com/repostash/repostash/repository"
)

// State is the lifecycle state of a task. Transitions are
// Pending -> Running -> Succeeded or Failed. Failed is terminal, a failed
// task is never re-queued.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a finished task, either the destination path of
// the completed clone or the last error after retries were exhausted.
type Result struct {
	Path string
	Err  error
}

// Task is one queued clone request. The caller keeps the handle and waits
// on Done for the asynchronous result.
type Task struct {
	repo   *repository.Repository
	root   string
	branch string

	state atomic.Int32
	done  chan Result
}

func newTask(repo *repository.Repository, root, branch string) *Task {
	return &Task{
		repo:   repo,
		root:   root,
		branch: branch,
		// buffered so the worker never blocks on an absent reader
		done: make(chan Result, 1),
	}
}

func (t *Task) Repo() *repository.Repository {
	return t.repo
}

func (t *Task) Branch() string {
	return t.branch
}

func (t *Task) State() State {
	return State(t.state.Load())
}

func (t *Task) setState(s State) {
	t.state.Store(int32(s))
}

// Done delivers the task result exactly once when the task finishes.
func (t *Task) Done() <-chan Result {
	return t.done
}
