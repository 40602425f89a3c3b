// Package lock provides the mutex types used across repostash.
//
// The types are drop-in aliases of sasha-s/go-deadlock so that race and
// end-to-end tests can turn on deadlock detection without touching callers.
// Detection is disabled by default as it adds overhead to every lock
// acquisition.
package lock

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

type (
	Mutex   = deadlock.Mutex
	RWMutex = deadlock.RWMutex
)

func init() {
	deadlock.Opts.Disable = true
}

// EnableDetection turns on deadlock detection. A lock held longer than
// timeout is reported as a potential deadlock.
func EnableDetection(timeout time.Duration) {
	deadlock.Opts.Disable = false
	deadlock.Opts.DeadlockTimeout = timeout
}
