// Package repository implements the mirrored repository aggregate.
//
// A Repository owns everything about one remote: URL identity, the lazily
// resolved default branch, branch metadata with a recency-based activity
// filter, and the clone protocol itself. Clones replace an existing local
// copy through a backup-swap: the old directory is renamed aside before the
// clone and restored if every attempt fails, so the previously good copy is
// never lost to a failed re-clone. The network-bound clone call is retried a
// fixed number of times with a fixed delay.
//
// The version-control client is abstracted behind the GitClient interface
// with a go-git backed default, and the resulting clone is held behind the
// opaque LocalRepo handle.
package repository
