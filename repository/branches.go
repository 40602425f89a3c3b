package repository

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"
)

// BranchRef identifies a remote branch and its last known commit.
// Name is the raw remote ref as reported by the remote, which may carry an
// 'origin/' style prefix when read back from a local clone.
type BranchRef struct {
	Name       string
	CommitSHA  string
	CommitURL  string
	CommitDate time.Time
}

// Short returns the branch name without the 'origin/' remote prefix.
// slashes that are part of the branch name itself are kept.
func (b BranchRef) Short() string {
	return strings.TrimPrefix(b.Name, "origin/")
}

// IsActive reports whether the branch's last commit falls within the given
// recency window. cutoffDays <= 0 disables filtering and every branch is
// active. A branch with no resolvable commit date is treated as inactive
// rather than failing the caller.
func (r *Repository) IsActive(branch BranchRef, cutoffDays int) bool {
	if cutoffDays <= 0 {
		return true
	}
	if branch.CommitDate.IsZero() {
		return false
	}
	cutoff := r.clock.Now().AddDate(0, 0, -cutoffDays)
	return !branch.CommitDate.Before(cutoff)
}

// CollectActiveBranches rebuilds the active branch list from scratch by
// applying the recency filter to every known branch in order. The list is
// never updated incrementally.
func (r *Repository) CollectActiveBranches(cutoffDays int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.collectActiveBranches(cutoffDays)
}

// collectActiveBranches must be called with the repository lock held
func (r *Repository) collectActiveBranches(cutoffDays int) {
	r.activeBranches = r.activeBranches[:0]
	for _, b := range r.knownBranches {
		if r.IsActive(b, cutoffDays) {
			r.activeBranches = append(r.activeBranches, b)
		}
	}
}

// RefreshBranches re-fetches branch metadata from the hosting API and
// rebuilds both the known and active branch lists wholesale. Branch activity
// is always decided against fresh metadata, the filter itself never does
// hidden network I/O.
func (r *Repository) RefreshBranches(ctx context.Context, cutoffDays int) error {
	status, commits, err := r.meta.BranchesWithCommits(ctx, r.Owner(), r.Name())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		r.log.Error("branch listing degraded to empty result", "status", status)
	}

	known := make([]BranchRef, 0, len(commits))
	for _, c := range commits {
		known = append(known, BranchRef{
			Name:       c.Name,
			CommitSHA:  c.SHA,
			CommitURL:  c.URL,
			CommitDate: c.Date,
		})
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.knownBranches = known
	r.collectActiveBranches(cutoffDays)
	return nil
}

// KnownBranches returns a copy of the branches discovered on the last
// metadata refresh, in remote listing order.
func (r *Repository) KnownBranches() []BranchRef {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return slices.Clone(r.knownBranches)
}

// ActiveBranches returns a copy of the subset of known branches that passed
// the recency filter on the last rebuild.
func (r *Repository) ActiveBranches() []BranchRef {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return slices.Clone(r.activeBranches)
}
