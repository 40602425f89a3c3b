package repository

import (
	"fmt"

	"github.com/repostash/repostash/giturl"
)

// Config represents the config for one mirrored repository.
type Config struct {
	// git URL of the remote repo to mirror
	URL string `yaml:"url"`

	// Root is the absolute path to the root dir under which the
	// repository's clone directories will be created
	Root string `yaml:"root"`

	// Branches is the fixed list of branches to mirror. When empty only
	// the remote's default branch is mirrored, unless MirrorActiveBranches
	// is set
	Branches []string `yaml:"branches"`

	// MirrorActiveBranches mirrors every branch that passed the recency
	// filter instead of the fixed Branches list
	MirrorActiveBranches bool `yaml:"mirror_active_branches"`

	// CutoffDays bounds branch activity for the recency filter, a branch
	// counts as active when its last commit is at most this many days old.
	// Zero or negative disables the filter
	CutoffDays int `yaml:"cutoff_days"`

	// Retry controls clone retry behaviour
	Retry RetryConfig `yaml:"retry"`
}

// ValidateAndApplyDefaults validates the repository config and applies
// default values for optional fields.
func (c *Config) ValidateAndApplyDefaults() error {
	c.URL = giturl.NormaliseURL(c.URL)

	gURL, err := giturl.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("unable to parse remote url:%s err:%w", c.URL, err)
	}
	if err := gURL.Validate(); err != nil {
		return fmt.Errorf("unable to validate remote url:%s err:%w", c.URL, err)
	}

	if c.Root == "" {
		return fmt.Errorf("repository root cannot be empty url:%s", c.URL)
	}

	c.Retry = c.Retry.withDefaults()

	return nil
}
