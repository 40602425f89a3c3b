package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/repostash/repostash/hosting"
	"github.com/repostash/repostash/repository"
	"github.com/repostash/repostash/taskqueue"
)

const (
	defaultInterval   = time.Hour
	defaultCutoffDays = 30
)

// Config is the top level service configuration.
type Config struct {
	// default config for all the repositories if not set
	Defaults DefaultConfig `yaml:"defaults"`
	// List of mirrored repositories.
	Repositories []repository.Config `yaml:"repositories"`
	// Queue holds the scheduler settings
	Queue taskqueue.Config `yaml:"queue"`
	// Auth config for the hosting API
	Auth hosting.Config `yaml:"auth"`
}

// DefaultConfig is the default config for repositories if not set at repo level
type DefaultConfig struct {
	// Root is the absolute path to the root dir under which all repository
	// clone directories will be created
	Root string `yaml:"root"`

	// Interval is time duration for how long to wait between mirror cycles
	Interval time.Duration `yaml:"interval"`

	// CutoffDays is the branch recency window applied to repositories that
	// mirror active branches, negative disables the filter
	CutoffDays int `yaml:"cutoff_days"`

	// Retry config applied to repositories that leave theirs unset
	Retry repository.RetryConfig `yaml:"retry"`
}

// validateDefaults will verify default config
func (c *Config) validateDefaults() error {
	dc := c.Defaults

	var errs []error

	if dc.Root != "" {
		if !filepath.IsAbs(dc.Root) {
			errs = append(errs, fmt.Errorf("repository root '%s' must be absolute", dc.Root))
		}
	}

	// if any of the github app config is set all should be set
	if auth := c.Auth; auth.GithubAppID != "" ||
		auth.GithubAppInstallationID != "" ||
		auth.GithubAppPrivateKeyPath != "" {
		if auth.GithubAppID == "" ||
			auth.GithubAppInstallationID == "" ||
			auth.GithubAppPrivateKeyPath == "" {
			errs = append(errs, fmt.Errorf("all of the Github app attributes are required"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", errs)
	}

	return nil
}

// applyDefaults will add given default config to repository config where needed
func (c *Config) applyDefaults() {
	if c.Defaults.Root == "" {
		c.Defaults.Root = filepath.Join(os.TempDir(), "repostash")
	}
	if c.Defaults.Interval == 0 {
		c.Defaults.Interval = defaultInterval
	}
	if c.Defaults.CutoffDays == 0 {
		c.Defaults.CutoffDays = defaultCutoffDays
	}

	for i := range c.Repositories {
		repo := &c.Repositories[i]
		if repo.Root == "" {
			repo.Root = c.Defaults.Root
		}
		if repo.CutoffDays == 0 {
			repo.CutoffDays = c.Defaults.CutoffDays
		}
		if (repo.Retry == repository.RetryConfig{}) {
			repo.Retry = c.Defaults.Retry
		}
	}
}

// ValidateAndApplyDefaults will validate the config and apply defaults
func (c *Config) ValidateAndApplyDefaults() error {
	if err := c.validateDefaults(); err != nil {
		return err
	}

	c.applyDefaults()

	for i := range c.Repositories {
		if err := c.Repositories[i].ValidateAndApplyDefaults(); err != nil {
			return err
		}
	}

	return nil
}
