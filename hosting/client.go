// Package hosting queries the GitHub REST API for repository metadata.
//
// The client is purely informational: it resolves default branch names and
// per-branch last-commit details for the mirroring engine. Failures degrade
// to fallback values where the engine can carry on without the metadata,
// clone operations never depend on this client succeeding. No retry is built
// in here, transient clone failures are the retry controller's concern.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v53/github"
	"golang.org/x/time/rate"
)

// FallbackDefaultBranch is assumed when the remote default branch cannot be
// resolved
const FallbackDefaultBranch = "main"

// ErrRateLimited indicates the hosting API returned 403. callers must back
// off before querying metadata again, the engine never auto-retries this.
var ErrRateLimited = errors.New("hosting api rate limit exceeded")

// BranchCommit is the last-commit metadata of a remote branch as reported by
// the hosting API. Date is zero when the follow-up commit lookup failed.
type BranchCommit struct {
	Name string
	SHA  string
	URL  string
	Date time.Time
}

// Config holds hosting API access config
type Config struct {
	// personal access token, used as-is when set
	Token string `yaml:"token"`

	// Github App details, exchanged for an installation token when all
	// three are set. ignored if Token is set.
	GithubAppID             string `yaml:"github_app_id"`
	GithubAppInstallationID string `yaml:"github_app_installation_id"`
	GithubAppPrivateKeyPath string `yaml:"github_app_private_key_path"`

	// BaseURL overrides the API endpoint, for enterprise installs and tests
	BaseURL string `yaml:"base_url"`
}

// tokenTransport adds token authentication to every API request
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "token "+t.token)
	return t.base.RoundTrip(req)
}

// Client is a metadata client for the hosting API.
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a hosting API client from the given config.
func NewClient(ctx context.Context, conf Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("logger", "hosting")

	token := conf.Token
	if token == "" && conf.GithubAppID != "" {
		appToken, err := githubAppInstallationToken(ctx,
			conf.GithubAppID, conf.GithubAppInstallationID, conf.GithubAppPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("unable to create github app installation token err:%w", err)
		}
		token = appToken.Token
	}

	var httpClient *http.Client
	if token != "" {
		httpClient = &http.Client{Transport: &tokenTransport{token: token, base: http.DefaultTransport}}
	}

	gh := github.NewClient(httpClient)
	if conf.BaseURL != "" {
		baseURL, err := url.Parse(conf.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid hosting base url err:%w", err)
		}
		gh.BaseURL = baseURL
	}

	// unauthenticated clients get 60 requests per hour, authenticated 5000.
	// one per second with a small burst keeps both comfortably served.
	limiter := rate.NewLimiter(rate.Every(time.Second), 5)

	return &Client{gh: gh, limiter: limiter, log: log}, nil
}

// DefaultBranch returns the name of the remote default branch of the given
// repository. On any failure (network error, non-200, malformed payload) it
// records the error and falls back to "main", it never fails the caller.
func (c *Client) DefaultBranch(ctx context.Context, owner, name string) string {
	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Error("unable to fetch default branch", "repo", owner+"/"+name, "err", err)
		return FallbackDefaultBranch
	}

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		c.log.Error("unable to fetch default branch", "repo", owner+"/"+name, "err", err)
		return FallbackDefaultBranch
	}

	if repo.GetDefaultBranch() == "" {
		c.log.Error("remote returned repository without default branch", "repo", owner+"/"+name)
		return FallbackDefaultBranch
	}

	return repo.GetDefaultBranch()
}

// BranchesWithCommits lists remote branches of the given repository and, per
// branch, resolves last-commit metadata with a follow-up request. The
// returned slice preserves the remote listing order.
// The http status of the listing call is always returned: 403 comes with
// ErrRateLimited so callers can back off distinctly, any other non-200 yields
// an empty result with the status preserved for the caller to interpret.
func (c *Client) BranchesWithCommits(ctx context.Context, owner, name string) (int, []BranchCommit, error) {
	var commits []BranchCommit

	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}

		branches, resp, err := c.gh.Repositories.ListBranches(ctx, owner, name, opts)
		status := statusCode(resp)
		if err != nil {
			if isRateLimited(err, status) {
				return http.StatusForbidden, nil, ErrRateLimited
			}
			if status != 0 {
				c.log.Error("unable to list branches", "repo", owner+"/"+name, "status", status, "err", err)
				return status, nil, nil
			}
			return 0, nil, fmt.Errorf("unable to list branches for %s/%s err:%w", owner, name, err)
		}

		for _, b := range branches {
			bc := BranchCommit{
				Name: b.GetName(),
				SHA:  b.GetCommit().GetSHA(),
				URL:  b.GetCommit().GetURL(),
			}
			date, err := c.commitDate(ctx, owner, name, bc.SHA)
			if err != nil {
				if errors.Is(err, ErrRateLimited) {
					return http.StatusForbidden, nil, ErrRateLimited
				}
				// missing commit date fails closed in the activity filter
				c.log.Error("unable to fetch commit", "repo", owner+"/"+name, "branch", bc.Name, "err", err)
			} else {
				bc.Date = date
			}
			commits = append(commits, bc)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return http.StatusOK, commits, nil
}

// commitDate issues the follow-up request for a branch head commit
func (c *Client) commitDate(ctx context.Context, owner, name, sha string) (time.Time, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return time.Time{}, err
	}

	commit, resp, err := c.gh.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		if isRateLimited(err, statusCode(resp)) {
			return time.Time{}, ErrRateLimited
		}
		return time.Time{}, err
	}

	return commit.GetCommit().GetCommitter().GetDate().Time, nil
}

// CheckReachable probes the hosting API root and returns the http status
// code, or 0 when the service could not be reached at all. diagnostics only.
func (c *Client) CheckReachable(ctx context.Context) int {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0
	}

	_, resp, err := c.gh.Zen(ctx)
	status := statusCode(resp)
	if err != nil && status == 0 {
		c.log.Error("hosting api is not reachable", "err", err)
	}
	return status
}

func statusCode(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// isRateLimited classifies the 403 family of responses, including the
// dedicated rate-limit error types the API client decodes
func isRateLimited(err error, status int) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	return status == http.StatusForbidden
}
