// Package giturl parses repository urls into their hosted identity
package giturl

import (
	"fmt"
	"net/url"
	"strings"
)

// AcceptedHost is the single hosting domain repositories can be mirrored from
const AcceptedHost = "github.com"

// URL represents parsed repository url.
// Owner and Name are derived from the first two path segments, remaining
// segments are ignored. parsing is a pure string operation, it never touches
// the network.
type URL struct {
	Raw    string // url as supplied by the caller, normalised
	Scheme string
	Host   string // host or host:port, lower-cased
	Owner  string // first path segment, might be empty
	Name   string // second path segment without '.git' suffix, might be empty
}

// NormaliseURL will return normalised url
func NormaliseURL(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}

// Parse parses a raw url into a URL structure.
// Identity parsing succeeds even for urls on an unrecognised host, the
// accepted-domain check is a separate gate applied by Validate.
func Parse(rawURL string) (*URL, error) {
	rawURL = NormaliseURL(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("provided '%s' url is invalid err:%w", rawURL, err)
	}

	gURL := &URL{
		Raw:    rawURL,
		Scheme: u.Scheme,
		Host:   strings.ToLower(u.Host),
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	if len(segments) > 0 {
		gURL.Owner = segments[0]
	}
	if len(segments) > 1 {
		gURL.Name = strings.TrimSuffix(segments[1], ".git")
	}

	return gURL, nil
}

// Validate verifies that the parsed url identifies a repository on the
// accepted hosting domain with both owner and name present.
func (u *URL) Validate() error {
	host := strings.TrimPrefix(u.Host, "www.")
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	if host != AcceptedHost {
		return fmt.Errorf("unrecognised host '%s', only %s repositories are supported", u.Host, AcceptedHost)
	}
	if u.Owner == "" || u.Name == "" {
		return fmt.Errorf("url path of '%s' must contain both owner and repository name", u.Raw)
	}
	return nil
}

// Validate reports whether raw is a well formed url for a repository on the
// accepted hosting domain. It is the synchronous gate callers run before
// constructing any repository entity.
func Validate(raw string) bool {
	u, err := Parse(raw)
	if err != nil {
		return false
	}
	return u.Validate() == nil
}

// Equals returns whether or not the two parsed urls identify the same
// remote repository
func (u *URL) Equals(other *URL) bool {
	return u.Host == other.Host &&
		strings.EqualFold(u.Owner, other.Owner) &&
		strings.EqualFold(u.Name, other.Name)
}
