// Package github looks up repository metadata before an analysis is
// submitted, so obvious mistakes (wrong URL, no Java in the repo) surface
// locally instead of as a failed backend session.
package github

import (
	"context"
	"fmt"
	"strings"

	gogh "github.com/google/go-github/v68/github"
)

// Client wraps the GitHub API for preflight lookups.
type Client struct {
	gh *gogh.Client
}

// NewClient creates a GitHub client. An empty token yields an anonymous
// client, which is enough for public repositories.
func NewClient(token string) *Client {
	gh := gogh.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh}
}

// Report describes a repository about to be analyzed.
type Report struct {
	Owner         string
	Name          string
	DefaultBranch string
	Private       bool

	// HasJava reports whether GitHub detected any Java in the repository.
	HasJava bool

	// Languages maps detected languages to bytes of code.
	Languages map[string]int
}

// FullName returns the repository's "owner/name" form.
func (r *Report) FullName() string {
	return r.Owner + "/" + r.Name
}

// Preflight fetches repository metadata and its language breakdown.
func (c *Client) Preflight(ctx context.Context, rawURL string) (*Report, error) {
	owner, name, ok := SplitURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("%q is not a GitHub repository URL", rawURL)
	}

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("looking up %s/%s: %w", owner, name, err)
	}

	langs, _, err := c.gh.Repositories.ListLanguages(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("listing languages for %s/%s: %w", owner, name, err)
	}

	return &Report{
		Owner:         owner,
		Name:          name,
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		HasJava:       langs["Java"] > 0,
		Languages:     langs,
	}, nil
}

// SplitURL extracts the owner and repository name from a GitHub URL.
// It accepts http(s) URLs with or without "www.", a trailing ".git", and
// extra path segments. ok is false for anything not hosted on github.com.
func SplitURL(rawURL string) (owner, repo string, ok bool) {
	s := strings.TrimSpace(rawURL)
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "www.")
	if !strings.HasPrefix(s, "github.com/") {
		return "", "", false
	}
	s = strings.TrimPrefix(s, "github.com/")
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	repo = strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return "", "", false
	}
	return parts[0], repo, true
}
