package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v71/github"
	"golang.org/x/oauth2"
)

// CheckRun is a single CI job reported against a commit.
type CheckRun struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// File is one changed file in a pull request. Patch is empty for binary
// files and pure renames.
type File struct {
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// API is the subset of the GitHub REST API the scoring pipeline needs.
// Implementations return every page; callers never paginate.
type API interface {
	PullRequestHead(ctx context.Context, ref Ref) (string, error)
	ListCheckRuns(ctx context.Context, ref Ref, sha string) (total int, runs []CheckRun, err error)
	ListFiles(ctx context.Context, ref Ref) ([]File, error)
}

const perPage = 100

// Client implements API on top of go-github.
type Client struct {
	gh *gh.Client
}

// Options configures a Client.
type Options struct {
	// Token is a personal access or app token. Empty means unauthenticated.
	Token string
	// BaseURL overrides the REST root, e.g. https://ghe.example.com/api/v3/.
	BaseURL string
	Timeout time.Duration
}

// NewClient builds a GitHub client. The token is attached through an
// oauth2 static token source.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.Token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}

	c := gh.NewClient(httpClient)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		c.BaseURL = u
	}
	return &Client{gh: c}, nil
}

func (c *Client) PullRequestHead(ctx context.Context, ref Ref) (string, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return "", fmt.Errorf("get pull request %s: %w", ref, err)
	}
	sha := pr.GetHead().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("pull request %s has no head commit", ref)
	}
	return sha, nil
}

func (c *Client) ListCheckRuns(ctx context.Context, ref Ref, sha string) (int, []CheckRun, error) {
	opts := &gh.ListCheckRunsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}

	var (
		total int
		runs  []CheckRun
	)
	for {
		res, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, ref.Owner, ref.Repo, sha, opts)
		if err != nil {
			return 0, nil, fmt.Errorf("list check runs for %s: %w", sha, err)
		}
		total = res.GetTotal()
		for _, r := range res.CheckRuns {
			runs = append(runs, CheckRun{
				Name:       r.GetName(),
				Status:     r.GetStatus(),
				Conclusion: r.GetConclusion(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return total, runs, nil
}

func (c *Client) ListFiles(ctx context.Context, ref Ref) ([]File, error) {
	opts := &gh.ListOptions{PerPage: perPage}

	var files []File
	for {
		page, resp, err := c.gh.PullRequests.ListFiles(ctx, ref.Owner, ref.Repo, ref.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("list files for %s: %w", ref, err)
		}
		for _, f := range page {
			files = append(files, File{
				Filename:  f.GetFilename(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}
