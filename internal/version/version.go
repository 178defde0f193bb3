// Package version compares build versions and looks up the latest hdscan
// release on GitHub.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Release lookup defaults.
const (
	DefaultBaseURL = "https://api.github.com"
	DefaultOwner   = "mrz1836"
	DefaultRepo    = "hdscan"
	DefaultTimeout = 15 * time.Second

	maxErrorBody    = 1 << 10
	maxResponseBody = 64 << 10
)

// Errors returned by this package.
var (
	ErrReleaseLookup = errors.New("release lookup failed")
	ErrInvalidRepo   = errors.New("invalid owner/repo")
)

var repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Release is the subset of a GitHub release hdscan uses.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Status is the result of comparing the running build with the latest
// release.
type Status struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	URL     string `json:"url,omitempty"`
	IsNewer bool   `json:"update_available"`
}

// Client fetches releases for one repository.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithRepository overrides the repository queried.
func WithRepository(owner, repo string) Option {
	return func(c *Client) { c.owner, c.repo = owner, repo }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the hdscan repository.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		owner:      DefaultOwner,
		repo:       DefaultRepo,
		userAgent:  fmt.Sprintf("hdscan (%s/%s)", runtime.GOOS, runtime.GOARCH),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestRelease fetches the newest published release.
func (c *Client) LatestRelease(ctx context.Context) (*Release, error) {
	if !repoNamePattern.MatchString(c.owner) || !repoNamePattern.MatchString(c.repo) {
		return nil, fmt.Errorf("%w: %q/%q", ErrInvalidRepo, c.owner, c.repo)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL built from the fixed API root and a validated repo name
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReleaseLookup, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrReleaseLookup, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrReleaseLookup, err)
	}
	return &rel, nil
}

// Check compares current with the latest release.
func (c *Client) Check(ctx context.Context, current string) (*Status, error) {
	rel, err := c.LatestRelease(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Current: current,
		Latest:  rel.TagName,
		URL:     rel.HTMLURL,
		IsNewer: IsNewer(current, rel.TagName),
	}, nil
}

// Compare returns 1, 0 or -1 as a is newer than, equal to or older than b.
// Development builds ("dev", empty, commit hashes) sort before every
// release.
func Compare(a, b string) int {
	devA, devB := isDevelopment(a), isDevelopment(b)
	switch {
	case devA && devB:
		return 0
	case devA:
		return -1
	case devB:
		return 1
	}

	pa, pb := parts(a), parts(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// IsNewer reports whether latest is newer than current.
func IsNewer(current, latest string) bool {
	return Compare(latest, current) > 0
}

// Normalize strips whitespace, "v" prefixes and pre-release or build
// suffixes: " v1.2.3-rc1 " becomes "1.2.3".
func Normalize(v string) string {
	v = strings.TrimLeft(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i != -1 {
		v = v[:i]
	}
	return v
}

func parts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(Normalize(v), ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}

func isDevelopment(v string) bool {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	return v == "" || v == "dev" || isCommitHash(v)
}

// isCommitHash matches 7 to 40 hex characters with at least one letter, so
// numeric versions like "2024010100" are not mistaken for hashes.
func isCommitHash(s string) bool {
	s = strings.TrimSuffix(s, "-dirty")
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	letter := false
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
			letter = true
		default:
			return false
		}
	}
	return letter
}
