package version

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// VersionInfo contains both the original tag and normalized version
type VersionInfo struct {
	Tag     string // Original tag (e.g., "v1.2.3" or "1.2.3")
	Version string // Normalized version (e.g., "1.2.3")
}

// Resolver resolves versions for different sources
type Resolver struct {
	client        *github.Client // GitHub API client
	httpClient    *http.Client   // HTTP client for non-GitHub requests (injectable for testing)
	goDevURL      string         // go.dev/dl JSON API base URL (injectable for testing)
	authenticated bool           // Whether GitHub requests are authenticated
}

// newHTTPClient creates an HTTP client with security hardening and proper timeouts
// NewHTTPClient returns an SSRF-hardened HTTP client suitable for fetching
// version metadata from third-party registries.
func NewHTTPClient() *http.Client {
	return newHTTPClient()
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DisableCompression: true, // CRITICAL: Prevents decompression bomb attacks
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			DisableKeepAlives:     false,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// 1. Prevent redirect to non-HTTPS
			if req.URL.Scheme != "https" {
				return fmt.Errorf("refusing redirect to non-HTTPS URL: %s", req.URL)
			}

			// 2. Limit redirect chain
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}

			// 3. SSRF Protection: Check redirect target
			host := req.URL.Hostname()

			// 3a. If hostname is already an IP, check it directly
			if ip := net.ParseIP(host); ip != nil {
				if err := validateIP(ip, host); err != nil {
					return err
				}
			} else {
				// 3b. Hostname is a domain - resolve DNS and check ALL resulting IPs
				// This prevents DNS rebinding attacks where evil.com resolves to 127.0.0.1
				ips, err := net.LookupIP(host)
				if err != nil {
					return fmt.Errorf("failed to resolve redirect host %s: %w", host, err)
				}

				for _, ip := range ips {
					if err := validateIP(ip, host); err != nil {
						return fmt.Errorf("refusing redirect: %s resolves to blocked IP %s", host, ip)
					}
				}
			}

			return nil
		},
	}
}

// validateIP checks if an IP is allowed (not private, loopback, link-local, etc.)
func validateIP(ip net.IP, host string) error {
	// Block private IPs (RFC 1918: 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
	if ip.IsPrivate() {
		return fmt.Errorf("refusing redirect to private IP: %s (%s)", host, ip)
	}

	// Block loopback (127.0.0.0/8, ::1)
	if ip.IsLoopback() {
		return fmt.Errorf("refusing redirect to loopback IP: %s (%s)", host, ip)
	}

	// Block link-local unicast (169.254.0.0/16, fe80::/10)
	// CRITICAL: This includes AWS metadata service at 169.254.169.254
	if ip.IsLinkLocalUnicast() {
		return fmt.Errorf("refusing redirect to link-local IP: %s (%s)", host, ip)
	}

	// Block link-local multicast (224.0.0.0/24, ff02::/16)
	if ip.IsLinkLocalMulticast() {
		return fmt.Errorf("refusing redirect to link-local multicast: %s (%s)", host, ip)
	}

	// Block all other multicast (224.0.0.0/4, ff00::/8)
	if ip.IsMulticast() {
		return fmt.Errorf("refusing redirect to multicast IP: %s (%s)", host, ip)
	}

	// Block unspecified address (0.0.0.0, ::)
	if ip.IsUnspecified() {
		return fmt.Errorf("refusing redirect to unspecified IP: %s (%s)", host, ip)
	}

	return nil
}

// New creates a new version resolver. If the GITHUB_TOKEN environment
// variable is set, it is used for authenticated GitHub requests. Pass
// Option values (WithGoDevURL, ...) to override defaults, typically to
// point a provider at an httptest.Server in tests.
func New(opts ...Option) *Resolver {
	var githubHTTPClient *http.Client
	authenticated := false

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		githubHTTPClient = oauth2.NewClient(context.Background(), ts)
		authenticated = true
	}

	r := &Resolver{
		client:        github.NewClient(githubHTTPClient),
		httpClient:    newHTTPClient(),
		goDevURL:      "https://go.dev/dl",
		authenticated: authenticated,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// wrapGitHubRateLimitError converts a GitHub API rate limit error to a GitHubRateLimitError
// with detailed information for the user. Returns nil if the error is not a rate limit error.
// The context parameter describes what operation was being performed (e.g., version resolution).
func (r *Resolver) wrapGitHubRateLimitError(err error, context GitHubRateLimitContext) *GitHubRateLimitError {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &GitHubRateLimitError{
			Limit:         rateLimitErr.Rate.Limit,
			Remaining:     rateLimitErr.Rate.Remaining,
			ResetTime:     rateLimitErr.Rate.Reset.Time,
			Authenticated: r.authenticated,
			Context:       context,
			Err:           err,
		}
	}
	return nil
}

// ResolveGitHub resolves the latest version from a GitHub repository
// Falls back to tags API if releases API returns 404 (some repos use tags without releases)
func (r *Resolver) ResolveGitHub(ctx context.Context, repo string) (*VersionInfo, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}
	owner, repoName := parts[0], parts[1]

	release, _, err := r.client.Repositories.GetLatestRelease(ctx, owner, repoName)
	if err != nil {
		// Check for rate limit errors first
		if rateLimitErr := r.wrapGitHubRateLimitError(err, GitHubContextVersionResolution); rateLimitErr != nil {
			return nil, rateLimitErr
		}

		// Handle network errors gracefully
		if strings.Contains(err.Error(), "network is unreachable") ||
			strings.Contains(err.Error(), "no such host") ||
			strings.Contains(err.Error(), "dial tcp") {
			return nil, fmt.Errorf("network unavailable: %w", err)
		}

		// If 404, repository may use tags without releases (e.g., golang/go)
		// Fall back to listing tags
		if strings.Contains(err.Error(), "404") {
			return r.resolveFromTags(ctx, owner, repoName)
		}

		return nil, fmt.Errorf("failed to get latest release: %w", err)
	}

	tag := *release.TagName
	return &VersionInfo{
		Tag:     tag,
		Version: normalizeVersion(tag),
	}, nil
}

// resolveFromTags resolves version from repository tags when releases aren't available
func (r *Resolver) resolveFromTags(ctx context.Context, owner, repoName string) (*VersionInfo, error) {
	// Fetch multiple pages of tags to find valid versions
	// golang/go has ~500 tags with go1.x tags appearing later in the list
	var allTags []*github.RepositoryTag
	opts := &github.ListOptions{PerPage: 100}

	// Fetch up to 500 tags (5 pages)
	for page := 1; page <= 5; page++ {
		opts.Page = page
		tags, _, err := r.client.Repositories.ListTags(ctx, owner, repoName, opts)
		if err != nil {
			// Check for rate limit errors first
			if rateLimitErr := r.wrapGitHubRateLimitError(err, GitHubContextVersionResolution); rateLimitErr != nil {
				return nil, rateLimitErr
			}
			return nil, fmt.Errorf("failed to list tags: %w", err)
		}

		if len(tags) == 0 {
			break // No more tags
		}

		allTags = append(allTags, tags...)

		// Early exit if we have enough tags with valid versions
		if len(allTags) >= 100 {
			// Check if we have any valid version tags before continuing
			hasValidTag := false
			for _, tag := range allTags {
				if tag.Name != nil {
					normalized := normalizeVersion(*tag.Name)
					if normalized != "" && isValidVersion(normalized) &&
						!strings.Contains(*tag.Name, "weekly") {
						hasValidTag = true
						break
					}
				}
			}
			if hasValidTag {
				break // We have valid tags, stop fetching
			}
		}
	}

	if len(allTags) == 0 {
		return nil, fmt.Errorf("no tags found for %s/%s", owner, repoName)
	}

	// Find latest semantic version tag
	// For repos like golang/go, filter for "go1.x.x" pattern
	var latestTag string
	var latestVersion string

	for _, tag := range allTags {
		if tag.Name == nil {
			continue
		}
		tagName := *tag.Name

		// Skip obvious non-release tags
		if strings.Contains(tagName, "weekly") ||
			strings.Contains(strings.ToLower(tagName), "beta") ||
			strings.Contains(strings.ToLower(tagName), "-rc") {
			continue
		}

		// Normalize and compare versions
		normalized := normalizeVersion(tagName)

		// Skip if normalization resulted in empty string or invalid version
		if normalized == "" || !isValidVersion(normalized) {
			continue
		}

		if latestVersion == "" || CompareVersions(normalized, latestVersion) > 0 {
			latestVersion = normalized
			latestTag = tagName
		}
	}

	if latestTag == "" {
		return nil, fmt.Errorf("no valid version tags found for %s/%s", owner, repoName)
	}

	return &VersionInfo{
		Tag:     latestTag,
		Version: latestVersion,
	}, nil
}

// ResolveGitHubVersion resolves a specific version/tag from a GitHub repository
func (r *Resolver) ResolveGitHubVersion(ctx context.Context, repo, version string) (*VersionInfo, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}

	// First, try to list tags to find a match
	tags, err := r.ListGitHubVersions(ctx, repo)
	if err != nil {
		return nil, err
	}

	// Look for exact match or match with "v" prefix
	for _, t := range tags {
		if t == version || t == "v"+version || normalizeVersion(t) == version {
			return &VersionInfo{
				Tag:     t,
				Version: normalizeVersion(t),
			}, nil
		}
	}

	return nil, fmt.Errorf("version %s not found for %s", version, repo)
}

// ListGitHubVersions lists available versions (tags) for a GitHub repository
func (r *Resolver) ListGitHubVersions(ctx context.Context, repo string) ([]string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}
	owner, repoName := parts[0], parts[1]

	opts := &github.ListOptions{PerPage: 100}
	tags, _, err := r.client.Repositories.ListTags(ctx, owner, repoName, opts)
	if err != nil {
		// Check for rate limit errors first
		if rateLimitErr := r.wrapGitHubRateLimitError(err, GitHubContextVersionResolution); rateLimitErr != nil {
			return nil, rateLimitErr
		}
		// Handle network errors gracefully
		if strings.Contains(err.Error(), "network is unreachable") ||
			strings.Contains(err.Error(), "no such host") ||
			strings.Contains(err.Error(), "dial tcp") {
			return nil, fmt.Errorf("network unavailable: %w", err)
		}
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	var versions []string
	for _, tag := range tags {
		if tag.Name != nil {
			versions = append(versions, *tag.Name)
		}
	}

	return versions, nil
}
