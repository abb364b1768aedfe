package version

import (
	"encoding/json"
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// maxGoDevResponseSize limits the go.dev/dl JSON payload read into memory.
const maxGoDevResponseSize = 5 * 1024 * 1024

// goDevRelease mirrors a single entry of go.dev/dl's ?mode=json response.
type goDevRelease struct {
	Version string `json:"version"` // e.g. "go1.23.4"
	Stable  bool   `json:"stable"`
}

// ListGoToolchainVersions fetches all stable Go toolchain versions from
// go.dev/dl, newest first. Toolchain versions have no "v" prefix.
func (r *Resolver) ListGoToolchainVersions(ctx context.Context) ([]string, error) {
	baseURL := r.goDevURL
	if baseURL == "" {
		baseURL = "https://go.dev/dl"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ResolverError{Type: ErrTypeNetwork, Source: "go_toolchain", Message: "failed to parse go.dev URL", Err: err}
	}
	q := u.Query()
	q.Set("mode", "json")
	q.Set("include", "all")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, &ResolverError{Type: ErrTypeNetwork, Source: "go_toolchain", Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, WrapNetworkError(err, "go_toolchain", "failed to fetch go.dev release list")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ResolverError{Type: ErrTypeNetwork, Source: "go_toolchain", Message: "go.dev returned unexpected status"}
	}

	var releases []goDevRelease
	limited := io.LimitReader(resp.Body, maxGoDevResponseSize)
	if err := json.NewDecoder(limited).Decode(&releases); err != nil {
		return nil, &ResolverError{Type: ErrTypeParsing, Source: "go_toolchain", Message: "failed to parse go.dev response", Err: err}
	}

	versions := make([]string, 0, len(releases))
	for _, rel := range releases {
		if !rel.Stable {
			continue
		}
		versions = append(versions, strings.TrimPrefix(rel.Version, "go"))
	}

	sort.Slice(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i])
		vj, errj := semver.NewVersion(versions[j])
		if erri == nil && errj == nil {
			return vj.LessThan(vi)
		}
		return CompareVersions(versions[i], versions[j]) > 0
	})

	return versions, nil
}

// ResolveGoToolchain resolves the latest stable Go toolchain version.
func (r *Resolver) ResolveGoToolchain(ctx context.Context) (*VersionInfo, error) {
	versions, err := r.ListGoToolchainVersions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &ResolverError{Type: ErrTypeNotFound, Source: "go_toolchain", Message: "no stable Go versions found"}
	}

	latest := versions[0]
	return &VersionInfo{Tag: "go" + latest, Version: latest}, nil
}
