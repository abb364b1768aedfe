package runtimeset

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/version"
	"github.com/vx-dev/vx/internal/vxerr"
	"github.com/vx-dev/vx/internal/vxpath"
)

// githubRuntime is a Runtime whose releases live as GitHub tags,
// reusing the already-built Resolver.ListGitHubVersions/ResolveGitHubVersion
// (internal/version/resolver.go) for fetch/resolve. This covers
// language-runtime distributions that ship prebuilt archives as GitHub
// releases (Node.js, python-build-standalone, the Rust toolchain), which
// is the same resolution strategy the teacher already uses for its own
// GitHub-hosted tool recipes.
type githubRuntime struct {
	base
	repo                string
	resolver            *version.Resolver
	systemVersionRegexp *regexp.Regexp
	assetPatterns       func(ver, os, arch string) []string
	stripComponents     int
	releaseVerify       *releaseKeyConfig
}

func newGitHubRuntime(name string, eco Ecosystem, aliases []string, repo, description string, cfg *VersionRangeConfig, versionPattern string, assetPatterns func(ver, os, arch string) []string, stripComponents int) *githubRuntime {
	return &githubRuntime{
		base: base{
			name:        name,
			ecosystem:   eco,
			aliases:     aliases,
			description: description,
			rangeConfig: cfg,
		},
		repo:                repo,
		resolver:            version.New(),
		systemVersionRegexp: regexp.MustCompile(versionPattern),
		assetPatterns:       assetPatterns,
		stripComponents:     stripComponents,
	}
}

func (g *githubRuntime) FetchVersions(ctx *Context) ([]string, error) {
	tags, err := g.resolver.ListGitHubVersions(goCtx(ctx), g.repo)
	if err != nil {
		return nil, vxerr.Wrap(vxerr.KindVersionNotFound, "failed to list versions for "+g.name, err)
	}
	normalized := make([]string, 0, len(tags))
	for _, t := range tags {
		normalized = append(normalized, strings.TrimPrefix(t, "v"))
	}
	version.SortVersionsDescending(normalized)
	return normalized, nil
}

func (g *githubRuntime) ResolveVersion(request string, ctx *Context) (string, error) {
	if request == "system" {
		return DetectSystemVersion(g.name, func(output string) string {
			m := g.systemVersionRegexp.FindStringSubmatch(output)
			if len(m) < 2 {
				return ""
			}
			return m[1]
		})
	}
	available, err := g.FetchVersions(ctx)
	if err != nil {
		return "", err
	}
	return ResolveRequest(request, available, g.rangeConfig)
}

func (g *githubRuntime) IsInstalled(ver string, ctx *Context) bool {
	s := store.New(ctx.Base)
	return s.IsVersionInStore(g.StoreName(), ver)
}

func (g *githubRuntime) Install(ver string, ctx *Context) (*InstallResult, error) {
	if g.IsInstalled(ver, ctx) {
		root, _ := vxpath.VersionRoot(ctx.Base, g.StoreName(), ver)
		s := store.New(ctx.Base)
		exe, _ := s.FindExecutable(g.StoreName(), ver, g.name)
		return &InstallResult{InstallPath: root, ExecutablePath: exe, Version: ver, Outcome: AlreadyInstalled}, nil
	}

	osName, archName := platformAsset(hostOS(), hostArch())
	patterns := g.assetPatterns(ver, osName, archName)
	url, err := resolveAssetURL(ctx, g.resolver, g.repo, g.Name(), ver, patterns)
	if err != nil {
		return nil, err
	}

	var verify func(archivePath, assetName string) error
	if g.releaseVerify != nil {
		verify = func(archivePath, assetName string) error {
			return verifyRelease(goCtx(ctx), g.releaseVerify, archivePath, assetName, ver)
		}
	}
	return downloadAndInstall(ctx, url, g.StoreName(), ver, g.stripComponents, verify)
}

func (g *githubRuntime) ExecutableRelativePath(ver, platform string) string {
	if platform == "windows" {
		return "bin/" + g.name + ".exe"
	}
	return "bin/" + g.name
}

// goCtx adapts a *Context to a context.Context for calls into the version
// package, which is unaware of runtimeset's Context wrapper.
func goCtx(c *Context) context.Context {
	if c == nil || c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Built-in runtime constructors. Each is grounded on a real upstream
// distribution channel: Node.js and Rust publish GitHub release tags for
// their source repos mirroring their version scheme; python-build-standalone
// is the de facto prebuilt-CPython distribution used by toolchain managers
// (uv, rtx/mise) that need a portable Python without a system package
// manager.

// NewNode returns the built-in node runtime. Its downloaded archive is
// verified against Node's PGP-signed SHASUMS256.txt before being
// extracted, since nodejs.org publishes one (per SPEC_FULL.md's optional
// signature-check requirement); the other built-ins don't have an
// equivalently simple signed-checksums file to pin against.
func NewNode() Runtime {
	rt := newGitHubRuntime("node", EcosystemNodeJs, []string{"nodejs"},
		"nodejs/node", "Node.js JavaScript runtime",
		&VersionRangeConfig{Default: "20"},
		`v(\d+\.\d+\.\d+)`,
		func(ver, os, arch string) []string {
			if os == "win" {
				return []string{fmt.Sprintf("node-v%s-%s-%s.zip", ver, os, arch)}
			}
			return []string{fmt.Sprintf("node-v%s-%s-%s.tar.gz", ver, os, arch)}
		},
		1,
	)
	rt.releaseVerify = nodeReleaseKey
	return rt
}

// NewPython returns the built-in python runtime, backed by
// python-build-standalone's prebuilt CPython archives.
func NewPython() Runtime {
	return newGitHubRuntime("python", EcosystemPython, []string{"cpython"},
		"indygreg/python-build-standalone", "Standalone CPython distribution",
		&VersionRangeConfig{Default: "3.12"},
		`Python (\d+\.\d+\.\d+)`,
		func(ver, os, arch string) []string {
			archTriple := arch
			if arch == "x64" {
				archTriple = "x86_64"
			}
			return []string{
				fmt.Sprintf("cpython-*-%s-*%s*-install_only.tar.gz", archTriple, os),
			}
		},
		1,
	)
}

// NewRust returns the built-in rust runtime, backed by the rust-lang/rust
// release tags (rustup's own distribution channel is HTTP, not GitHub
// releases, but the tag history mirrors the same version set). rust-lang/rust
// does not publish prebuilt archives as GitHub release assets, so its
// asset patterns are never expected to match; Install surfaces that as a
// clear "no matching asset" error rather than a silent failure.
func NewRust() Runtime {
	return newGitHubRuntime("rust", EcosystemRust, []string{"rustc", "cargo"},
		"rust-lang/rust", "Rust systems programming toolchain",
		&VersionRangeConfig{Default: "stable"},
		`rustc (\d+\.\d+\.\d+)`,
		func(ver, os, arch string) []string {
			return []string{fmt.Sprintf("rust-%s-%s-%s.tar.gz", ver, os, arch)}
		},
		1,
	)
}

// goRuntime wires the Go ecosystem's dedicated toolchain provider
// (internal/version/go_toolchain.go), which lists versions from
// go.dev/dl rather than a GitHub repo's tags.
type goRuntime struct {
	base
	provider *version.GoToolchainProvider
}

// NewGo returns the built-in go runtime.
func NewGo() Runtime {
	r := version.New()
	return &goRuntime{
		base: base{
			name:        "go",
			ecosystem:   EcosystemGo,
			aliases:     []string{"golang"},
			description: "Go programming language toolchain",
			rangeConfig: &VersionRangeConfig{Default: "stable"},
		},
		provider: version.NewGoToolchainProvider(r),
	}
}

func (g *goRuntime) FetchVersions(ctx *Context) ([]string, error) {
	versions, err := g.provider.ListVersions(goCtx(ctx))
	if err != nil {
		return nil, vxerr.Wrap(vxerr.KindVersionNotFound, "failed to list Go toolchain versions", err)
	}
	version.SortVersionsDescending(versions)
	return versions, nil
}

func (g *goRuntime) ResolveVersion(request string, ctx *Context) (string, error) {
	if request == "system" {
		return DetectSystemVersion("go", func(output string) string {
			re := regexp.MustCompile(`go(\d+\.\d+(?:\.\d+)?)`)
			m := re.FindStringSubmatch(output)
			if len(m) < 2 {
				return ""
			}
			return m[1]
		})
	}
	available, err := g.FetchVersions(ctx)
	if err != nil {
		return "", err
	}
	return ResolveRequest(request, available, g.rangeConfig)
}

func (g *goRuntime) IsInstalled(ver string, ctx *Context) bool {
	return store.New(ctx.Base).IsVersionInStore("go", ver)
}

func (g *goRuntime) Install(ver string, ctx *Context) (*InstallResult, error) {
	if g.IsInstalled(ver, ctx) {
		root, _ := vxpath.VersionRoot(ctx.Base, "go", ver)
		exe, _ := store.New(ctx.Base).FindExecutable("go", ver, "go")
		return &InstallResult{InstallPath: root, ExecutablePath: exe, Version: ver, Outcome: AlreadyInstalled}, nil
	}

	// go.dev spells its asset names with raw GOOS/GOARCH (e.g.
	// "go1.23.4.windows-amd64.zip"), unlike node/python-build-standalone's
	// vendor-specific spelling, so platformAsset's translation is not used here.
	osName, archName := hostOS(), hostArch()
	ext := "tar.gz"
	if osName == "windows" {
		ext = "zip"
	}
	url := fmt.Sprintf("https://go.dev/dl/go%s.%s-%s.%s", ver, osName, archName, ext)
	if ctx.DownloadURLCache != nil {
		if cached, ok := ctx.DownloadURLCache["go"]; ok && cached != "" {
			url = cached
		} else {
			ctx.DownloadURLCache["go"] = url
		}
	}
	// go.dev tarballs unpack a single top-level "go/" directory.
	return downloadAndInstall(ctx, url, "go", ver, 1, nil)
}

func (g *goRuntime) ExecutableRelativePath(ver, platform string) string {
	if platform == "windows" {
		return "bin/go.exe"
	}
	return "bin/go"
}

// SystemRuntime wraps an arbitrary executable name as a "system" runtime
// with no store presence at all: every request is treated as "system",
// matching spec.md §9's system-fallback scenario for tools vx never
// manages (e.g. a project declaring `{go = "system"}`).
type SystemRuntime struct {
	base
	versionRegexp *regexp.Regexp
}

// NewSystemRuntime returns a runtime value that only ever resolves via
// ambient PATH detection.
func NewSystemRuntime(name, versionPattern string) *SystemRuntime {
	return &SystemRuntime{
		base: base{
			name:        name,
			ecosystem:   EcosystemSystem,
			description: fmt.Sprintf("ambient system %s", name),
		},
		versionRegexp: regexp.MustCompile(versionPattern),
	}
}

func (s *SystemRuntime) FetchVersions(*Context) ([]string, error) {
	return nil, vxerr.New(vxerr.KindRuntimeError, s.name+" is a system runtime and has no managed version list")
}

func (s *SystemRuntime) ResolveVersion(request string, ctx *Context) (string, error) {
	return DetectSystemVersion(s.name, func(output string) string {
		m := s.versionRegexp.FindStringSubmatch(output)
		if len(m) < 2 {
			return ""
		}
		return m[1]
	})
}

func (s *SystemRuntime) IsInstalled(string, *Context) bool { return true }

func (s *SystemRuntime) Install(ver string, ctx *Context) (*InstallResult, error) {
	v, err := s.ResolveVersion("system", ctx)
	if err != nil {
		return nil, err
	}
	return &InstallResult{Version: v, Outcome: SystemFallback}, nil
}

func (s *SystemRuntime) ExecutableRelativePath(_, platform string) string {
	if platform == "windows" {
		return s.name + ".exe"
	}
	return s.name
}

// hostPlatform returns a platform label (os-arch) for the running process.
func hostPlatform() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

func hostOS() string   { return runtime.GOOS }
func hostArch() string { return runtime.GOARCH }
