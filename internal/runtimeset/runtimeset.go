// Package runtimeset defines vx's runtime capability interface (C3) and the
// built-in runtimes that implement it. Ecosystem integrations (HTTP
// fetches, archive formats) live behind this interface, grounded on the
// GitHub-release and Go-toolchain resolvers in internal/version
// (ResolveGitHubVersion/ListGitHubVersions/ResolveGoToolchain) plus the
// VersionRangeConfig policy layer spec.md §3 adds on top of what those
// resolvers return.
package runtimeset

import (
	"context"
	"os/exec"
	"strings"

	"github.com/vx-dev/vx/internal/lockfile"
	"github.com/vx-dev/vx/internal/version"
	"github.com/vx-dev/vx/internal/vxerr"
)

// Ecosystem tags a runtime's package ecosystem, per spec.md §3.
type Ecosystem int

const (
	EcosystemUnknown Ecosystem = iota
	EcosystemNodeJs
	EcosystemPython
	EcosystemRust
	EcosystemGo
	EcosystemSystem
)

func (e Ecosystem) String() string {
	switch e {
	case EcosystemNodeJs:
		return "NodeJs"
	case EcosystemPython:
		return "Python"
	case EcosystemRust:
		return "Rust"
	case EcosystemGo:
		return "Go"
	case EcosystemSystem:
		return "System"
	default:
		return "Unknown"
	}
}

// VersionRangeConfig is a runtime's optional range policy: a default
// substituted for "latest", hard minimum/maximum bounds, and named ranges
// that should warn without failing.
type VersionRangeConfig struct {
	Default      string
	Minimum      string
	Maximum      string
	Deprecated   []string
	Warning      []string
	Recommended  string
}

// InstallOutcome is the result tag of Install, per §3's Install result.
type InstallOutcome int

const (
	Installed InstallOutcome = iota
	AlreadyInstalled
	SystemFallback
)

// InstallResult is returned by Install, per §3.
type InstallResult struct {
	InstallPath    string
	ExecutablePath string
	Version        string
	Outcome        InstallOutcome
}

// Context carries per-call state an install/resolve operation may consult:
// the Go context, the vx base directory, and cached download URLs from the
// lock file (to skip URL resolution).
type Context struct {
	Ctx             context.Context
	Base            string
	DownloadURLCache map[string]string
}

// Runtime is the capability interface every built-in and bundled runtime
// implements, per §4.2.
type Runtime interface {
	Name() string
	Ecosystem() Ecosystem
	Aliases() []string
	Description() string
	// StoreName is the canonical on-disk directory name, which may differ
	// from Name when this runtime is bundled with another.
	StoreName() string
	// BundledWith returns the canonical name of the runtime this one is a
	// virtual view of, or "" if this runtime is standalone. A runtime with
	// a non-empty BundledWith redirects install and executable lookup to
	// that other runtime's tree, per spec.md §3.
	BundledWith() string
	PlatformSupported(platform string) bool
	FetchVersions(ctx *Context) ([]string, error)
	ResolveVersion(request string, ctx *Context) (string, error)
	IsInstalled(ver string, ctx *Context) bool
	Install(ver string, ctx *Context) (*InstallResult, error)
	ExecutableRelativePath(ver, platform string) string
	PreInstall(ver string, ctx *Context) error
	PostInstall(ver string, ctx *Context) error
	RangeConfig() *VersionRangeConfig
}

// base implements the hook methods and range config plumbing shared by
// every built-in runtime, so concrete runtimes only need to override what
// differs (fetch/resolve/install).
type base struct {
	name        string
	ecosystem   Ecosystem
	aliases     []string
	description string
	storeName   string
	bundledWith string
	rangeConfig *VersionRangeConfig
}

func (b *base) Name() string            { return b.name }
func (b *base) Ecosystem() Ecosystem    { return b.ecosystem }
func (b *base) Aliases() []string       { return b.aliases }
func (b *base) Description() string    { return b.description }
func (b *base) StoreName() string {
	if b.storeName != "" {
		return b.storeName
	}
	return b.name
}
func (b *base) BundledWith() string           { return b.bundledWith }
func (b *base) PlatformSupported(string) bool { return true }
func (b *base) PreInstall(string, *Context) error  { return nil }
func (b *base) PostInstall(string, *Context) error { return nil }
func (b *base) RangeConfig() *VersionRangeConfig   { return b.rangeConfig }

// ResolveRequest applies a runtime's VersionRangeConfig then selects the
// newest of available satisfying the (possibly rewritten) request, per
// §4.2's ordering contract and §3's "latest with default set" rule.
// available must already be sorted newest-first (strictly decreasing).
func ResolveRequest(request string, available []string, cfg *VersionRangeConfig) (string, error) {
	if request == "system" {
		return "", vxerr.New(vxerr.KindVersionNotFound, "system requests are resolved via PATH detection, not version listing")
	}

	effective := request
	if cfg != nil && (request == "" || request == "latest") && cfg.Default != "" {
		effective = cfg.Default
	}

	for _, v := range available {
		if !lockfile.Satisfies(v, effective) {
			continue
		}
		if cfg != nil {
			if cfg.Minimum != "" && version.CompareVersions(v, cfg.Minimum) < 0 {
				continue
			}
			if cfg.Maximum != "" && version.CompareVersions(v, cfg.Maximum) > 0 {
				continue
			}
		}
		return v, nil
	}
	return "", vxerr.VersionNotFound(request, effective)
}

// Warnings reports the non-fatal diagnostics a resolved version triggers
// against a runtime's range policy: deprecated-range membership and
// explicit warning entries.
func Warnings(runtimeName, resolved string, cfg *VersionRangeConfig) []vxerr.Warning {
	if cfg == nil {
		return nil
	}
	var out []vxerr.Warning
	for _, r := range cfg.Deprecated {
		if lockfile.Satisfies(resolved, r) {
			out = append(out, vxerr.Warning{Runtime: runtimeName, Message: resolved + " is deprecated (matches " + r + ")"})
		}
	}
	for _, r := range cfg.Warning {
		if lockfile.Satisfies(resolved, r) {
			out = append(out, vxerr.Warning{Runtime: runtimeName, Message: resolved + " is flagged for a warning (matches " + r + ")"})
		}
	}
	return out
}

// DetectSystemVersion runs `<name> --version` against the ambient PATH and
// extracts a version label, used for the "system" request token (§3).
// versionParser extracts the label from the command's combined output;
// callers supply a parser because every runtime's --version banner format
// differs (go1.22.1, Python 3.11.4, node v20.11.0, ...).
func DetectSystemVersion(exeName string, versionParser func(output string) string) (string, error) {
	path, err := exec.LookPath(exeName)
	if err != nil {
		return "", vxerr.RuntimeNotFound(exeName, nil)
	}
	out, err := exec.Command(path, "--version").CombinedOutput()
	if err != nil {
		return "", vxerr.Wrap(vxerr.KindRuntimeError, "failed to run "+exeName+" --version", err)
	}
	label := versionParser(strings.TrimSpace(string(out)))
	if label == "" {
		return "", vxerr.New(vxerr.KindRuntimeError, "could not parse version from "+exeName+" --version output")
	}
	return label, nil
}

// Registry holds the set of registered runtimes, keyed by canonical name
// and alias, so lookups by either resolve to the same Runtime.
type Registry struct {
	byName map[string]Runtime
}

// NewRegistry builds a Registry from runtimes, indexing both canonical
// names and aliases.
func NewRegistry(runtimes ...Runtime) *Registry {
	r := &Registry{byName: make(map[string]Runtime)}
	for _, rt := range runtimes {
		r.byName[rt.Name()] = rt
		for _, alias := range rt.Aliases() {
			r.byName[alias] = rt
		}
	}
	return r
}

// Lookup returns the runtime registered under name or an alias of it.
func (r *Registry) Lookup(name string) (Runtime, bool) {
	rt, ok := r.byName[name]
	return rt, ok
}

// Names returns every registered canonical runtime name, for building
// "did you mean" suggestions in vxerr.RuntimeNotFound.
func (r *Registry) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rt := range r.byName {
		if !seen[rt.Name()] {
			seen[rt.Name()] = true
			out = append(out, rt.Name())
		}
	}
	return out
}

// Suggest returns registered names within edit distance 3 of name, for
// vxerr.RuntimeNotFound's "did you mean" hints, grounded on the teacher's
// recipe/validator.go suggestSimilar/levenshteinDistance.
func (r *Registry) Suggest(name string) []string {
	var out []string
	for _, candidate := range r.Names() {
		if levenshteinDistance(candidate, name) <= 3 {
			out = append(out, candidate)
		}
	}
	return out
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			del := matrix[i-1][j] + 1
			ins := matrix[i][j-1] + 1
			sub := matrix[i-1][j-1] + cost
			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			matrix[i][j] = best
		}
	}
	return matrix[len(s1)][len(s2)]
}
