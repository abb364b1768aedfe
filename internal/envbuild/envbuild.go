// Package envbuild computes the environment map for a project's declared
// tools (C8): which bin directories belong on PATH, in what order, and
// what else overlays on top, per spec.md §4.7. Grounded on the teacher's
// cmd/tsuku/shellenv.go PATH-prepend idea (bin dir before inherited PATH)
// generalized from tsuku's two fixed directories to vx's per-tool,
// per-runtime-version bin directories resolved through the store.
package envbuild

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/vx-dev/vx/internal/runtimeset"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxconfig"
	"github.com/vx-dev/vx/internal/vxerr"
)

// minimalPassthrough is always copied from the inherited environment when
// isolated, per §4.7 step 2's "fixed minimal set required for any shell
// to function".
var minimalPassthrough = []string{"HOME", "USERPROFILE", "TMPDIR", "TEMP", "LANG", "LC_ALL", "TERM"}

// Options carries the inputs Build needs beyond the project config.
type Options struct {
	Registry    *runtimeset.Registry
	Store       *store.Store
	CurrentEnv  map[string]string // a snapshot of the current process environment
	WarnMissing bool
	// EnvName, when non-empty, is injected as VX_ENV (set when the
	// environment was sourced from an env directory rather than a
	// project's own declared tools).
	EnvName string
}

// Result is the computed environment plus any non-fatal diagnostics.
type Result struct {
	Env      map[string]string
	Warnings []vxerr.Warning
}

// Build computes the environment map for project's declared tools, per
// §4.7 steps 1-6. project.Tools must already hold resolved versions (not
// version requests) — the caller resolves via the lock file or install
// engine before calling Build. Build is pure: it never touches the
// filesystem beyond the store lookups opts.Store performs, and never
// mutates opts.CurrentEnv.
func Build(project *vxconfig.Project, opts Options) *Result {
	env := make(map[string]string)
	var warnings []vxerr.Warning

	// Step 1/2: isolation and passenv.
	if !project.Isolation {
		for k, v := range opts.CurrentEnv {
			env[k] = v
		}
	} else {
		for _, name := range minimalPassthrough {
			if v, ok := opts.CurrentEnv[name]; ok {
				env[name] = v
			}
		}
		if len(project.Passenv) > 0 {
			for k, v := range opts.CurrentEnv {
				if matchesAnyGlob(k, project.Passenv) {
					env[k] = v
				}
			}
		}
	}

	// Step 3/4: resolve each declared tool's bin directory, in config
	// order, and prepend to PATH.
	platform := hostPlatform()
	var pathEntries []string
	for _, name := range project.ToolOrder {
		ver := project.Tools[name]
		rt, ok := opts.Registry.Lookup(name)
		if !ok {
			if opts.WarnMissing {
				warnings = append(warnings, vxerr.Warning{Runtime: name, Message: "runtime " + name + " is not registered"})
			}
			continue
		}

		exeBase := filepath.Base(rt.ExecutableRelativePath(ver, platform))
		exeBase = strings.TrimSuffix(exeBase, ".exe")

		exePath, err := opts.Store.FindExecutable(rt.StoreName(), ver, exeBase)
		if err != nil {
			if opts.WarnMissing {
				warnings = append(warnings, vxerr.Warning{Runtime: name, Message: "bin directory not found for " + name + "@" + ver + ": " + err.Error()})
			}
			continue
		}
		pathEntries = append(pathEntries, filepath.Dir(exePath))
	}

	sep := string(pathListSeparator())
	tail := ""
	if !project.Isolation {
		tail = opts.CurrentEnv["PATH"]
	}
	full := strings.Join(pathEntries, sep)
	if tail != "" {
		if full != "" {
			full += sep
		}
		full += tail
	}
	env["PATH"] = full

	// Step 5: overlay setenv then the merged env map literally.
	for k, v := range project.Setenv {
		env[k] = v
	}
	for k, v := range project.Env {
		env[k] = v
	}

	// Step 6: inject VX_* metadata.
	env["VX_DEV"] = "1"
	env["VX_PROJECT_NAME"] = project.ProjectName
	env["VX_PROJECT_ROOT"] = project.ProjectRoot
	if opts.EnvName != "" {
		env["VX_ENV"] = opts.EnvName
	}

	return &Result{Env: env, Warnings: warnings}
}

// matchesAnyGlob reports whether name matches any of patterns, using the
// same filepath.Match glob matching the teacher's asset-pattern matching
// (internal/version/assets.go MatchAssetPattern) uses for *, ?, [].
func matchesAnyGlob(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func hostPlatform() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

// pathListSeparator returns ';' on Windows and ':' elsewhere, per §4.7's
// explicit separator rule.
func pathListSeparator() rune {
	if runtime.GOOS == "windows" {
		return ';'
	}
	return ':'
}
