// Package vxpath provides pure, deterministic path-joining functions over
// vx's base directory, grounded on the teacher's config.Config path
// methods (ToolDir/ToolBinDir/CurrentSymlink/LibDir/AppDir) and generalized
// from its flat tools/<name>-<version>/ layout to vx's content-addressable
// store/<runtime>/<version>/ tree.
//
// No function in this package performs I/O; all disk access belongs to the
// store, link/shim, and env directory components that consume these paths.
// Functions fail only by refusing malformed identifiers, except Base, which
// also fails when the home directory cannot be determined.
package vxpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvHome overrides the base directory when set, mirroring the
	// teacher's TSUKU_HOME override.
	EnvHome = "VX_HOME"

	// dirName is the default base directory name under the user's home.
	dirName = ".vx"
)

// DefaultHomeOverride lets tests pin the base directory without touching
// the environment, mirroring config.DefaultHomeOverride.
var DefaultHomeOverride string

// Base resolves vx's base directory: EnvHome, then DefaultHomeOverride,
// then $HOME/.vx.
func Base() (string, error) {
	if v := os.Getenv(EnvHome); v != "" {
		return v, nil
	}
	if DefaultHomeOverride != "" {
		return DefaultHomeOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// validIdent rejects path separators, ".." traversal, and empty identifiers
// so callers cannot escape the base directory via a crafted runtime or
// version name.
func validIdent(s string) error {
	if s == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	if strings.ContainsAny(s, "/\\") {
		return fmt.Errorf("identifier %q must not contain path separators", s)
	}
	if s == ".." || s == "." {
		return fmt.Errorf("identifier %q is not a valid path component", s)
	}
	return nil
}

// StoreDir returns <base>/store.
func StoreDir(base string) string {
	return filepath.Join(base, "store")
}

// RuntimeStoreDir returns <base>/store/<runtime>, the parent of all
// installed versions of runtime.
func RuntimeStoreDir(base, runtime string) (string, error) {
	if err := validIdent(runtime); err != nil {
		return "", err
	}
	return filepath.Join(StoreDir(base), runtime), nil
}

// VersionRoot returns the canonical, content-addressed install root for
// (runtime, version): <base>/store/<runtime>/<version>.
func VersionRoot(base, runtime, version string) (string, error) {
	if err := validIdent(runtime); err != nil {
		return "", err
	}
	if err := validIdent(version); err != nil {
		return "", err
	}
	return filepath.Join(StoreDir(base), runtime, version), nil
}

// TempVersionRoot returns the sibling temporary name a partial install
// writes to before the atomic rename onto VersionRoot (invariant I1).
func TempVersionRoot(base, runtime, version, suffix string) (string, error) {
	root, err := VersionRoot(base, runtime, version)
	if err != nil {
		return "", err
	}
	return root + ".tmp-" + suffix, nil
}

// BinDir returns the preferred executable directory for (runtime, version):
// <base>/store/<runtime>/<version>/bin.
func BinDir(base, runtime, version string) (string, error) {
	root, err := VersionRoot(base, runtime, version)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "bin"), nil
}

// NestedLayoutDir returns the nested-archive directory some runtimes extract
// into: <base>/store/<runtime>/<version>/<runtime>-<triple>. Its bin/
// subdirectory, if present, is probed as a fallback executable location.
func NestedLayoutDir(base, runtime, version, triple string) (string, error) {
	root, err := VersionRoot(base, runtime, version)
	if err != nil {
		return "", err
	}
	if err := validIdent(triple); err != nil {
		return "", err
	}
	return filepath.Join(root, fmt.Sprintf("%s-%s", runtime, triple)), nil
}

// AuxBinDir returns an auxiliary bin directory installed alongside a
// runtime's version root for helper tools it bundles (e.g. npm-global or
// pip --user installs), keyed by an arbitrary label such as "npm-tools" or
// "pip-tools".
func AuxBinDir(base, runtime, version, label string) (string, error) {
	root, err := VersionRoot(base, runtime, version)
	if err != nil {
		return "", err
	}
	if err := validIdent(label); err != nil {
		return "", err
	}
	return filepath.Join(root, label), nil
}

// EnvsDir returns <base>/envs, the parent of all named global environments.
func EnvsDir(base string) string {
	return filepath.Join(base, "envs")
}

// GlobalEnvDir returns <base>/envs/<name>, a global env's symlink directory.
func GlobalEnvDir(base, name string) (string, error) {
	if err := validIdent(name); err != nil {
		return "", err
	}
	return filepath.Join(EnvsDir(base), name), nil
}

// GlobalEnvLink returns <base>/envs/<name>/<runtime>, the symlink a global
// env maintains into the store for one runtime.
func GlobalEnvLink(base, name, runtime string) (string, error) {
	dir, err := GlobalEnvDir(base, name)
	if err != nil {
		return "", err
	}
	if err := validIdent(runtime); err != nil {
		return "", err
	}
	return filepath.Join(dir, runtime), nil
}

// ProjectEnvDir returns <project>/.vx/env, the project-local env directory.
func ProjectEnvDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".vx", "env")
}

// ProjectEnvLink returns <project>/.vx/env/<runtime>.
func ProjectEnvLink(projectRoot, runtime string) (string, error) {
	if err := validIdent(runtime); err != nil {
		return "", err
	}
	return filepath.Join(ProjectEnvDir(projectRoot), runtime), nil
}

// ShimsDir returns <base>/shims, the global shim/launcher directory.
func ShimsDir(base string) string {
	return filepath.Join(base, "shims")
}

// ShimPath returns <base>/shims/<exe>[.exe], adding the platform executable
// suffix when isWindows is true.
func ShimPath(base, exe string, isWindows bool) (string, error) {
	if err := validIdent(exe); err != nil {
		return "", err
	}
	name := exe
	if isWindows && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}
	return filepath.Join(ShimsDir(base), name), nil
}

// CacheDir returns <base>/cache.
func CacheDir(base string) string {
	return filepath.Join(base, "cache")
}

// ExecPathCacheFile returns <base>/cache/exec-paths.json, the per-runtime-tree
// executable resolution cache (§4.3).
func ExecPathCacheFile(base string) string {
	return filepath.Join(CacheDir(base), "exec-paths.json")
}

// ConfigDir returns <base>/config.
func ConfigDir(base string) string {
	return filepath.Join(base, "config")
}

// DefaultEnvFile returns <base>/config/default-env, the file naming which
// global env is active when no project env applies.
func DefaultEnvFile(base string) string {
	return filepath.Join(ConfigDir(base), "default-env")
}

// LockFilePath returns <project>/vx.lock.
func LockFilePath(projectRoot string) string {
	return filepath.Join(projectRoot, "vx.lock")
}

// ProjectConfigPath returns <project>/vx.toml.
func ProjectConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, "vx.toml")
}

// UserConfigPath returns <base>/config.toml, vx's user-level settings file.
func UserConfigPath(base string) string {
	return filepath.Join(base, "config.toml")
}
