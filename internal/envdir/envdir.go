// Package envdir implements C10: creating, populating, and inspecting the
// symlink directories that make a set of runtimes available on PATH — a
// project env at <project>/.vx/env/ or a named global env at
// <base>/envs/<name>/ — per spec.md §4.9. Grounded on the teacher's
// install/manager.go "current" symlink idiom, generalized from one fixed
// per-runtime symlink to an arbitrary named directory of them, and built
// on top of internal/linkshim for the actual symlink mechanics.
package envdir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vx-dev/vx/internal/linkshim"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxconfig"
	"github.com/vx-dev/vx/internal/vxerr"
	"github.com/vx-dev/vx/internal/vxpath"
)

// DefaultEnvName is the implicit global env that cannot be deleted.
const DefaultEnvName = "default"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateName enforces §4.9's env naming rule.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return vxerr.New(vxerr.KindConfigMalformed, fmt.Sprintf("env name %q must match [A-Za-z0-9._-]+", name))
	}
	return nil
}

// Dir resolves the directory for a named env: a global env under
// <base>/envs/<name> when global is true, otherwise the project-local env
// at <projectRoot>/.vx/env (project envs are unnamed — projectRoot alone
// identifies them).
func Dir(base, projectRoot, name string, global bool) (string, error) {
	if global {
		if err := ValidateName(name); err != nil {
			return "", err
		}
		return vxpath.GlobalEnvDir(base, name)
	}
	return vxpath.ProjectEnvDir(projectRoot), nil
}

// Entry is one (runtime -> version) binding recovered from an env's
// symlinks, per §4.9's list() operation.
type Entry struct {
	Runtime string
	Version string
	// Target is the raw symlink target, for callers that want it
	// verbatim rather than just the recovered version label.
	Target string
}

// Create makes a new env directory. If from is non-empty, it names an
// existing env (by directory path) whose entries are cloned into the new
// one by reading each source symlink and creating an equivalent link.
func Create(dir string, from string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create env directory "+dir, err)
	}
	if from == "" {
		return nil
	}
	entries, err := List(from)
	if err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to read source env "+from, err)
	}
	for _, e := range entries {
		linkPath := filepath.Join(dir, e.Runtime)
		if err := linkshim.CreateLink(e.Target, linkPath, linkshim.SymLink); err != nil {
			return err
		}
	}
	return nil
}

// Add replaces any existing link at dir/<runtime> with a symlink to the
// store's <runtime>/<version> directory. Fails if that version is not
// actually installed — §4.9 requires is_version_in_store before add.
func Add(base, dir, runtimeName, version string, st *store.Store) error {
	if !st.IsVersionInStore(runtimeName, version) {
		return vxerr.New(vxerr.KindVersionNotFound, fmt.Sprintf("%s@%s is not in the store", runtimeName, version))
	}
	target, err := vxpath.VersionRoot(base, runtimeName, version)
	if err != nil {
		return vxerr.Wrap(vxerr.KindConfigMalformed, "invalid runtime/version", err)
	}
	linkPath := filepath.Join(dir, runtimeName)
	return linkshim.CreateLink(target, linkPath, linkshim.SymLink)
}

// Remove deletes the link at dir/<runtime>. Fails if no link exists there.
func Remove(dir, runtimeName string) error {
	linkPath := filepath.Join(dir, runtimeName)
	if _, err := os.Lstat(linkPath); err != nil {
		if os.IsNotExist(err) {
			return vxerr.New(vxerr.KindFilesystemError, fmt.Sprintf("no link for %s in this env", runtimeName))
		}
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to stat link", err)
	}
	if err := os.Remove(linkPath); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to remove link", err)
	}
	return nil
}

// SyncResult reports the outcome of Sync for one declared tool.
type SyncResult struct {
	Runtime string
	Version string
	Synced  bool
	Missing bool
}

// Sync ensures, for each (runtime, version) the project declares, that
// dir/<runtime> exists and points at that version — installing or
// repairing stale links — and reports any declared tool that is not yet
// installed rather than failing the whole operation.
func Sync(base, dir string, project *vxconfig.Project, st *store.Store) ([]SyncResult, error) {
	var results []SyncResult
	for _, name := range project.ToolOrder {
		version := project.Tools[name]
		if !st.IsVersionInStore(name, version) {
			results = append(results, SyncResult{Runtime: name, Version: version, Missing: true})
			continue
		}
		if err := Add(base, dir, name, version, st); err != nil {
			return results, err
		}
		results = append(results, SyncResult{Runtime: name, Version: version, Synced: true})
	}
	return results, nil
}

// List enumerates dir's entries, resolving each symlink's target and
// recovering the runtime/version label when the target follows the
// store's store/<runtime>/<version>/... layout.
func List(dir string) ([]Entry, error) {
	infos, err := os.ReadDir(dir)
	if err != nil {
		return nil, vxerr.Wrap(vxerr.KindFilesystemError, "failed to read env directory "+dir, err)
	}
	var out []Entry
	for _, info := range infos {
		linkPath := filepath.Join(dir, info.Name())
		target, err := linkshim.ReadLinkTarget(linkPath)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Runtime: info.Name(),
			Version: recoverVersion(target),
			Target:  target,
		})
	}
	return out, nil
}

// recoverVersion extracts the version label from a target path following
// .../store/<runtime>/<version>[/...], by position relative to "store".
func recoverVersion(target string) string {
	parts := strings.Split(filepath.ToSlash(target), "/")
	for i, p := range parts {
		if p == "store" && i+2 < len(parts) {
			return parts[i+2]
		}
	}
	return ""
}
