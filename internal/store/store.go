// Package store implements the content-addressable runtime store: version
// enumeration and executable discovery over <base>/store/<runtime>/<version>,
// per spec.md §4.3. Grounded on the teacher's install/list.go directory
// enumeration (generalized from its flat name-version split to vx's
// already-split store/<runtime>/<version> tree) plus a new exec-path cache
// the teacher does not have, since tsuku always
// resolves a single current/ symlink and never needed to search nested
// archive layouts or probe recursively.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/vx-dev/vx/internal/version"
	"github.com/vx-dev/vx/internal/vxerr"
	"github.com/vx-dev/vx/internal/vxpath"
)

// maxRecursiveDepth bounds the fallback search in find_executable (§4.3 step 3).
const maxRecursiveDepth = 2

// execAliases maps a runtime name to an alternate name the same search
// should also try, per §4.3's "for aliases, the same search runs against
// both names".
var execAliases = map[string]string{
	"node":    "nodejs",
	"nodejs":  "node",
	"go":      "golang",
	"golang":  "go",
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Store resolves executables and enumerates versions under a base
// directory, backed by an on-disk exec-path cache (§4.3). No lookup fills
// or reads binDirs; InvalidateRuntime only clears it.
type Store struct {
	base string

	mu        sync.Mutex
	cache     execPathCache
	cacheLoad bool
	binDirs   map[string]string // keyed by "runtime/version"; never filled, only cleared
}

// New returns a Store rooted at base.
func New(base string) *Store {
	return &Store{base: base, binDirs: make(map[string]string)}
}

// cacheEntry is one exec-path cache record: the resolved path plus the
// mtime observed at resolution time, discarded on mismatch.
type cacheEntry struct {
	Path  string `json:"path"`
	MTime int64  `json:"mtime"`
}

// execPathCache is keyed by "<version_root>|<version>|<exe>", where
// version_root is <base>/store/<runtime>/<version>.
type execPathCache map[string]cacheEntry

func (s *Store) loadCache() execPathCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cacheLoad {
		return s.cache
	}
	s.cacheLoad = true
	s.cache = make(execPathCache)

	data, err := os.ReadFile(vxpath.ExecPathCacheFile(s.base))
	if err != nil {
		return s.cache
	}
	_ = json.Unmarshal(data, &s.cache)
	return s.cache
}

func (s *Store) saveCache() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.cache, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	path := vxpath.ExecPathCacheFile(s.base)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// InvalidateRuntime clears every cache entry (exec-path and bin-dir) whose
// key lies under runtime's store subtree, per invariant I4 and §4.3's
// "eager invalidation" rule.
func (s *Store) InvalidateRuntime(runtimeName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		return
	}
	prefix, _ := vxpath.RuntimeStoreDir(s.base, runtimeName)
	for key, entry := range s.cache {
		if strings.HasPrefix(entry.Path, prefix) || strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
		}
	}
	for key := range s.binDirs {
		if strings.HasPrefix(key, runtimeName+"/") {
			delete(s.binDirs, key)
		}
	}
}

// ListStoreVersions enumerates direct children of <base>/store/<runtime>,
// filters to valid semver-ish directory names, and returns them in
// strictly increasing semantic order.
func (s *Store) ListStoreVersions(runtimeName string) ([]string, error) {
	dir, err := vxpath.RuntimeStoreDir(s.base, runtimeName)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vxerr.Wrap(vxerr.KindFilesystemError, "failed to read store directory for "+runtimeName, err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		versions = append(versions, e.Name())
	}
	sort.Slice(versions, func(i, j int) bool {
		return version.CompareVersions(versions[i], versions[j]) < 0
	})
	return versions, nil
}

// IsVersionInStore reports whether <base>/store/<runtime>/<version> exists.
func (s *Store) IsVersionInStore(runtimeName, ver string) bool {
	root, err := vxpath.VersionRoot(s.base, runtimeName, ver)
	if err != nil {
		return false
	}
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}

// FindExecutable resolves the path to exe within (runtime, version),
// following the probe order in §4.3: bin/, nested <runtime>-* archive
// directories, bounded recursive search, aux bin dirs, and finally (for
// system versions) the ambient PATH.
func (s *Store) FindExecutable(runtimeName, ver, exe string) (string, error) {
	if ver == "system" {
		return s.findOnSystemPath(exe)
	}

	root, err := vxpath.VersionRoot(s.base, runtimeName, ver)
	if err != nil {
		return "", err
	}

	names := []string{exeName(exe)}
	if alt, ok := execAliases[exe]; ok {
		names = append(names, exeName(alt))
	}

	for _, name := range names {
		if p, ok := s.lookupCache(root, ver, name); ok {
			return p, nil
		}
	}

	for _, name := range names {
		if p, ok := s.searchFilesystem(root, runtimeName, name); ok {
			s.storeCache(root, ver, name, p)
			return p, nil
		}
	}

	return "", vxerr.New(vxerr.KindInstallFailed,
		"no executable found for "+runtimeName+"@"+ver+" in "+root).
		WithDetail("the version directory exists but no discoverable executable was found; this is a corrupt install, reinstall with force")
}

func (s *Store) lookupCache(root, ver, name string) (string, bool) {
	cache := s.loadCache()
	key := root + "|" + ver + "|" + name
	s.mu.Lock()
	entry, ok := cache[key]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	info, err := os.Stat(entry.Path)
	if err != nil || info.ModTime().Unix() != entry.MTime {
		return "", false
	}
	return entry.Path, true
}

func (s *Store) storeCache(root, ver, name, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	s.loadCache()
	s.mu.Lock()
	key := root + "|" + ver + "|" + name
	s.cache[key] = cacheEntry{Path: path, MTime: info.ModTime().Unix()}
	s.mu.Unlock()
	_ = s.saveCache()
}

// searchFilesystem implements §4.3 steps 1-4 for a single exe name.
func (s *Store) searchFilesystem(root, runtimeName, name string) (string, bool) {
	// Step 1: <version_root>/bin/<exe>
	if p := filepath.Join(root, "bin", name); fileExists(p) {
		return p, true
	}

	// Step 2: nested <runtime>-* archive layouts
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), runtimeName+"-") {
				continue
			}
			child := filepath.Join(root, e.Name())
			if p := filepath.Join(child, "bin", name); fileExists(p) {
				return p, true
			}
			if p := filepath.Join(child, name); fileExists(p) {
				return p, true
			}
		}
	}

	// Step 3: bounded recursive search for a bin/ directory containing name.
	if p, ok := recursiveBinSearch(root, name, maxRecursiveDepth); ok {
		return p, true
	}

	// Step 4: npm-tools / pip-tools auxiliary bin directories.
	for _, label := range []string{"npm-tools", "pip-tools"} {
		aux := filepath.Join(root, label)
		if p := filepath.Join(aux, name); fileExists(p) {
			return p, true
		}
	}

	return "", false
}

func recursiveBinSearch(dir, name string, depth int) (string, bool) {
	if depth < 0 {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		child := filepath.Join(dir, e.Name())
		if e.Name() == "bin" {
			if p := filepath.Join(child, name); fileExists(p) {
				return p, true
			}
		}
		if p, ok := recursiveBinSearch(child, name, depth-1); ok {
			return p, true
		}
	}
	return "", false
}

func (s *Store) findOnSystemPath(exe string) (string, error) {
	pathEnv := os.Getenv("PATH")
	name := exeName(exe)
	for _, dir := range strings.Split(pathEnv, string(os.PathListSeparator)) {
		if dir == "" || strings.HasPrefix(dir, s.base) {
			continue
		}
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", vxerr.New(vxerr.KindRuntimeNotFound, exe+" was not found on the ambient PATH")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Corruption describes one version directory that exists under the store
// but fails a basic sanity check, surfaced by `vx doctor` per SPEC_FULL.md
// §5's doctor-style diagnostics.
type Corruption struct {
	Runtime string
	Version string
	Reason  string
}

// CheckIntegrity walks every runtime/version directory under the store and
// reports any that are empty or have no executable named after the runtime
// in a bin/ directory reachable by find_executable's bounded recursive
// search (the nested-layout and auxiliary-dir probes are not repeated
// here), in the spirit of the teacher's doctor.go health checks.
func (s *Store) CheckIntegrity() ([]Corruption, error) {
	root := vxpath.StoreDir(s.base)
	runtimeDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vxerr.Wrap(vxerr.KindFilesystemError, "failed to read store directory", err)
	}

	var out []Corruption
	for _, rd := range runtimeDirs {
		if !rd.IsDir() {
			continue
		}
		runtimeName := rd.Name()
		versions, err := s.ListStoreVersions(runtimeName)
		if err != nil {
			out = append(out, Corruption{Runtime: runtimeName, Reason: "failed to list versions: " + err.Error()})
			continue
		}
		for _, ver := range versions {
			versionRoot, err := vxpath.VersionRoot(s.base, runtimeName, ver)
			if err != nil {
				out = append(out, Corruption{Runtime: runtimeName, Version: ver, Reason: err.Error()})
				continue
			}
			entries, err := os.ReadDir(versionRoot)
			if err != nil || len(entries) == 0 {
				out = append(out, Corruption{Runtime: runtimeName, Version: ver, Reason: "version directory is empty or unreadable"})
				continue
			}
			if _, found := recursiveBinSearch(versionRoot, runtimeName, maxRecursiveDepth); !found {
				out = append(out, Corruption{Runtime: runtimeName, Version: ver, Reason: "no executable named " + runtimeName + " found under the version directory"})
			}
		}
	}
	return out, nil
}
