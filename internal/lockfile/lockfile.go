// Package lockfile implements vx.lock: the project-local record pinning
// each declared runtime to an exact installed version, the download URL
// used to fetch it, and whether that version is still the newest one
// satisfying its original range. Load/save follow the same atomic
// write-temp-then-rename discipline as the teacher's userconfig package;
// version comparison for range satisfaction reuses the version package's
// CompareVersions.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vx-dev/vx/internal/version"
	"github.com/vx-dev/vx/internal/vxerr"
)

// FormatVersion is the vx.lock header value for this entry schema.
const FormatVersion = 1

// Entry is one runtime's locked state, per §3's lock file entry fields.
type Entry struct {
	Version        string `toml:"version"`
	ResolvedFrom   string `toml:"resolved_from"`
	DownloadURL    string `toml:"download_url,omitempty"`
	Ecosystem      string `toml:"ecosystem,omitempty"`
	OriginalRange  string `toml:"original_range"`
	IsLatestInRange bool  `toml:"is_latest_in_range"`
}

// LockFile is the in-memory, parsed vx.lock.
type LockFile struct {
	Version int              `toml:"version"`
	Tools   map[string]Entry `toml:"tools"`
}

// New returns an empty LockFile at the current FormatVersion.
func New() *LockFile {
	return &LockFile{Version: FormatVersion, Tools: make(map[string]Entry)}
}

// Load reads and parses path. A missing file is reported to the caller as
// os.IsNotExist(err); callers that treat "no lock file yet" as a distinct,
// non-fatal case should check for that before wrapping.
func Load(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lf := New()
	if _, err := toml.Decode(string(data), lf); err != nil {
		return nil, vxerr.Wrap(vxerr.KindLockMalformed, "failed to parse "+path, err)
	}
	if lf.Tools == nil {
		lf.Tools = make(map[string]Entry)
	}
	return lf, nil
}

// Save writes lf to path atomically: write-temp, then rename. Entries are
// encoded in sorted runtime-name order so repeated saves with unchanged
// content are byte-identical (§8's "lock regeneration is stable" property).
func Save(path string, lf *LockFile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create lock file directory", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".vx.lock.tmp-*")
	if err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create temp file", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tmpFile.Chmod(0644); err != nil {
		tmpFile.Close()
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to set temp file permissions", err)
	}

	if err := encodeCanonical(tmpFile, lf); err != nil {
		tmpFile.Close()
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to write lock file", err)
	}
	if err := tmpFile.Close(); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to rename temp file", err)
	}
	return nil
}

// encodeCanonical writes the lock file header followed by one [tools.<name>]
// table per runtime, sorted by name, so output is deterministic regardless
// of map iteration order.
func encodeCanonical(w *os.File, lf *LockFile) error {
	if _, err := fmt.Fprintf(w, "version = %d\n", lf.Version); err != nil {
		return err
	}
	names := make([]string, 0, len(lf.Tools))
	for name := range lf.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := lf.Tools[name]
		if _, err := fmt.Fprintf(w, "\n[tools.%s]\n", name); err != nil {
			return err
		}
		enc := toml.NewEncoder(w)
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// GetTool returns the entry for name and whether it is present.
func (lf *LockFile) GetTool(name string) (Entry, bool) {
	e, ok := lf.Tools[name]
	return e, ok
}

// LockTool sets or replaces the entry for name.
func (lf *LockFile) LockTool(name string, entry Entry) {
	if lf.Tools == nil {
		lf.Tools = make(map[string]Entry)
	}
	lf.Tools[name] = entry
}

// InconsistencyKind classifies why a lock file and a config tool set
// disagree.
type InconsistencyKind int

const (
	// MissingFromLock means a runtime declared in config has no lock entry.
	MissingFromLock InconsistencyKind = iota
	// MissingFromConfig means a lock entry exists for a runtime no longer declared.
	MissingFromConfig
	// RangeViolation means the locked version no longer satisfies the config's range.
	RangeViolation
	// RangeDrift means a newer version now satisfies the original range (non-fatal hint).
	RangeDrift
)

// Inconsistency describes one disagreement found by CheckConsistency.
type Inconsistency struct {
	Runtime string
	Kind    InconsistencyKind
	Detail  string
}

// CheckConsistency compares lf against the config's declared tools, per
// §4.5: every runtime in config missing from lock, every runtime in lock
// missing from config, every runtime whose locked version no longer
// satisfies its config range, and every range whose latest satisfying
// version (from available) is newer than the locked one.
//
// available maps runtime -> all known versions in any order (the newest
// satisfying one is found by comparison, without sorting), used only to
// detect range drift; pass nil to skip drift detection.
func CheckConsistency(lf *LockFile, configTools map[string]string, available map[string][]string) []Inconsistency {
	var out []Inconsistency

	for name, request := range configTools {
		entry, ok := lf.Tools[name]
		if !ok {
			out = append(out, Inconsistency{Runtime: name, Kind: MissingFromLock,
				Detail: fmt.Sprintf("%q is declared in config but has no lock entry", name)})
			continue
		}
		if request != "system" && !Satisfies(entry.Version, request) {
			out = append(out, Inconsistency{Runtime: name, Kind: RangeViolation,
				Detail: fmt.Sprintf("locked version %s does not satisfy config range %q", entry.Version, request)})
			continue
		}
		if versions, ok := available[name]; ok && request != "system" {
			latest := latestSatisfying(versions, request)
			if latest != "" && latest != entry.Version {
				out = append(out, Inconsistency{Runtime: name, Kind: RangeDrift,
					Detail: fmt.Sprintf("locked version %s is no longer the newest satisfying %q (newest is %s)", entry.Version, request, latest)})
			}
		}
	}

	for name := range lf.Tools {
		if _, ok := configTools[name]; !ok {
			out = append(out, Inconsistency{Runtime: name, Kind: MissingFromConfig,
				Detail: fmt.Sprintf("%q has a lock entry but is not declared in config", name)})
		}
	}

	return out
}

// latestSatisfying returns the newest version in versions satisfying
// request, or "" if none match.
func latestSatisfying(versions []string, request string) string {
	best := ""
	for _, v := range versions {
		if !Satisfies(v, request) {
			continue
		}
		if best == "" || version.CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return best
}

// Satisfies reports whether v satisfies request, supporting the request
// grammars named in §1/§3: "latest" (always true; resolution picks the
// newest separately), an exact version, a bare major/minor prefix
// ("18", "3.11"), and a caret range ("^20.5").
func Satisfies(v, request string) bool {
	if request == "" || request == "latest" {
		return true
	}
	if request == "system" {
		return false
	}
	if strings.HasPrefix(request, "^") {
		floor := strings.TrimPrefix(request, "^")
		return sameMajor(v, floor) && version.CompareVersions(v, floor) >= 0
	}
	if v == request {
		return true
	}
	return strings.HasPrefix(v, request+".") || v == request
}

// sameMajor reports whether v and floor share the same leading
// dot-separated component (their major version).
func sameMajor(v, floor string) bool {
	vMajor := strings.SplitN(v, ".", 2)[0]
	fMajor := strings.SplitN(floor, ".", 2)[0]
	return vMajor == fMajor
}
