// Package vxconfig loads vx's two configuration layers: the per-project
// vx.toml declaring tools/settings/scripts, and the user-level
// ~/.vx/config.toml holding cross-project settings. Both are grounded on
// the teacher's config.Config/userconfig.Config pair: directory bootstrap
// and env-var overrides come from config.go, TOML load/save semantics
// (permission warnings, atomic writes) come from userconfig.go.
package vxconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vx-dev/vx/internal/vxerr"
	"github.com/vx-dev/vx/internal/vxlog"
	"github.com/vx-dev/vx/internal/vxpath"
)

// DefaultAutoInstall, DefaultIsolation, DefaultCacheDuration, and
// DefaultParallelInstall are the [settings] fallbacks used when vx.toml
// omits them, per §6's recognized-keys table.
const (
	DefaultAutoInstall     = true
	DefaultIsolation       = true
	DefaultCacheDuration   = 7 * 24 * time.Hour
	DefaultParallelInstall = true
)

// Script is one [scripts] entry: either a bare command string or a
// {command, args} table.
type Script struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// UnmarshalTOML lets a [scripts] value be either a plain string or a table,
// matching §6's "command string or {command, args[]}" grammar.
func (s *Script) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		s.Command = v
		return nil
	case map[string]interface{}:
		if cmd, ok := v["command"].(string); ok {
			s.Command = cmd
		}
		if rawArgs, ok := v["args"].([]interface{}); ok {
			for _, a := range rawArgs {
				if str, ok := a.(string); ok {
					s.Args = append(s.Args, str)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("scripts entry must be a string or a table")
	}
}

// settingsRaw mirrors [settings]' recognized keys as pointers so omitted
// keys can be distinguished from explicit zero values before defaulting.
type settingsRaw struct {
	AutoInstall     *bool   `toml:"auto_install"`
	Isolation       *bool   `toml:"isolation"`
	CacheDuration   *string `toml:"cache_duration"`
	ParallelInstall *bool   `toml:"parallel_install"`
}

// projectFile is the raw decode target for vx.toml.
type projectFile struct {
	Tools    map[string]string  `toml:"tools"`
	Settings settingsRaw        `toml:"settings"`
	Env      map[string]string  `toml:"env"`
	Scripts  map[string]*Script `toml:"scripts"`
	Passenv  []string           `toml:"passenv"`
	Setenv   map[string]string  `toml:"setenv"`
}

// Project is the resolved config view consumed by the sync orchestrator
// and env builder: an ordered map runtime -> version-request, settings
// with defaults applied, and the literal env/scripts/passenv/setenv data.
//
// ToolOrder preserves the [tools] declaration order from the source file
// (BurntSushi/toml does not expose map key order, so the project file is
// scanned for the order separately).
type Project struct {
	Tools           map[string]string
	ToolOrder       []string
	AutoInstall     bool
	Isolation       bool
	CacheDuration   time.Duration
	ParallelInstall bool
	Env             map[string]string
	Scripts         map[string]*Script
	Passenv         []string
	Setenv          map[string]string
	ProjectName     string
	ProjectRoot     string
}

// FindProjectConfig walks upward from startDir until it finds a vx.toml,
// per §6 step 1. Returns a vxerr.KindConfigNotFound error if none is found
// before reaching the filesystem root.
func FindProjectConfig(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", vxerr.Wrap(vxerr.KindConfigNotFound, "failed to resolve starting directory", err)
	}
	for {
		candidate := vxpath.ProjectConfigPath(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", vxerr.New(vxerr.KindConfigNotFound, "no vx.toml found walking up from "+startDir).
				WithSuggestions("run `vx init` to create one")
		}
		dir = parent
	}
}

// LoadProject reads and parses vx.toml at path. A vx.toml without a
// [tools] section is treated as a no-op with a Warning, not an error, per
// §9's resolution of that open question.
func LoadProject(path string) (*Project, []vxerr.Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, vxerr.Wrap(vxerr.KindConfigNotFound, "failed to read "+path, err)
	}

	var raw projectFile
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, nil, vxerr.Wrap(vxerr.KindConfigMalformed, "failed to parse "+path, err)
	}

	var warnings []vxerr.Warning
	for _, key := range meta.Undecoded() {
		warnings = append(warnings, vxerr.Warning{Message: fmt.Sprintf("unrecognized key %q in vx.toml, ignoring", key)})
	}

	p := &Project{
		Tools:       raw.Tools,
		ToolOrder:   toolOrder(data),
		Env:         raw.Env,
		Scripts:     raw.Scripts,
		Passenv:     raw.Passenv,
		Setenv:      raw.Setenv,
		ProjectRoot: filepath.Dir(path),
		ProjectName: filepath.Base(filepath.Dir(path)),
	}

	if len(p.Tools) == 0 {
		warnings = append(warnings, vxerr.Warning{Message: "vx.toml has no [tools] section"})
	}

	p.AutoInstall = DefaultAutoInstall
	if raw.Settings.AutoInstall != nil {
		p.AutoInstall = *raw.Settings.AutoInstall
	}
	p.Isolation = DefaultIsolation
	if raw.Settings.Isolation != nil {
		p.Isolation = *raw.Settings.Isolation
	}
	p.ParallelInstall = DefaultParallelInstall
	if raw.Settings.ParallelInstall != nil {
		p.ParallelInstall = *raw.Settings.ParallelInstall
	}
	p.CacheDuration = DefaultCacheDuration
	if raw.Settings.CacheDuration != nil {
		d, err := time.ParseDuration(*raw.Settings.CacheDuration)
		if err != nil {
			warnings = append(warnings, vxerr.Warning{Message: fmt.Sprintf("invalid cache_duration %q, using default", *raw.Settings.CacheDuration)})
		} else {
			p.CacheDuration = d
		}
	}

	return p, warnings, nil
}

// toolOrder re-scans the raw TOML text for the order in which [tools] keys
// were declared, since decoding [tools] into a Go map with BurntSushi/toml's
// Decode does not preserve key order.
func toolOrder(data []byte) []string {
	lines := splitLines(string(data))
	inTools := false
	var order []string
	for _, line := range lines {
		trimmed := trimSpace(line)
		if trimmed == "[tools]" {
			inTools = true
			continue
		}
		if len(trimmed) > 0 && trimmed[0] == '[' {
			inTools = false
			continue
		}
		if !inTools || trimmed == "" || trimmed[0] == '#' {
			continue
		}
		if idx := indexByte(trimmed, '='); idx > 0 {
			order = append(order, trimSpace(trimmed[:idx]))
		}
	}
	return order
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// User holds ~/.vx/config.toml user-level settings: cross-project
// defaults not tied to any one vx.toml.
type User struct {
	Telemetry       bool   `toml:"telemetry"`
	DefaultEnv      string `toml:"default_env"`
	ParallelInstall *bool  `toml:"parallel_install,omitempty"`
}

// DefaultUser returns a User with vx's defaults.
func DefaultUser() *User {
	return &User{Telemetry: true}
}

// LoadUser reads ~/.vx/config.toml, returning defaults if the file is
// absent, mirroring userconfig.Load's "missing file is not an error"
// semantics.
func LoadUser(base string) (*User, error) {
	path := vxpath.UserConfigPath(base)
	u := DefaultUser()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return u, nil
	}
	if err != nil {
		return nil, vxerr.Wrap(vxerr.KindFilesystemError, "failed to read "+path, err)
	}

	if info, err := os.Stat(path); err == nil {
		if mode := info.Mode().Perm(); mode&0077 != 0 {
			vxlog.Default().Warn("config file has permissive permissions",
				"path", path,
				"mode", fmt.Sprintf("%04o", mode),
				"expected", "0600",
			)
		}
	}

	if _, err := toml.Decode(string(data), u); err != nil {
		return nil, vxerr.Wrap(vxerr.KindConfigMalformed, "failed to parse "+path, err)
	}
	return u, nil
}

// Save writes u to <base>/config.toml using an atomic create-temp-then-
// rename sequence with 0600 permissions, matching userconfig.saveToPath.
func (u *User) Save(base string) error {
	path := vxpath.UserConfigPath(base)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create config directory", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.toml.tmp-*")
	if err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create temp file", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to set temp file permissions", err)
	}

	encoder := toml.NewEncoder(tmpFile)
	if err := encoder.Encode(u); err != nil {
		tmpFile.Close()
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to write config file", err)
	}
	if err := tmpFile.Close(); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to rename temp file", err)
	}
	return nil
}

// EnsureDirectories creates the base directory tree (store, envs, shims,
// cache, config) if it does not already exist, mirroring
// config.Config.EnsureDirectories.
func EnsureDirectories(base string) error {
	dirs := []string{
		vxpath.StoreDir(base),
		vxpath.EnvsDir(base),
		vxpath.ShimsDir(base),
		vxpath.CacheDir(base),
		vxpath.ConfigDir(base),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create "+d, err)
		}
	}
	return nil
}
