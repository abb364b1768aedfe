package vxconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	projectRoot := filepath.Join(tmpDir, "project")
	nested := filepath.Join(projectRoot, "src", "nested")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}
	configPath := filepath.Join(projectRoot, "vx.toml")
	if err := os.WriteFile(configPath, []byte("[tools]\nnode = \"20\"\n"), 0644); err != nil {
		t.Fatalf("failed to write vx.toml: %v", err)
	}

	found, err := FindProjectConfig(nested)
	if err != nil {
		t.Fatalf("FindProjectConfig() failed: %v", err)
	}
	if found != configPath {
		t.Errorf("FindProjectConfig() = %q, want %q", found, configPath)
	}
}

func TestFindProjectConfig_NotFound(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := FindProjectConfig(tmpDir); err == nil {
		t.Error("expected error when no vx.toml exists above startDir")
	}
}

func TestLoadProject_ToolsAndOrder(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "vx.toml")
	content := `
[tools]
node = "20"
uv = "latest"
go = "system"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write vx.toml: %v", err)
	}

	p, warnings, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got: %v", warnings)
	}
	wantOrder := []string{"node", "uv", "go"}
	if len(p.ToolOrder) != len(wantOrder) {
		t.Fatalf("ToolOrder = %v, want %v", p.ToolOrder, wantOrder)
	}
	for i, name := range wantOrder {
		if p.ToolOrder[i] != name {
			t.Errorf("ToolOrder[%d] = %q, want %q", i, p.ToolOrder[i], name)
		}
	}
	if p.Tools["node"] != "20" || p.Tools["uv"] != "latest" || p.Tools["go"] != "system" {
		t.Errorf("Tools = %v, unexpected contents", p.Tools)
	}
}

func TestLoadProject_NoToolsIsWarningNotError(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "vx.toml")
	if err := os.WriteFile(path, []byte("[settings]\nisolation = false\n"), 0644); err != nil {
		t.Fatalf("failed to write vx.toml: %v", err)
	}

	p, warnings, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() should not error on missing [tools]: %v", err)
	}
	found := false
	for _, w := range warnings {
		if w.Message == "vx.toml has no [tools] section" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a no-[tools] warning, got: %v", warnings)
	}
	if p.Isolation != false {
		t.Errorf("Isolation = %v, want false", p.Isolation)
	}
}

func TestLoadProject_SettingsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "vx.toml")
	if err := os.WriteFile(path, []byte("[tools]\nnode = \"20\"\n"), 0644); err != nil {
		t.Fatalf("failed to write vx.toml: %v", err)
	}

	p, _, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() failed: %v", err)
	}
	if p.AutoInstall != DefaultAutoInstall {
		t.Errorf("AutoInstall = %v, want default %v", p.AutoInstall, DefaultAutoInstall)
	}
	if p.Isolation != DefaultIsolation {
		t.Errorf("Isolation = %v, want default %v", p.Isolation, DefaultIsolation)
	}
	if p.CacheDuration != DefaultCacheDuration {
		t.Errorf("CacheDuration = %v, want default %v", p.CacheDuration, DefaultCacheDuration)
	}
}

func TestLoadProject_CacheDurationParsed(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "vx.toml")
	content := "[tools]\nnode = \"20\"\n\n[settings]\ncache_duration = \"24h\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write vx.toml: %v", err)
	}

	p, _, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() failed: %v", err)
	}
	if p.CacheDuration != 24*time.Hour {
		t.Errorf("CacheDuration = %v, want 24h", p.CacheDuration)
	}
}

func TestLoadProject_PassenvAndSetenv(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "vx.toml")
	content := `
passenv = ["CI", "GITHUB_*"]

[tools]
node = "20"

[setenv]
NODE_ENV = "development"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write vx.toml: %v", err)
	}

	p, _, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() failed: %v", err)
	}
	if len(p.Passenv) != 2 || p.Passenv[0] != "CI" || p.Passenv[1] != "GITHUB_*" {
		t.Errorf("Passenv = %v, want [CI GITHUB_*]", p.Passenv)
	}
	if p.Setenv["NODE_ENV"] != "development" {
		t.Errorf("Setenv[NODE_ENV] = %q, want development", p.Setenv["NODE_ENV"])
	}
}

func TestLoadProject_MalformedTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "vx.toml")
	if err := os.WriteFile(path, []byte("not valid [ toml"), 0644); err != nil {
		t.Fatalf("failed to write vx.toml: %v", err)
	}

	if _, _, err := LoadProject(path); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

func TestDefaultUser(t *testing.T) {
	u := DefaultUser()
	if !u.Telemetry {
		t.Error("expected Telemetry to default to true")
	}
}

func TestLoadUser_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	u, err := LoadUser(tmpDir)
	if err != nil {
		t.Fatalf("LoadUser() failed: %v", err)
	}
	if !u.Telemetry {
		t.Error("expected default Telemetry=true when file missing")
	}
}

func TestLoadUser_SaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	u := DefaultUser()
	u.Telemetry = false
	u.DefaultEnv = "default"

	if err := u.Save(tmpDir); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := LoadUser(tmpDir)
	if err != nil {
		t.Fatalf("LoadUser() failed: %v", err)
	}
	if loaded.Telemetry != false {
		t.Errorf("Telemetry = %v, want false", loaded.Telemetry)
	}
	if loaded.DefaultEnv != "default" {
		t.Errorf("DefaultEnv = %q, want default", loaded.DefaultEnv)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config.toml mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDirectories(tmpDir); err != nil {
		t.Fatalf("EnsureDirectories() failed: %v", err)
	}

	for _, sub := range []string{"store", "envs", "shims", "cache", "config"} {
		info, err := os.Stat(filepath.Join(tmpDir, sub))
		if err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("expected %s to be a directory", sub)
		}
	}
}
