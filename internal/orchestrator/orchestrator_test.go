package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vx-dev/vx/internal/installengine"
	"github.com/vx-dev/vx/internal/lockfile"
	"github.com/vx-dev/vx/internal/runtimeset"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxconfig"
)

type fakeRuntime struct {
	name      string
	ecosystem runtimeset.Ecosystem
}

func (f *fakeRuntime) Name() string                   { return f.name }
func (f *fakeRuntime) Ecosystem() runtimeset.Ecosystem { return f.ecosystem }
func (f *fakeRuntime) Aliases() []string               { return nil }
func (f *fakeRuntime) Description() string             { return "" }
func (f *fakeRuntime) StoreName() string               { return f.name }
func (f *fakeRuntime) BundledWith() string              { return "" }
func (f *fakeRuntime) PlatformSupported(string) bool     { return true }
func (f *fakeRuntime) FetchVersions(*runtimeset.Context) ([]string, error) {
	return []string{"1.0.0"}, nil
}
func (f *fakeRuntime) ResolveVersion(request string, ctx *runtimeset.Context) (string, error) {
	return "1.0.0", nil
}
func (f *fakeRuntime) IsInstalled(string, *runtimeset.Context) bool { return false }
func (f *fakeRuntime) Install(ver string, ctx *runtimeset.Context) (*runtimeset.InstallResult, error) {
	return &runtimeset.InstallResult{Version: ver, Outcome: runtimeset.Installed}, nil
}
func (f *fakeRuntime) ExecutableRelativePath(_, _ string) string { return "bin/" + f.name }
func (f *fakeRuntime) PreInstall(string, *runtimeset.Context) error  { return nil }
func (f *fakeRuntime) PostInstall(string, *runtimeset.Context) error { return nil }
func (f *fakeRuntime) RangeConfig() *runtimeset.VersionRangeConfig   { return nil }

func setupProject(t *testing.T, tools map[string]string, order []string) (*vxconfig.Project, string) {
	t.Helper()
	base := t.TempDir()
	return &vxconfig.Project{
		Tools:       tools,
		ToolOrder:   order,
		ProjectRoot: base,
		ProjectName: "demo",
	}, base
}

func TestSync_DiffReportsMissing(t *testing.T) {
	project, base := setupProject(t, map[string]string{"widget": "1.0.0"}, []string{"widget"})
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)

	result, err := Sync(context.Background(), project, nil, Options{
		Registry: reg, Store: st, Base: base, CheckMode: true,
	})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if len(result.Diff) != 1 || result.Diff[0].Status != NotInstalled {
		t.Errorf("Diff = %+v, want one NotInstalled entry", result.Diff)
	}
	if result.OK() {
		t.Error("expected OK() false when a tool is missing in check mode")
	}
}

func TestSync_DryRunDoesNotInstall(t *testing.T) {
	project, base := setupProject(t, map[string]string{"widget": "1.0.0"}, []string{"widget"})
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)

	result, err := Sync(context.Background(), project, nil, Options{
		Registry: reg, Store: st, Base: base, DryRun: true,
	})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.Install != nil {
		t.Error("expected no install to run in dry-run mode")
	}
}

func TestSync_InstallsMissingTools(t *testing.T) {
	project, base := setupProject(t, map[string]string{"widget": "1.0.0"}, []string{"widget"})
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)

	result, err := Sync(context.Background(), project, nil, Options{Registry: reg, Store: st, Base: base})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.Install == nil || !result.Install.OK() {
		t.Fatalf("expected successful install, got %+v", result.Install)
	}
	if len(result.Install.Successful) != 1 {
		t.Errorf("Successful = %+v, want one entry", result.Install.Successful)
	}
}

func TestSync_UnknownRuntimeErrors(t *testing.T) {
	project, base := setupProject(t, map[string]string{"ghost": "1.0.0"}, []string{"ghost"})
	reg := runtimeset.NewRegistry()
	st := store.New(base)

	_, err := Sync(context.Background(), project, nil, Options{Registry: reg, Store: st, Base: base, CheckMode: true})
	if err == nil {
		t.Fatal("expected error for an undeclared/unregistered runtime")
	}
}

func TestSync_InconsistentLockFailsWithoutAutoLock(t *testing.T) {
	project, base := setupProject(t, map[string]string{"widget": "1.0.0"}, []string{"widget"})
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)
	lf := lockfile.New() // empty: "widget" has no lock entry -> MissingFromLock

	_, err := Sync(context.Background(), project, lf, Options{Registry: reg, Store: st, Base: base, CheckMode: true})
	if err == nil {
		t.Fatal("expected error when the lock file is inconsistent and --auto-lock is not set")
	}
}

func TestSync_InconsistentLockProceedsWithAutoLock(t *testing.T) {
	project, base := setupProject(t, map[string]string{"widget": "1.0.0"}, []string{"widget"})
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)
	lf := lockfile.New()

	result, err := Sync(context.Background(), project, lf, Options{
		Registry: reg, Store: st, Base: base, CheckMode: true, AutoLock: true,
	})
	if err != nil {
		t.Fatalf("expected --auto-lock to proceed despite inconsistency, got %v", err)
	}
	if len(result.Inconsistencies) != 1 {
		t.Errorf("Inconsistencies = %+v, want one entry", result.Inconsistencies)
	}
}

func TestSync_AnalyzerAddsDetectedTool(t *testing.T) {
	project, base := setupProject(t, map[string]string{}, []string{})
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "just"})
	st := store.New(base)

	analyzer := analyzerFunc(func(root string) []installengine.ToolSpec {
		return []installengine.ToolSpec{{Name: "just", Request: "latest"}}
	})

	result, err := Sync(context.Background(), project, nil, Options{
		Registry: reg, Store: st, Base: base, CheckMode: true, Analyzer: analyzer,
	})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if len(result.Diff) != 1 || result.Diff[0].Runtime != "just" {
		t.Errorf("Diff = %+v, want analyzer-detected just", result.Diff)
	}
}

type analyzerFunc func(root string) []installengine.ToolSpec

func (f analyzerFunc) Detect(root string) []installengine.ToolSpec { return f(root) }

func TestSync_PreSetupFailureAbortsBeforeInstall(t *testing.T) {
	project, base := setupProject(t, map[string]string{"widget": "1.0.0"}, []string{"widget"})
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)

	hooks := &recordingHooks{preErr: os.ErrInvalid}
	_, err := Sync(context.Background(), project, nil, Options{Registry: reg, Store: st, Base: base, Hooks: hooks})
	if err == nil {
		t.Fatal("expected pre_setup failure to abort the sync")
	}
	if hooks.postCalled {
		t.Error("expected post_setup to not run when pre_setup fails")
	}
}

type recordingHooks struct {
	preErr     error
	postCalled bool
}

func (h *recordingHooks) PreSetup() error { return h.preErr }
func (h *recordingHooks) PostSetup(*Result) error {
	h.postCalled = true
	return nil
}

func TestQuickCheck_TrueWhenAllLockedAndInstalled(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "store", "widget", "1.0.0"), 0755); err != nil {
		t.Fatal(err)
	}
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)
	lf := lockfile.New()
	lf.LockTool("widget", lockfile.Entry{Version: "1.0.0"})

	project := &vxconfig.Project{ToolOrder: []string{"widget"}}
	if !QuickCheck(reg, st, lf, project) {
		t.Error("expected QuickCheck to report true when every tool is locked and installed")
	}
}

func TestQuickCheck_FalseWhenNoLockFile(t *testing.T) {
	base := t.TempDir()
	reg := runtimeset.NewRegistry(&fakeRuntime{name: "widget"})
	st := store.New(base)
	project := &vxconfig.Project{ToolOrder: []string{"widget"}}

	if QuickCheck(reg, st, nil, project) {
		t.Error("expected QuickCheck to report false with no lock file present")
	}
}
