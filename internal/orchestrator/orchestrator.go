// Package orchestrator implements the top-level sync/setup state machine
// (C11): locating and parsing a project's vx.toml, reconciling it against
// vx.lock, computing the diff against the store, and handing the missing
// set to the install engine — spec.md §4.10. Grounded on the teacher's
// cmd/tsuku/install.go command flow (locate config, build a plan, report
// {successful, failed}), generalized from tsuku's single-recipe install
// command to vx's whole-project reconciliation pass.
package orchestrator

import (
	"context"

	"github.com/vx-dev/vx/internal/installengine"
	"github.com/vx-dev/vx/internal/lockfile"
	"github.com/vx-dev/vx/internal/runtimeset"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxconfig"
	"github.com/vx-dev/vx/internal/vxerr"
)

// Status classifies one declared tool's on-disk state, per §4.10 step 5.
type Status int

const (
	NotInstalled Status = iota
	Installed
	SystemFallback
)

func (s Status) String() string {
	switch s {
	case Installed:
		return "Installed"
	case SystemFallback:
		return "SystemFallback"
	default:
		return "NotInstalled"
	}
}

// DiffEntry is one declared tool's resolved version and store status.
type DiffEntry struct {
	Runtime string
	Version string
	Status  Status
}

// Analyzer detects additional tools a project implies beyond its declared
// [tools] (e.g. `just` from a Justfile present in the project root), per
// §4.10 step 4. Detected tools whose install method falls outside the
// engine's responsibility (language-package-manager installs, not runtime
// installs) are the Analyzer's own responsibility to exclude.
type Analyzer interface {
	Detect(projectRoot string) []installengine.ToolSpec
}

// Hooks are the optional pre_setup/post_setup commands run around a sync,
// per §4.10 step 9. Implementations execute the configured command and
// return its error; pre_setup failure aborts before any install runs,
// while Sync discards post_setup's error, so it does not change the outcome.
type Hooks interface {
	PreSetup() error
	PostSetup(result *Result) error
}

// NoopHooks runs no hooks.
type NoopHooks struct{}

func (NoopHooks) PreSetup() error                 { return nil }
func (NoopHooks) PostSetup(*Result) error { return nil }

// Options configures one orchestrator run.
type Options struct {
	Registry      *runtimeset.Registry
	Store         *store.Store
	Base          string
	Analyzer      Analyzer // optional; nil skips step 4
	Hooks         Hooks    // optional; defaults to NoopHooks
	Reporter      installengine.ProgressReporter
	Force         bool
	AutoLock      bool // regenerate the lock file when inconsistent, instead of failing
	CheckMode     bool // step 6: report and exit, no install
	DryRun        bool // step 7: report the would-install list, no install
	NoParallel    bool
}

// Result is the outcome of a full Sync pass.
type Result struct {
	Diff         []DiffEntry
	Inconsistencies []lockfile.Inconsistency
	Install      *installengine.AggregateResult // nil in check/dry-run mode
}

// OK reports whether the run requires no action and/or succeeded: true in
// check mode iff the diff is empty, otherwise iff Install.OK().
func (r *Result) OK() bool {
	if r.Install == nil {
		return len(missingOf(r.Diff)) == 0
	}
	return r.Install.OK()
}

func missingOf(diff []DiffEntry) []DiffEntry {
	var out []DiffEntry
	for _, d := range diff {
		if d.Status == NotInstalled {
			out = append(out, d)
		}
	}
	return out
}

// Sync runs the full state machine described in §4.10 steps 1-9 starting
// from an already-located and -parsed project (step 1/2 are the caller's
// responsibility via vxconfig.FindProjectConfig/LoadProject, so callers
// that already have a *vxconfig.Project — e.g. from a prior step in the
// same CLI invocation — don't re-parse).
func Sync(ctx context.Context, project *vxconfig.Project, lf *lockfile.LockFile, opts Options) (*Result, error) {
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NoopHooks{}
	}

	// Step 3: reconcile against the lock file. Consistency violations that
	// are genuine drift (MissingFromLock/MissingFromConfig/RangeViolation)
	// are surfaced; RangeDrift is informational only.
	var inconsistencies []lockfile.Inconsistency
	effective := make(map[string]string, len(project.Tools))
	for k, v := range project.Tools {
		effective[k] = v
	}
	if lf != nil {
		inconsistencies = lockfile.CheckConsistency(lf, project.Tools, nil)
		if hasFatalInconsistency(inconsistencies) && !opts.AutoLock {
			return &Result{Inconsistencies: inconsistencies}, vxerr.New(vxerr.KindLockMalformed,
				"vx.lock is inconsistent with vx.toml; rerun with --auto-lock to regenerate it")
		}
	}

	// Step 4: analyzer-detected tools, added only if not already declared.
	toolOrder := append([]string{}, project.ToolOrder...)
	if opts.Analyzer != nil {
		for _, spec := range opts.Analyzer.Detect(project.ProjectRoot) {
			if _, declared := effective[spec.Name]; declared {
				continue
			}
			effective[spec.Name] = spec.Request
			toolOrder = append(toolOrder, spec.Name)
		}
	}

	// Step 5: compute the diff.
	diff, err := computeDiff(opts.Registry, opts.Store, lf, toolOrder, effective, opts.Force)
	if err != nil {
		return nil, err
	}
	result := &Result{Diff: diff, Inconsistencies: inconsistencies}

	// Step 6/7: check and dry-run modes never install.
	if opts.CheckMode || opts.DryRun {
		return result, nil
	}

	if err := hooks.PreSetup(); err != nil {
		return result, vxerr.Wrap(vxerr.KindHookFailed, "pre_setup failed", err)
	}

	// Step 8: hand the missing set to the install engine.
	missing := missingOf(diff)
	if len(missing) == 0 {
		result.Install = &installengine.AggregateResult{}
		_ = hooks.PostSetup(result)
		return result, nil
	}

	engine := &installengine.Engine{
		Registry:      opts.Registry,
		Store:         opts.Store,
		Base:          opts.Base,
		MaxConcurrent: installengine.DefaultMaxConcurrent,
	}
	if opts.NoParallel {
		engine.MaxConcurrent = 1
	}

	specs := make([]installengine.ToolSpec, len(missing))
	for i, d := range missing {
		specs[i] = installengine.ToolSpec{Name: d.Runtime, Request: effective[d.Runtime]}
	}

	result.Install = engine.InstallAll(ctx, specs, opts.Force, lf, opts.Reporter)

	// Step 9: post_setup fires regardless of partial install failure; only
	// pre_setup failure is treated as fatal, per §4.10/§7's hook policy.
	_ = hooks.PostSetup(result)

	return result, nil
}

// hasFatalInconsistency reports whether any inconsistency is a genuine
// drift (not merely informational RangeDrift).
func hasFatalInconsistency(incs []lockfile.Inconsistency) bool {
	for _, inc := range incs {
		if inc.Kind != lockfile.RangeDrift {
			return true
		}
	}
	return false
}

// computeDiff resolves each declared tool to a concrete version (preferring
// the lock file's pinned version when present, falling back to a direct
// runtime resolution otherwise) and classifies its store status.
func computeDiff(registry *runtimeset.Registry, st *store.Store, lf *lockfile.LockFile, order []string, tools map[string]string, force bool) ([]DiffEntry, error) {
	var out []DiffEntry
	for _, name := range order {
		request := tools[name]
		rt, ok := registry.Lookup(name)
		if !ok {
			return nil, vxerr.RuntimeNotFound(name, registry.Suggest(name))
		}

		version := request
		locked := false
		if lf != nil {
			if entry, found := lf.GetTool(name); found {
				version = entry.Version
				locked = true
			}
		}
		unlockedRange := !locked && request != "system" && rt.Ecosystem() != runtimeset.EcosystemSystem &&
			!st.IsVersionInStore(rt.StoreName(), request)
		if version == "" || version == "latest" || unlockedRange {
			resolved, err := rt.ResolveVersion(request, &runtimeset.Context{Ctx: context.Background()})
			if err != nil {
				return nil, err
			}
			version = resolved
		}

		status := NotInstalled
		if !force {
			switch {
			case rt.Ecosystem() == runtimeset.EcosystemSystem:
				status = SystemFallback
			case st.IsVersionInStore(rt.StoreName(), version):
				status = Installed
			}
		}

		out = append(out, DiffEntry{Runtime: name, Version: version, Status: status})
	}
	return out, nil
}

// QuickCheck is the side-effect-free variant used by shell prompt
// integrations, per §4.10: true iff every declared tool is Installed or
// SystemFallback according to the lock file alone — it never calls
// ResolveVersion (no network, no process spawn), so a tool pinned to
// "latest" with no lock entry yet is conservatively reported as not ready.
func QuickCheck(registry *runtimeset.Registry, st *store.Store, lf *lockfile.LockFile, project *vxconfig.Project) bool {
	for _, name := range project.ToolOrder {
		rt, ok := registry.Lookup(name)
		if !ok {
			return false
		}
		if rt.Ecosystem() == runtimeset.EcosystemSystem {
			continue
		}
		if lf == nil {
			return false
		}
		entry, found := lf.GetTool(name)
		if !found {
			return false
		}
		if !st.IsVersionInStore(rt.StoreName(), entry.Version) {
			return false
		}
	}
	return true
}
