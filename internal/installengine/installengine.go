// Package installengine drives the single-install pipeline (C7) and its
// bounded-parallel orchestration across a tool list, per spec.md §4.6.
// The single pipeline is grounded on the teacher's install/manager.go
// (directory-then-symlink sequencing, atomic rename discipline); bounded
// concurrency is grounded on the mutex/WaitGroup "in-flight work" idiom in
// internal/version/assets.go's GetOrFetch pattern, generalized from a
// dedup-in-flight cache to a fixed-size worker pool via a buffered
// channel semaphore, since the teacher never imports an errgroup
// dependency for this.
package installengine

import (
	"context"
	"sync"

	"github.com/vx-dev/vx/internal/lockfile"
	"github.com/vx-dev/vx/internal/runtimeset"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxerr"
)

// DefaultMaxConcurrent is the default bound on simultaneous installs,
// per spec.md §4.6's "default 8".
const DefaultMaxConcurrent = 8

// ProgressReporter receives start/terminal events for each tool installed,
// per §4.6's "one start event and exactly one terminal event per tool"
// guarantee.
type ProgressReporter interface {
	Start(runtimeName string)
	Done(runtimeName, version string, err error)
}

// NoopReporter discards all events; the default when none is supplied.
type NoopReporter struct{}

func (NoopReporter) Start(string)             {}
func (NoopReporter) Done(string, string, error) {}

// Engine owns the registry and store an install pipeline runs against.
type Engine struct {
	Registry      *runtimeset.Registry
	Store         *store.Store
	Base          string
	MaxConcurrent int

	lockMu sync.Mutex // serializes LockFile reads/writes across concurrent installs
}

// New builds an Engine with the default concurrency bound.
func New(registry *runtimeset.Registry, base string) *Engine {
	return &Engine{
		Registry:      registry,
		Store:         store.New(base),
		Base:          base,
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

// Result is one tool's outcome from the single-install pipeline.
type Result struct {
	Runtime  string
	Version  string
	Outcome  runtimeset.InstallOutcome
	Warnings []vxerr.Warning
}

// InstallOne runs the single-install pipeline for one (runtimeName,
// request), per §4.6 steps 1-10. lf may be nil (no project lock file).
func (e *Engine) InstallOne(ctx context.Context, runtimeName, request string, force bool, lf *lockfile.LockFile) (*Result, error) {
	rt, ok := e.Registry.Lookup(runtimeName)
	if !ok {
		return nil, vxerr.RuntimeNotFound(runtimeName, e.Registry.Suggest(runtimeName))
	}

	// Step 2: bundled_with tail-call. Depth 1 only, per spec.md's invariant
	// that bundled_with relations never cycle beyond one hop.
	if bundled := rt.BundledWith(); bundled != "" && bundled != rt.Name() {
		return e.InstallOne(ctx, bundled, request, force, lf)
	}

	rctx := &runtimeset.Context{Ctx: ctx, Base: e.Base, DownloadURLCache: make(map[string]string)}

	// Step 3: consult the lock file for a cached download URL.
	if lf != nil {
		e.lockMu.Lock()
		if entry, found := lf.GetTool(rt.Name()); found && entry.DownloadURL != "" {
			rctx.DownloadURLCache[rt.Name()] = entry.DownloadURL
		}
		e.lockMu.Unlock()
	}

	// Step 4: resolve the version.
	version, err := rt.ResolveVersion(request, rctx)
	if err != nil {
		return nil, err
	}

	// Step 5: already-installed short-circuit.
	if !force && rt.IsInstalled(version, rctx) {
		return &Result{Runtime: rt.Name(), Version: version, Outcome: runtimeset.AlreadyInstalled}, nil
	}

	// Step 6: pre_install.
	if err := rt.PreInstall(version, rctx); err != nil {
		return nil, vxerr.Wrap(vxerr.KindHookFailed, "pre_install failed for "+rt.Name()+"@"+version, err)
	}

	// Step 7: install (the Runtime implementation is responsible for the
	// temp-dir-then-rename discipline internally).
	installResult, err := rt.Install(version, rctx)
	if err != nil {
		return nil, vxerr.Wrap(vxerr.KindInstallFailed, "install failed for "+rt.Name()+"@"+version, err)
	}

	// Step 8: post_install, non-fatal.
	var warnings []vxerr.Warning
	if err := rt.PostInstall(version, rctx); err != nil {
		warnings = append(warnings, vxerr.Warning{Runtime: rt.Name(), Message: "post_install failed: " + err.Error()})
	}

	// Step 9: invalidate the store's bin-dir/exec-path caches for this runtime.
	e.Store.InvalidateRuntime(rt.StoreName())

	// Step 10: update the lock file, if one exists. rctx.DownloadURLCache was
	// populated by Install with the resolved release-asset URL, so later
	// installs of the same locked version can skip re-resolving it.
	if lf != nil {
		e.lockMu.Lock()
		lf.LockTool(rt.Name(), lockfile.Entry{
			Version:         version,
			ResolvedFrom:    request,
			Ecosystem:       rt.Ecosystem().String(),
			OriginalRange:   request,
			IsLatestInRange: true,
			DownloadURL:     rctx.DownloadURLCache[rt.Name()],
		})
		e.lockMu.Unlock()
	}

	warnings = append(warnings, runtimeset.Warnings(rt.Name(), version, rt.RangeConfig())...)

	return &Result{
		Runtime:  rt.Name(),
		Version:  version,
		Outcome:  installResult.Outcome,
		Warnings: warnings,
	}, nil
}

// ToolSpec is one entry of a parallel install request.
type ToolSpec struct {
	Name    string
	Request string
}

// SuccessEntry records one successfully installed tool.
type SuccessEntry struct {
	Name    string
	Version string
}

// FailEntry records one tool whose install failed.
type FailEntry struct {
	Name string
	Err  error
}

// AggregateResult is the combined outcome of a parallel install run, per
// §4.6's "{successful, failed}" aggregate.
type AggregateResult struct {
	Successful []SuccessEntry
	Failed     []FailEntry
}

// OK reports whether every tool installed successfully; the orchestrator
// exits nonzero iff this is false.
func (a *AggregateResult) OK() bool {
	return len(a.Failed) == 0
}

// InstallAll runs the single-install pipeline for every spec, bounded by
// e.MaxConcurrent concurrent tasks (falling back to DefaultMaxConcurrent
// when unset). Partial failures do not cancel other in-flight installs;
// reporter receives one Start and exactly one Done per tool.
func (e *Engine) InstallAll(ctx context.Context, specs []ToolSpec, force bool, lf *lockfile.LockFile, reporter ProgressReporter) *AggregateResult {
	if reporter == nil {
		reporter = NoopReporter{}
	}
	maxConcurrent := e.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	agg := &AggregateResult{}

	for _, spec := range specs {
		wg.Add(1)
		sem <- struct{}{}
		go func(spec ToolSpec) {
			defer wg.Done()
			defer func() { <-sem }()

			reporter.Start(spec.Name)
			result, err := e.InstallOne(ctx, spec.Name, spec.Request, force, lf)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				agg.Failed = append(agg.Failed, FailEntry{Name: spec.Name, Err: err})
				reporter.Done(spec.Name, "", err)
				return
			}
			agg.Successful = append(agg.Successful, SuccessEntry{Name: spec.Name, Version: result.Version})
			reporter.Done(spec.Name, result.Version, nil)
		}(spec)
	}
	wg.Wait()

	return agg
}

// FetchVersionsAll resolves fetch_versions for a set of runtime names
// concurrently (bounded the same way as InstallAll), per §4.6's
// "fetch-version concurrency is analogous" note.
func (e *Engine) FetchVersionsAll(ctx context.Context, runtimeNames []string) map[string][]string {
	maxConcurrent := e.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[string][]string)

	for _, name := range runtimeNames {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			rt, ok := e.Registry.Lookup(name)
			if !ok {
				return
			}
			versions, err := rt.FetchVersions(&runtimeset.Context{Ctx: ctx, Base: e.Base})
			if err != nil {
				return
			}
			mu.Lock()
			out[rt.Name()] = versions
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return out
}
