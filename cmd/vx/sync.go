package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/lockfile"
	"github.com/vx-dev/vx/internal/orchestrator"
	"github.com/vx-dev/vx/internal/store"
)

var (
	syncCheck      bool
	syncDryRun     bool
	syncAutoLock   bool
	syncNoParallel bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the project's declared tools against the store",
	Long: `Sync locates vx.toml, reconciles it against vx.lock, computes the
diff against the store, and installs whatever is missing.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result := runSync(syncCheck, syncDryRun, syncAutoLock, syncNoParallel, nil)
		reportSyncResult(result)
		if syncCheck {
			if result.OK() {
				exitWithCode(ExitSuccess)
			}
			exitWithCode(ExitGeneral)
		}
		if !result.OK() {
			exitWithCode(ExitInstallFailed)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncCheck, "check", false, "Report the diff and exit without installing")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Report the would-install list and exit without installing")
	syncCmd.Flags().BoolVar(&syncAutoLock, "auto-lock", false, "Regenerate vx.lock instead of failing on inconsistency")
	syncCmd.Flags().BoolVar(&syncNoParallel, "no-parallel", false, "Install tools one at a time")
}

// runSync is shared by `sync` and `setup`: locate/load the project and its
// lock file, run the orchestrator, and write back the lock file afterward.
//
// A project with no vx.lock yet is treated as implicitly consistent (there
// is nothing to drift from): Sync is called with a nil lock file so step 3
// skips consistency checking entirely, matching a first `vx sync` on a
// fresh checkout just installing and creating the lock, rather than
// failing until the caller remembers --auto-lock.
func runSync(checkMode, dryRun, autoLock, noParallel bool, hooks orchestrator.Hooks) *orchestrator.Result {
	base := mustBase()
	registry := buildRegistry()
	st := store.New(base)
	project := locateProject()
	lf := loadLockFile(project)
	firstLock := lf == nil

	result, err := orchestrator.Sync(globalCtx, project, lf, orchestrator.Options{
		Registry:   registry,
		Store:      st,
		Base:       base,
		Hooks:      hooks,
		AutoLock:   autoLock,
		CheckMode:  checkMode,
		DryRun:     dryRun,
		NoParallel: noParallel,
	})
	if err != nil {
		printError(err)
		if checkMode || dryRun {
			exitWithCode(ExitGeneral)
		}
		exitWithCode(ExitLockInconsistent)
	}

	if result.Install != nil {
		if firstLock {
			lf = lockfile.New()
		}
		for _, d := range result.Diff {
			if entry, ok := lockEntryFor(result, d.Runtime); ok {
				lf.LockTool(d.Runtime, entry)
			}
		}
		saveLockFile(project, lf)
	}
	return result
}

// lockEntryFor builds the lock entry to persist for a successfully synced
// runtime, using the install engine's resolved version when the tool was
// actually installed this run, or the diff's already-resolved version when
// it was already present in the store.
func lockEntryFor(result *orchestrator.Result, name string) (lockfile.Entry, bool) {
	for _, d := range result.Diff {
		if d.Runtime != name {
			continue
		}
		if d.Status == orchestrator.NotInstalled {
			for _, f := range result.Install.Failed {
				if f.Name == name {
					return lockfile.Entry{}, false
				}
			}
			for _, s := range result.Install.Successful {
				if s.Name == name {
					return lockfile.Entry{Version: s.Version}, true
				}
			}
		}
		return lockfile.Entry{Version: d.Version}, true
	}
	return lockfile.Entry{}, false
}

func reportSyncResult(result *orchestrator.Result) {
	for _, inc := range result.Inconsistencies {
		fmt.Printf("lock: %s (%s)\n", inc.Detail, inconsistencyLabel(inc.Kind))
	}
	for _, d := range result.Diff {
		printInfof("%-16s %-12s %s\n", d.Runtime, d.Version, d.Status)
	}
	if result.Install != nil {
		for _, f := range result.Install.Failed {
			printError(f.Err)
		}
	}
}

func inconsistencyLabel(kind lockfile.InconsistencyKind) string {
	switch kind {
	case lockfile.MissingFromLock:
		return "missing-from-lock"
	case lockfile.MissingFromConfig:
		return "missing-from-config"
	case lockfile.RangeViolation:
		return "range-violation"
	case lockfile.RangeDrift:
		return "range-drift"
	default:
		return "unknown"
	}
}
