package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/orchestrator"
	"github.com/vx-dev/vx/internal/runtimeset"
	"github.com/vx-dev/vx/internal/shellspawn"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxconfig"
)

var (
	setupCheck      bool
	setupDryRun     bool
	setupAutoLock   bool
	setupNoParallel bool
	setupCI         bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Sync the project and run its configured setup hooks",
	Long: `Setup is sync plus pre_setup/post_setup hook execution and a "next
steps" report. With --ci, it also emits PATH exports for the detected CI
provider so the current job sees the installed tools immediately.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		registry := buildRegistry()
		st := store.New(base)
		project := locateProject()
		hooks := scriptHooks{project: project, registry: registry, store: st}

		result := runSync(setupCheck, setupDryRun, setupAutoLock, setupNoParallel, hooks)
		reportSyncResult(result)

		if setupCI {
			emitCIExports(project, registry, st)
		}

		if !setupCheck && !setupDryRun {
			printNextSteps(result)
		}

		if setupCheck {
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
	setupCmd.Flags().BoolVar(&setupCheck, "check", false, "Report the diff and exit without installing")
	setupCmd.Flags().BoolVar(&setupDryRun, "dry-run", false, "Report the would-install list and exit without installing")
	setupCmd.Flags().BoolVar(&setupAutoLock, "auto-lock", false, "Regenerate vx.lock instead of failing on inconsistency")
	setupCmd.Flags().BoolVar(&setupNoParallel, "no-parallel", false, "Install tools one at a time")
	setupCmd.Flags().BoolVar(&setupCI, "ci", false, "Emit PATH exports for the detected CI provider")
}

// scriptHooks adapts a project's [scripts] "pre_setup"/"post_setup"
// entries to orchestrator.Hooks, running each under the project's own
// computed (env-cleared) environment per §5.
type scriptHooks struct {
	project  *vxconfig.Project
	registry *runtimeset.Registry
	store    *store.Store
}

func (h scriptHooks) PreSetup() error {
	script, ok := h.project.Scripts["pre_setup"]
	if !ok {
		return nil
	}
	env := buildProjectEnv(h.project, h.registry, h.store, "").Env
	return runScript(env, script)
}

func (h scriptHooks) PostSetup(result *orchestrator.Result) error {
	script, ok := h.project.Scripts["post_setup"]
	if !ok {
		return nil
	}
	resolved := resolvedProjectFromDiff(h.project, result.Diff)
	env := buildProjectEnv(resolved, h.registry, h.store, "").Env
	return runScript(env, script)
}

// resolvedProjectFromDiff returns a copy of project whose Tools map holds
// the concrete versions the orchestrator just resolved, so post_setup (and
// any other consumer that runs after Sync) can build a PATH without
// re-resolving "latest"/range requests itself.
func resolvedProjectFromDiff(project *vxconfig.Project, diff []orchestrator.DiffEntry) *vxconfig.Project {
	resolved := make(map[string]string, len(diff))
	for _, d := range diff {
		resolved[d.Runtime] = d.Version
	}
	clone := *project
	clone.Tools = resolved
	return &clone
}

// emitCIExports detects the running CI provider (currently: GitHub
// Actions, via the GITHUB_ACTIONS env var per §6's recognized variables)
// and writes its PATH/env exports to stdout in that provider's format.
func emitCIExports(project *vxconfig.Project, registry *runtimeset.Registry, st *store.Store) {
	if os.Getenv("GITHUB_ACTIONS") == "" {
		if !quietFlag {
			printInfo("--ci set but no known CI provider detected; skipping export")
		}
		return
	}
	resolved := withLockedVersions(project, loadLockFile(project))
	env := buildProjectEnv(resolved, registry, st, "")
	if err := shellspawn.Export(os.Stdout, env.Env, nil, shellspawn.GitHubActions); err != nil {
		printError(err)
	}
}

// printNextSteps prints a short "what to do now" hint, in the spirit of
// the teacher's install/setup success summaries.
func printNextSteps(result *orchestrator.Result) {
	if !result.OK() {
		printInfo("setup finished with failures; see above")
		return
	}
	if quietFlag {
		return
	}
	printInfo("\nsetup complete. Run `vx dev` to start a shell with these tools on PATH.")
}
