package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vx-dev/vx/internal/envbuild"
	"github.com/vx-dev/vx/internal/lockfile"
	"github.com/vx-dev/vx/internal/runtimeset"
	"github.com/vx-dev/vx/internal/shellspawn"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxconfig"
	"github.com/vx-dev/vx/internal/vxerr"
	"github.com/vx-dev/vx/internal/vxpath"
)

// printInfo prints an informational message unless quiet mode is enabled.
func printInfo(a ...interface{}) {
	if !quietFlag {
		fmt.Println(a...)
	}
}

// printInfof prints a formatted informational message unless quiet mode is enabled.
func printInfof(format string, a ...interface{}) {
	if !quietFlag {
		fmt.Printf(format, a...)
	}
}

// printJSON marshals v to JSON and prints it to stdout.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error encoding JSON: %v\n", err)
		exitWithCode(ExitGeneral)
	}
}

// printError prints err to stderr, including the verbose diagnostic when
// --verbose/--debug is set and err carries one.
func printError(err error) {
	var ve *vxerr.Error
	if e, ok := err.(*vxerr.Error); ok {
		ve = e
	}
	if ve != nil && (verboseFlag || debugFlag) {
		fmt.Fprintln(os.Stderr, ve.Verbose())
		return
	}
	fmt.Fprintln(os.Stderr, err)
}

// printWarnings prints each warning to stderr, one per line, unless quiet.
func printWarnings(warnings []vxerr.Warning) {
	if quietFlag {
		return
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w.String())
	}
}

// mustBase resolves the base directory (VX_HOME or ~/.vx), exiting on
// failure since every subcommand needs it before doing anything else.
func mustBase() string {
	base, err := vxpath.Base()
	if err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}
	if err := vxconfig.EnsureDirectories(base); err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}
	return base
}

// buildRegistry returns the registry of built-in runtimes vx ships with,
// per spec.md §4.2's capability list (node, python, rust, go).
func buildRegistry() *runtimeset.Registry {
	return runtimeset.NewRegistry(
		runtimeset.NewNode(),
		runtimeset.NewPython(),
		runtimeset.NewRust(),
		runtimeset.NewGo(),
	)
}

// locateProject walks up from the working directory for vx.toml, loads it,
// and prints its warnings. Exits with ExitConfigNotFound on failure.
func locateProject() *vxconfig.Project {
	cwd, err := os.Getwd()
	if err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}
	path, err := vxconfig.FindProjectConfig(cwd)
	if err != nil {
		printError(err)
		exitWithCode(ExitConfigNotFound)
	}
	project, warnings, err := vxconfig.LoadProject(path)
	if err != nil {
		printError(err)
		exitWithCode(ExitConfigNotFound)
	}
	for _, w := range warnings {
		if !quietFlag {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w.Message)
		}
	}
	return project
}

// loadLockFile reads vx.lock for project, returning nil (not an error) if
// no lock file exists yet.
func loadLockFile(project *vxconfig.Project) *lockfile.LockFile {
	path := vxpath.LockFilePath(project.ProjectRoot)
	lf, err := lockfile.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		printError(err)
		exitWithCode(ExitGeneral)
	}
	return lf
}

// saveLockFile writes lf to project's vx.lock, exiting on failure.
func saveLockFile(project *vxconfig.Project, lf *lockfile.LockFile) {
	path := vxpath.LockFilePath(project.ProjectRoot)
	if err := lockfile.Save(path, lf); err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}
}

// runScript runs a [scripts] entry as a child process under env (the
// computed, env-cleared project environment), per §5's "every child
// process launched by ... a hook runs with its parent environment cleared
// and the computed env injected" rule. A bare command string (no Args) is
// handed to a shell via "-c" so pipelines/redirects in vx.toml work the
// way a user typing them at a prompt would expect.
func runScript(env map[string]string, script *vxconfig.Script) error {
	if script == nil {
		return nil
	}
	var argv []string
	if len(script.Args) > 0 {
		argv = append([]string{script.Command}, script.Args...)
	} else {
		argv = []string{"sh", "-c", script.Command}
	}
	code, err := shellspawn.Spawn(globalCtx, env, shellspawn.Command, "", argv)
	if err != nil {
		return err
	}
	if code != 0 {
		return vxerr.New(vxerr.KindHookFailed, fmt.Sprintf("script %q exited with code %d", script.Command, code))
	}
	return nil
}

// currentEnv snapshots os.Environ() into a map, the form envbuild.Build
// expects for its passenv/isolation decisions.
func currentEnv() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			out[kv[:idx]] = kv[idx+1:]
		}
	}
	return out
}

// withLockedVersions returns a shallow copy of project whose Tools map
// prefers each runtime's locked version over its raw version-request, so
// downstream consumers that need a concrete version (envbuild, envdir) see
// one without re-resolving over the network.
func withLockedVersions(project *vxconfig.Project, lf *lockfile.LockFile) *vxconfig.Project {
	if lf == nil {
		return project
	}
	resolved := make(map[string]string, len(project.Tools))
	for k, v := range project.Tools {
		if entry, ok := lf.GetTool(k); ok {
			resolved[k] = entry.Version
			continue
		}
		resolved[k] = v
	}
	clone := *project
	clone.Tools = resolved
	return &clone
}

// buildProjectEnv computes project's environment per §4.7, resolving
// bin directories through st. envName, when non-empty, is injected as
// VX_ENV (set by `env shell`/`env use` style sessions rather than a bare
// project sync).
func buildProjectEnv(project *vxconfig.Project, registry *runtimeset.Registry, st *store.Store, envName string) *envbuild.Result {
	return envbuild.Build(project, envbuild.Options{
		Registry:    registry,
		Store:       st,
		CurrentEnv:  currentEnv(),
		WarnMissing: true,
		EnvName:     envName,
	})
}
