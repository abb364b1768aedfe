package main

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/envbuild"
	"github.com/vx-dev/vx/internal/envdir"
	"github.com/vx-dev/vx/internal/shellspawn"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxconfig"
	"github.com/vx-dev/vx/internal/vxerr"
	"github.com/vx-dev/vx/internal/vxpath"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage named global toolchain environments",
	Long: `Env manages the global, named symlink directories under
<VX_HOME>/envs/<name>/ that make a set of runtimes available on PATH
outside of any one project, per the project's env directory model.`,
}

var envCreateFrom string

var envCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new named env",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		from := ""
		if envCreateFrom != "" {
			from, err = envdir.Dir(base, "", envCreateFrom, true)
			exitOnErr(err, ExitUsage)
		}
		exitOnErr(envdir.Create(dir, from), ExitGeneral)
		printInfof("created env %q\n", args[0])
	},
}

var envUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default global env",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		exitOnErr(envdir.ValidateName(args[0]), ExitUsage)
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		if _, err := os.Stat(dir); err != nil {
			printError(vxerr.New(vxerr.KindConfigNotFound, "env "+args[0]+" does not exist; create it first"))
			exitWithCode(ExitUsage)
		}
		user, err := vxconfig.LoadUser(base)
		exitOnErr(err, ExitGeneral)
		user.DefaultEnv = args[0]
		exitOnErr(user.Save(base), ExitGeneral)
		printInfof("default env set to %q\n", args[0])
	},
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all global envs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		entries, err := os.ReadDir(vxpath.EnvsDir(base))
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			printError(err)
			exitWithCode(ExitGeneral)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			printInfo(n)
		}
	},
}

var envDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a named env",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if args[0] == envdir.DefaultEnvName {
			printError(vxerr.New(vxerr.KindConfigMalformed, "the default env cannot be deleted"))
			exitWithCode(ExitUsage)
		}
		base := mustBase()
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		exitOnErr(os.RemoveAll(dir), ExitGeneral)
		printInfof("deleted env %q\n", args[0])
	},
}

var envShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "List a named env's runtime/version bindings",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		entries, err := envdir.List(dir)
		exitOnErr(err, ExitGeneral)
		for _, e := range entries {
			printInfof("%-16s %s\n", e.Runtime, e.Version)
		}
	},
}

var envAddCmd = &cobra.Command{
	Use:   "add <name> <runtime>@<version>",
	Short: "Link a specific installed version into a named env",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		st := store.New(base)
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		runtimeName, version := splitToolArg(args[1])
		exitOnErr(envdir.Add(base, dir, runtimeName, version, st), ExitGeneral)
		printInfof("added %s@%s to env %q\n", runtimeName, version, args[0])
	},
}

var envRemoveCmd = &cobra.Command{
	Use:   "remove <name> <runtime>",
	Short: "Unlink a runtime from a named env",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		exitOnErr(envdir.Remove(dir, args[1]), ExitGeneral)
		printInfof("removed %s from env %q\n", args[1], args[0])
	},
}

var envSyncCmd = &cobra.Command{
	Use:   "sync <name>",
	Short: "Sync a named env against the current project's declared tools",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		st := store.New(base)
		project := locateProject()
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		results, err := envdir.Sync(base, dir, project, st)
		exitOnErr(err, ExitGeneral)
		anyMissing := false
		for _, r := range results {
			if r.Missing {
				anyMissing = true
				printInfof("%-16s missing (not installed)\n", r.Runtime)
				continue
			}
			printInfof("%-16s synced (%s)\n", r.Runtime, r.Version)
		}
		if anyMissing {
			exitWithCode(ExitInstallFailed)
		}
	},
}

var envShellCmd = &cobra.Command{
	Use:   "shell <name>",
	Short: "Spawn a shell with a named env's runtimes on PATH",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		dir, err := envdir.Dir(base, "", args[0], true)
		exitOnErr(err, ExitUsage)
		entries, err := envdir.List(dir)
		exitOnErr(err, ExitGeneral)

		env := currentEnv()
		pathEntries := make([]string, 0, len(entries))
		for _, e := range entries {
			pathEntries = append(pathEntries, pathDirFor(e.Target))
		}
		env["VX_ENV"] = args[0]
		result := envbuild.Result{Env: env}
		sep := string(os.PathListSeparator)
		full := result.Env["PATH"]
		for _, p := range pathEntries {
			full = p + sep + full
		}
		result.Env["PATH"] = full

		code, err := shellspawn.Spawn(globalCtx, result.Env, shellspawn.Interactive, "", nil)
		exitOnErr(err, ExitGeneral)
		os.Exit(code)
	},
}

func init() {
	envCreateCmd.Flags().StringVar(&envCreateFrom, "from", "", "Clone entries from an existing env")

	envCmd.AddCommand(envCreateCmd)
	envCmd.AddCommand(envUseCmd)
	envCmd.AddCommand(envListCmd)
	envCmd.AddCommand(envDeleteCmd)
	envCmd.AddCommand(envShowCmd)
	envCmd.AddCommand(envAddCmd)
	envCmd.AddCommand(envRemoveCmd)
	envCmd.AddCommand(envSyncCmd)
	envCmd.AddCommand(envShellCmd)
}

// exitOnErr prints err (if non-nil) and exits with code; a no-op otherwise.
func exitOnErr(err error, code int) {
	if err != nil {
		printError(err)
		exitWithCode(code)
	}
}

// pathDirFor returns the directory an env entry's executables live in. The
// entry's Target is a store version root (per envdir.Add); bin/ under it is
// the store's preferred executable directory, per vxpath.BinDir.
func pathDirFor(target string) string {
	return filepath.Join(target, "bin")
}
