package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/lockfile"
	"github.com/vx-dev/vx/internal/runtimeset"
	"github.com/vx-dev/vx/internal/vxerr"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Regenerate vx.lock from the current config and registry state",
	Long: `Lock resolves every declared tool's version request against its
provider (without installing anything) and writes a fresh vx.lock,
overwriting the previous lock file's entries.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		registry := buildRegistry()
		project := locateProject()

		lf := lockfile.New()
		failed := false
		for _, name := range project.ToolOrder {
			request := project.Tools[name]
			rt, ok := registry.Lookup(name)
			if !ok {
				printError(vxerr.RuntimeNotFound(name, registry.Suggest(name)))
				failed = true
				continue
			}
			version, err := rt.ResolveVersion(request, &runtimeset.Context{Ctx: context.Background(), Base: base})
			if err != nil {
				printError(err)
				failed = true
				continue
			}
			lf.LockTool(name, lockfile.Entry{
				Version:         version,
				ResolvedFrom:    request,
				Ecosystem:       rt.Ecosystem().String(),
				OriginalRange:   request,
				IsLatestInRange: true,
			})
			printInfof("locked %s@%s\n", name, version)
		}

		if failed {
			exitWithCode(ExitVersionNotFound)
		}
		saveLockFile(project, lf)
	},
}
