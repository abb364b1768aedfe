package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/installengine"
)

var installForce bool

var installCmd = &cobra.Command{
	Use:   "install <tool>[@version]...",
	Short: "Install one or more development tool runtimes",
	Long: `Install installs the named runtimes into the content-addressable
store, resolving each version request against its provider.

Examples:
  vx install node
  vx install node@20.11.0 python@^3.11
  vx install node --force`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		registry := buildRegistry()
		engine := installengine.New(registry, base)

		specs := make([]installengine.ToolSpec, len(args))
		for i, arg := range args {
			name, request := splitToolArg(arg)
			specs[i] = installengine.ToolSpec{Name: name, Request: request}
		}

		reporter := &textReporter{}
		result := engine.InstallAll(globalCtx, specs, installForce, nil, reporter)

		for _, s := range result.Successful {
			printInfof("installed %s@%s\n", s.Name, s.Version)
		}
		for _, f := range result.Failed {
			printError(f.Err)
		}
		if !result.OK() {
			exitWithCode(ExitInstallFailed)
		}
	},
}

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "Reinstall even if the version is already in the store")
}

// splitToolArg splits "name@version" into (name, version-request), treating
// a bare name (no "@") as a request for "latest".
func splitToolArg(arg string) (string, string) {
	if idx := strings.Index(arg, "@"); idx >= 0 {
		return arg[:idx], arg[idx+1:]
	}
	return arg, "latest"
}

// textReporter prints a start line per tool, and a done line per tool that
// installed successfully, to stdout. It only reports per-tool start/done
// events; the byte-level download progress bar
// is a separate concern, wired into internal/runtimeset's download path
// (internal/progress), since that's the layer that actually streams bytes
// off the wire.
type textReporter struct{}

func (textReporter) Start(runtimeName string) {
	if !quietFlag {
		fmt.Printf("installing %s...\n", runtimeName)
	}
}

func (textReporter) Done(runtimeName, version string, err error) {
	if err != nil {
		return // the aggregate Failed list reports this; avoid duplicate noise
	}
	if !quietFlag {
		fmt.Printf("%s: done (%s)\n", runtimeName, version)
	}
}
