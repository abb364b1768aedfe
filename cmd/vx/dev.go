package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/shellspawn"
	"github.com/vx-dev/vx/internal/store"
)

var (
	devCommand       string
	devExport        bool
	devFormat        string
	devInheritSystem bool
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Spawn a shell (or run one command) with the project's tools on PATH",
	Long: `Dev builds the project's environment and either execs an
interactive shell, runs a single --command, or (with --export) prints the
environment as shell-evaluable text instead of spawning anything.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		registry := buildRegistry()
		st := store.New(base)
		project := locateProject()
		lf := loadLockFile(project)
		resolved := withLockedVersions(project, lf)

		if devInheritSystem {
			clone := *resolved
			clone.Isolation = false
			resolved = &clone
		}

		result := buildProjectEnv(resolved, registry, st, "")
		printWarnings(result.Warnings)

		if devExport {
			format, err := parseFormat(devFormat)
			if err != nil {
				printError(err)
				exitWithCode(ExitUsage)
			}
			if err := shellspawn.Export(os.Stdout, result.Env, nil, format); err != nil {
				printError(err)
				exitWithCode(ExitGeneral)
			}
			return
		}

		mode := shellspawn.Interactive
		var argv []string
		if devCommand != "" {
			mode = shellspawn.Command
			argv = []string{"sh", "-c", devCommand}
		}

		code, err := shellspawn.Spawn(globalCtx, result.Env, mode, "", argv)
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}
		os.Exit(code)
	},
}

func init() {
	devCmd.Flags().StringVar(&devCommand, "command", "", "Run a single command instead of an interactive shell")
	devCmd.Flags().BoolVar(&devExport, "export", false, "Print the environment as shell-evaluable text instead of spawning")
	devCmd.Flags().StringVar(&devFormat, "format", "shell", "Export format: shell, powershell, batch, github-actions")
	devCmd.Flags().BoolVar(&devInheritSystem, "inherit-system", false, "Inherit the full parent environment instead of isolating")
}

func parseFormat(name string) (shellspawn.Format, error) {
	switch strings.ToLower(name) {
	case "shell", "sh", "posix", "":
		return shellspawn.Shell, nil
	case "powershell", "pwsh":
		return shellspawn.PowerShell, nil
	case "batch", "cmd":
		return shellspawn.Batch, nil
	case "github-actions", "githubactions", "gha":
		return shellspawn.GitHubActions, nil
	default:
		return 0, &unknownFormatError{name: name}
	}
}

type unknownFormatError struct{ name string }

func (e *unknownFormatError) Error() string {
	return "unknown export format " + e.name + " (want shell, powershell, batch, or github-actions)"
}
