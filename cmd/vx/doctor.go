package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/vxpath"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the vx environment is configured correctly",
	Long: `Doctor verifies that the vx home directory exists, the shims
directory is on PATH, and every installed store version has a discoverable
executable, in the spirit of a package manager's "is my install healthy"
check. Exits nonzero if any check fails, for use as a gate in scripts.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		base := mustBase()
		failed := false

		fmt.Printf("Checking vx environment at %s...\n", base)

		fmt.Print("  home directory")
		if info, err := os.Stat(base); err != nil || !info.IsDir() {
			fmt.Println(" ... FAIL")
			fmt.Fprintln(os.Stderr, "    run any `vx install` to create it")
			failed = true
		} else {
			fmt.Println(" ... ok")
		}

		shimsDir := vxpath.ShimsDir(base)
		fmt.Print("  shims directory on PATH")
		if onPath(shimsDir) {
			fmt.Println(" ... ok")
		} else {
			fmt.Println(" ... FAIL")
			fmt.Fprintf(os.Stderr, "    %s is not in your PATH\n", shimsDir)
			fmt.Fprintln(os.Stderr, "    run: eval \"$(vx dev --export)\"")
			failed = true
		}

		st := store.New(base)
		corruptions, err := st.CheckIntegrity()
		fmt.Print("  store integrity")
		if err != nil {
			fmt.Println(" ... FAIL")
			fmt.Fprintf(os.Stderr, "    %v\n", err)
			failed = true
		} else if len(corruptions) > 0 {
			fmt.Println(" ... FAIL")
			for _, c := range corruptions {
				fmt.Fprintf(os.Stderr, "    %s@%s: %s\n", c.Runtime, c.Version, c.Reason)
			}
			failed = true
		} else {
			fmt.Println(" ... ok")
		}

		if failed {
			exitWithCode(ExitGeneral)
		}
	},
}

func onPath(dir string) bool {
	for _, d := range strings.Split(os.Getenv("PATH"), string(os.PathListSeparator)) {
		if d == dir {
			return true
		}
	}
	return false
}
