package main

import "os"

// Exit codes for different failure modes, per spec.md §6's "0 success; 1
// generic failure; child exit codes propagated verbatim" contract,
// supplemented with the teacher's finer-grained taxonomy so scripts can
// distinguish failure modes without parsing stderr.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0

	// ExitGeneral indicates a general error.
	ExitGeneral = 1

	// ExitUsage indicates invalid arguments or usage error.
	ExitUsage = 2

	// ExitConfigNotFound indicates no vx.toml was found.
	ExitConfigNotFound = 3

	// ExitRuntimeNotFound indicates an undeclared/unregistered runtime.
	ExitRuntimeNotFound = 4

	// ExitVersionNotFound indicates no version satisfied a request.
	ExitVersionNotFound = 5

	// ExitInstallFailed indicates one or more installs failed.
	ExitInstallFailed = 6

	// ExitLockInconsistent indicates vx.lock disagrees with vx.toml and
	// --auto-lock was not set.
	ExitLockInconsistent = 7

	// ExitHookFailed indicates a pre_setup hook failed.
	ExitHookFailed = 8
)

// exitWithCode exits with the specified exit code.
func exitWithCode(code int) {
	os.Exit(code)
}
