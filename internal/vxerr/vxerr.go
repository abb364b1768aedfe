// Package vxerr provides a tagged-enum error model for vx's core
// components, grounded on the version package's ResolverError taxonomy:
// each error kind carries a one-line summary plus optional verbose fields,
// surfaced behind --verbose. Errors wrap with %w and are tested with
// errors.As/errors.Is.
package vxerr

import (
	"fmt"
	"strings"
)

// Kind classifies a vx error for dispatch and for choosing a one-line
// summary independent of the verbose diagnostic.
type Kind int

const (
	// KindConfigNotFound means no vx.toml was found walking up from cwd.
	KindConfigNotFound Kind = iota
	// KindConfigMalformed means vx.toml failed to parse.
	KindConfigMalformed
	// KindLockMalformed means vx.lock failed to parse.
	KindLockMalformed
	// KindRuntimeNotFound means the named runtime is not registered.
	KindRuntimeNotFound
	// KindVersionNotFound means no version satisfied the request.
	KindVersionNotFound
	// KindVersionOutOfBounds means a version violated a minimum/maximum policy.
	KindVersionOutOfBounds
	// KindConflict means two declared tools require incompatible runtime versions.
	KindConflict
	// KindInstallFailed means fetch, extract, or rename failed during install.
	KindInstallFailed
	// KindHookFailed means a pre/post hook returned a nonzero exit.
	KindHookFailed
	// KindFilesystemError means a permission or filesystem operation failed.
	KindFilesystemError
	// KindRuntimeError means a spawned child process failed to start or exited nonzero.
	KindRuntimeError
)

// String returns a short machine-stable name for the kind, used in %s/%v
// formatting and in tests asserting on error kind.
func (k Kind) String() string {
	switch k {
	case KindConfigNotFound:
		return "ConfigNotFound"
	case KindConfigMalformed:
		return "ConfigMalformed"
	case KindLockMalformed:
		return "LockMalformed"
	case KindRuntimeNotFound:
		return "RuntimeNotFound"
	case KindVersionNotFound:
		return "VersionNotFound"
	case KindVersionOutOfBounds:
		return "VersionOutOfBounds"
	case KindConflict:
		return "Conflict"
	case KindInstallFailed:
		return "InstallFailed"
	case KindHookFailed:
		return "HookFailed"
	case KindFilesystemError:
		return "FilesystemError"
	case KindRuntimeError:
		return "RuntimeError"
	default:
		return "Unknown"
	}
}

// Error is vx's structured error type. Summary is always shown; Detail is
// additional diagnostic text (resolved URL, tempdir path, underlying OS
// error) surfaced only behind --verbose. Suggestions are optional
// actionable next steps, rendered one per line.
type Error struct {
	Kind        Kind
	Summary     string
	Detail      string
	Suggestions []string
	Err         error
}

// New builds an *Error with no underlying cause.
func New(kind Kind, summary string) *Error {
	return &Error{Kind: kind, Summary: summary}
}

// Wrap builds an *Error that wraps an underlying cause.
func Wrap(kind Kind, summary string, err error) *Error {
	return &Error{Kind: kind, Summary: summary, Err: err}
}

// WithDetail attaches verbose diagnostic text and returns the receiver for chaining.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithSuggestions attaches actionable next steps and returns the receiver for chaining.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = suggestions
	return e
}

// Error implements the error interface with the one-line summary only;
// Detail and Suggestions are surfaced separately via Verbose().
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Summary, e.Err)
	}
	return e.Summary
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Verbose renders the full diagnostic: summary, detail, and suggestions.
// Intended for the --verbose code path; the default path uses Error().
func (e *Error) Verbose() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if e.Detail != "" {
		b.WriteString("\n  ")
		b.WriteString(e.Detail)
	}
	for _, s := range e.Suggestions {
		b.WriteString("\n  - ")
		b.WriteString(s)
	}
	return b.String()
}

// RuntimeNotFound builds a KindRuntimeNotFound error carrying Levenshtein
// suggestions over the registered runtime names, per spec.md §4.6 step 1.
func RuntimeNotFound(name string, suggestions []string) *Error {
	e := New(KindRuntimeNotFound, fmt.Sprintf("runtime %q is not registered", name))
	if len(suggestions) > 0 {
		hints := make([]string, len(suggestions))
		for i, s := range suggestions {
			hints[i] = fmt.Sprintf("did you mean %q?", s)
		}
		e.WithSuggestions(hints...)
	}
	return e
}

// VersionNotFound builds a KindVersionNotFound error for a request that no
// available version satisfied.
func VersionNotFound(runtime, request string) *Error {
	return New(KindVersionNotFound, fmt.Sprintf("no version of %q satisfies request %q", runtime, request))
}

// VersionOutOfBounds builds a KindVersionOutOfBounds error for a version
// that violates a runtime's minimum/maximum policy.
func VersionOutOfBounds(runtime, version, reason string) *Error {
	return New(KindVersionOutOfBounds, fmt.Sprintf("%s@%s is out of bounds: %s", runtime, version, reason))
}

// Warning is a non-fatal diagnostic surfaced alongside errors in a report
// (VersionDeprecated, VersionWarning, range-drift, missing passenv target).
// Warnings are collected, never returned as errors.
type Warning struct {
	Runtime string
	Message string
}

func (w Warning) String() string {
	if w.Runtime == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Runtime, w.Message)
}
