package version

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorType classifies resolver errors for better handling
type ErrorType int

const (
	// ErrTypeNetwork indicates a generic network-related error (fallback when specific type is unknown)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeNotFound indicates the requested resource was not found (HTTP 404, etc.)
	ErrTypeNotFound
	// ErrTypeParsing indicates an error parsing response data (TOML, JSON, etc.)
	ErrTypeParsing
	// ErrTypeValidation indicates data validation failure (invalid version format, etc.)
	ErrTypeValidation
	// ErrTypeUnknownSource indicates an unknown/unregistered version source
	ErrTypeUnknownSource
	// ErrTypeNotSupported indicates the operation is not supported for this source
	ErrTypeNotSupported
	// ErrTypeRateLimit indicates API rate limit exceeded (HTTP 429, or 403 with rate limit headers)
	ErrTypeRateLimit
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeDNS indicates DNS resolution failure
	ErrTypeDNS
	// ErrTypeConnection indicates connection refused or reset
	ErrTypeConnection
	// ErrTypeTLS indicates TLS/SSL certificate errors
	ErrTypeTLS
)

// ResolverError provides structured error information for version resolution failures
type ResolverError struct {
	Type    ErrorType
	Source  string // Version source name (e.g., "rust_dist", "nodejs_dist")
	Message string // Human-readable error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface
func (e *ResolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s resolver: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("%s resolver: %s", e.Source, e.Message)
}

// Unwrap returns the underlying error for error chain support
func (e *ResolverError) Unwrap() error {
	return e.Err
}

// Suggestion returns an actionable suggestion for the user based on the error type.
// Returns an empty string if no specific suggestion is available.
func (e *ResolverError) Suggestion() string {
	switch e.Type {
	case ErrTypeRateLimit:
		return "Wait a few minutes before trying again, or check if you need to authenticate"
	case ErrTypeTimeout:
		return "Check your internet connection and try again"
	case ErrTypeDNS:
		return "Check your DNS settings and internet connection"
	case ErrTypeConnection:
		return "The service may be down or blocked. Check if you can access it in a browser"
	case ErrTypeTLS:
		return "There may be a certificate issue. Check your system time is correct"
	case ErrTypeNotFound:
		return "Verify the tool/package name is correct"
	case ErrTypeNetwork:
		return "Check your internet connection and try again"
	default:
		return ""
	}
}

// ClassifyError inspects an error returned by an HTTP round trip and buckets
// it into an ErrorType, so callers can build a ResolverError without
// duplicating net.DNSError/timeout/TLS sniffing in every provider file.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrTypeNetwork
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrTypeNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrTypeTimeout
		}
		return ErrTypeDNS
	}

	// net.OpError and url.Error both forward Timeout() to their wrapped error.
	if te, ok := err.(interface{ Timeout() bool }); ok && te.Timeout() {
		return ErrTypeTimeout
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return ErrTypeConnection
	}
	if strings.Contains(msg, "certificate") || strings.Contains(msg, "x509") {
		return ErrTypeTLS
	}

	return ErrTypeNetwork
}

// WrapNetworkError builds a ResolverError from a raw error returned by an
// HTTP client call, classifying it via ClassifyError.
func WrapNetworkError(err error, source, message string) *ResolverError {
	return &ResolverError{
		Type:    ClassifyError(err),
		Source:  source,
		Message: message,
		Err:     err,
	}
}

// GitHubRateLimitContext describes what vx was doing when it hit the GitHub
// API rate limit, so the error message can explain itself in plain language.
type GitHubRateLimitContext string

// GitHubContextVersionResolution marks a rate limit hit while resolving a
// runtime's available versions from GitHub releases or tags.
const GitHubContextVersionResolution GitHubRateLimitContext = "version_resolution"

// GitHubRateLimitError reports a GitHub API rate limit with enough detail
// (reset time, authentication state) for Suggestion() to give actionable
// advice instead of a bare "rate limited" message.
type GitHubRateLimitError struct {
	Limit         int
	Remaining     int
	ResetTime     time.Time
	Authenticated bool
	Context       GitHubRateLimitContext
	Err           error
}

func (e *GitHubRateLimitError) Error() string {
	authStr := "unauthenticated"
	if e.Authenticated {
		authStr = "authenticated"
	}
	contextMsg := "accessing GitHub API"
	if e.Context == GitHubContextVersionResolution {
		contextMsg = "resolving tool versions"
	}
	used := e.Limit - e.Remaining
	return fmt.Sprintf("GitHub API rate limit exceeded (%d/%d requests used, %s) while %s, resets at %s",
		used, e.Limit, authStr, contextMsg, e.ResetTime.Format("3:04PM"))
}

func (e *GitHubRateLimitError) Unwrap() error {
	return e.Err
}

// Suggestion returns actionable advice: how long until the limit resets,
// whether authenticating would help, and whether the caller can sidestep
// the lookup entirely by pinning a version.
func (e *GitHubRateLimitError) Suggestion() string {
	var b strings.Builder

	switch e.Context {
	case GitHubContextVersionResolution:
		b.WriteString("vx uses the GitHub API to discover available versions for this tool. ")
	default:
		b.WriteString("vx uses the GitHub API to access tool information. ")
	}

	remaining := time.Until(e.ResetTime)
	if remaining <= 0 {
		b.WriteString("The rate limit should reset soon. ")
	} else {
		minutes := int(remaining.Minutes()) + 1
		b.WriteString(fmt.Sprintf("The rate limit resets in about %d minute(s). ", minutes))
	}

	if !e.Authenticated {
		b.WriteString("Set the GITHUB_TOKEN environment variable to raise the limit to 5000 requests/hour. ")
	}

	if e.Context == GitHubContextVersionResolution {
		b.WriteString("In the meantime, specify a version explicitly instead of resolving the latest.")
	}

	return b.String()
}
