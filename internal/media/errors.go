package media

import (
	"errors"
	"fmt"
)

// ErrCredentialUnavailable is returned by the credential store when no cookie could be read.
// It is never fatal: callers continue with an unauthenticated fetch.
var ErrCredentialUnavailable = errors.New("credential unavailable")

// ConfigurationError represents a failure to resolve the user's home or config location.
type ConfigurationError struct {
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportError represents network failures and non-success HTTP responses
// during the page fetch or a stream download.
type TransportError struct {
	Operation  string // The operation that failed (e.g., "fetch_page", "download_video")
	URL        string // Requested URL
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.URL)
	}

	if e.Err != nil {
		return fmt.Sprintf("transport error during %s: %v", e.Operation, e.Err)
	}

	return fmt.Sprintf("transport error during %s", e.Operation)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExtractionError means an expected pattern was not found in the page text.
// This usually signals a login wall, a removed video or a site format change.
type ExtractionError struct {
	Field string // "title", "video" or "audio"
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("could not locate %s in page", e.Field)
}

// PathError represents an unusable output directory.
type PathError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid output path %q: %s", e.Path, e.Reason)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// MergeError means the external muxer exited unsuccessfully.
// Stderr holds the tool's diagnostic output verbatim.
type MergeError struct {
	Stderr string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed: %s", e.Stderr)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}
