package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrInvalidConcurrency is returned when the concurrency bound is not positive.
	ErrInvalidConcurrency = errors.New("invalid max concurrency: must be positive")

	// ErrInvalidTimeout is returned when the module timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid module timeout: must be positive")

	// ErrInvalidDepth is returned when the scan depth is negative.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidLimit is returned when the result limit is negative.
	ErrInvalidLimit = errors.New("invalid limit: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrEmptyProjectName is returned when no project name is set.
	ErrEmptyProjectName = errors.New("project name must not be empty")

	// ErrInvalidProxy is returned for a proxy that is neither host:port nor
	// a socks5:// URL.
	ErrInvalidProxy = errors.New("invalid proxy address")
)
