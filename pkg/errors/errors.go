// Package errors defines the sentinel error taxonomy shared by all porter
// subsystems. Every failure surfaced by the core wraps one of these values so
// callers can classify it with errors.Is without string matching.
package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrProfileNotFound   = fmt.Errorf("profile not found")

	// Database errors.
	ErrDatabase     = fmt.Errorf("database failure")
	ErrInvalidPath  = fmt.Errorf("invalid path")
	ErrNotInstalled = fmt.Errorf("package is not installed")

	// Repository / sync errors.
	ErrRepositoryNotFound = fmt.Errorf("repository not found")
	ErrMetadataInvalid    = fmt.Errorf("repository metadata is invalid")

	// Download errors.
	ErrNetwork            = fmt.Errorf("network error")
	ErrHTTPStatus         = fmt.Errorf("unexpected HTTP status")
	ErrChecksumMismatch   = fmt.Errorf("checksum mismatch")
	ErrAmbiguousSelection = fmt.Errorf("multiple assets match the given filters")
	ErrNoMatchingAsset    = fmt.Errorf("no asset matches the given filters")

	// Install / removal errors.
	ErrPackageNotFound  = fmt.Errorf("package not found")
	ErrAmbiguousPackage = fmt.Errorf("package name matches multiple repositories")
	ErrAlreadyInstalled = fmt.Errorf("package is already installed")
	ErrPortableConflict = fmt.Errorf("portable mode cannot be combined with individual portable overrides")
	ErrLockContention   = fmt.Errorf("another operation holds the package lock")

	// Confirmation errors.
	ErrConfirmationDeclined = fmt.Errorf("operation declined")

	// Hook errors.
	ErrHookScript = fmt.Errorf("hook script error")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
