package connector

import (
	"errors"
	"fmt"

	"github.com/skysweep/skysweep/pkg/domain"
)

// Mode classifies a provider failure for retry purposes
type Mode string

const (
	// ModeTransient marks failures worth retrying, e.g. throttling
	ModeTransient Mode = "transient"
	// ModePermanent marks failures that retrying cannot fix, e.g. bad
	// credentials or a resource kind unsupported in the region
	ModePermanent Mode = "permanent"
)

// Error is the provider error surfaced by connectors. It records where the
// failure happened so it can be attributed to a (provider, region, kind) key.
type Error struct {
	Provider domain.Provider
	Region   string
	Kind     string
	Mode     Mode
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error (%s) listing %s in %s: %v", e.Provider, e.Mode, e.Kind, e.Region, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient returns a retryable provider error
func Transient(provider domain.Provider, region, kind string, err error) *Error {
	return &Error{Provider: provider, Region: region, Kind: kind, Mode: ModeTransient, Err: err}
}

// Permanent returns a provider error that must not be retried
func Permanent(provider domain.Provider, region, kind string, err error) *Error {
	return &Error{Provider: provider, Region: region, Kind: kind, Mode: ModePermanent, Err: err}
}

// IsPermanent reports whether err is a permanent provider error. Errors that
// are not provider errors at all are treated as permanent so unknown failures
// are surfaced instead of being retried blindly.
func IsPermanent(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Mode == ModePermanent
	}
	return true
}

// IsTransient reports whether err is a retryable provider error
func IsTransient(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Mode == ModeTransient
	}
	return false
}
