package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Input errors
	ErrColumnNotFound   = errors.New("column not found")
	ErrLengthMismatch   = errors.New("length mismatch")
	ErrMissingValues    = errors.New("missing values")
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrReportNotFound   = errors.New("report not found")

	// Numerical conditions
	ErrDegenerateEra  = errors.New("degenerate era")
	ErrNonConvergence = errors.New("optimizer did not converge")
	ErrUndefinedRatio = errors.New("ratio undefined: zero denominator")
)

// Error constructors with context
func NewConfigurationError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfiguration, field, reason)
}

func NewColumnNotFoundError(column string) error {
	return fmt.Errorf("%w: %q", ErrColumnNotFound, column)
}

func NewLengthMismatchError(what string, want, got int) error {
	return fmt.Errorf("%w: %s has %d values, expected %d", ErrLengthMismatch, what, got, want)
}

func NewDegenerateEraError(era string, reason string) error {
	if era == "" {
		return fmt.Errorf("%w: %s", ErrDegenerateEra, reason)
	}
	return fmt.Errorf("%w %s: %s", ErrDegenerateEra, era, reason)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

func IsDegenerateError(err error) bool {
	return errors.Is(err, ErrDegenerateEra)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrMissingValues) ||
		errors.Is(err, ErrInsufficientData)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrReportNotFound) || errors.Is(err, ErrColumnNotFound)
}
