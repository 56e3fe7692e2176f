package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validOutputFormats = []string{"text", "json", "csv"}
)

// Validate validates Config.
func (c *Config) Validate() error {
	var errs []ValidationError

	if c.Version == "" {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: "version is required",
		})
	}

	if !contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of %s", strings.Join(validLogLevels, ", ")),
		})
	}

	if c.Runtime.MaxEnvironments < 0 {
		errs = append(errs, ValidationError{
			Field:   "runtime.max_environments",
			Message: "must not be negative",
		})
	}

	if !contains(validOutputFormats, c.Output.Format) {
		errs = append(errs, ValidationError{
			Field:   "output.format",
			Message: fmt.Sprintf("must be one of %s", strings.Join(validOutputFormats, ", ")),
		})
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
