package errors

import "fmt"

// Validation errors used by the helpers below.
var (
	ErrEmptyDistroID     = fmt.Errorf("distribution id cannot be empty")
	ErrDuplicateDistro   = fmt.Errorf("distribution configured twice")
	ErrInvalidLogLevel   = fmt.Errorf("invalid log level")
	ErrInvalidLogFormat  = fmt.Errorf("invalid log format")
	ErrInvalidBusType    = fmt.Errorf("invalid bus type")
	ErrInvalidSchedule   = fmt.Errorf("invalid refresh schedule")
	ErrInvalidURLScheme  = fmt.Errorf("invalid url scheme")
	ErrNegativeDuration  = fmt.Errorf("duration cannot be negative")
	ErrConcurrencyTooLow = fmt.Errorf("concurrency must be at least 1")
)

// ErrEmptyDistroIDWithIndex wraps ErrEmptyDistroID with the position of the offending entry.
func ErrEmptyDistroIDWithIndex(i int) error {
	return fmt.Errorf("distros[%d]: %w", i, ErrEmptyDistroID)
}

// ErrDuplicateDistroWithID wraps ErrDuplicateDistro with the distribution id.
func ErrDuplicateDistroWithID(id string) error {
	return fmt.Errorf("distribution '%s': %w", id, ErrDuplicateDistro)
}

// ErrDistroNotFoundWithID wraps ErrDistroNotFound with the distribution id.
func ErrDistroNotFoundWithID(id string) error {
	return fmt.Errorf("%w: %s", ErrDistroNotFound, id)
}

// ErrPackageNotFoundWithName wraps ErrPackageNotFound with the package name.
func ErrPackageNotFoundWithName(name string) error {
	return fmt.Errorf("%w: %s", ErrPackageNotFound, name)
}

// ErrInvalidQueryTypeWithName wraps ErrInvalidQueryType with the rejected query type.
func ErrInvalidQueryTypeWithName(queryType string) error {
	return fmt.Errorf("%w: '%s'", ErrInvalidQueryType, queryType)
}

// ErrMetadataMissingWithType wraps ErrMetadataMissing with the repository and data type.
func ErrMetadataMissingWithType(repo, dataType string) error {
	return fmt.Errorf("repository '%s' has no %s: %w", repo, dataType, ErrMetadataMissing)
}

// ErrInvalidLogLevelWithDetails wraps ErrInvalidLogLevel with the rejected value.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}

// ErrInvalidLogFormatWithDetails wraps ErrInvalidLogFormat with the rejected value.
func ErrInvalidLogFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidLogFormat, format)
}

// ErrInvalidBusTypeWithDetails wraps ErrInvalidBusType with the rejected value.
func ErrInvalidBusTypeWithDetails(busType string) error {
	return fmt.Errorf("%w: '%s', must be one of: system, session", ErrInvalidBusType, busType)
}

// ErrInvalidScheduleWithDetails wraps ErrInvalidSchedule with the parser error.
func ErrInvalidScheduleWithDetails(spec string, err error) error {
	return fmt.Errorf("%w '%s': %v", ErrInvalidSchedule, spec, err)
}

// ErrInvalidURLSchemeWithDetails wraps ErrInvalidURLScheme with the rejected scheme.
func ErrInvalidURLSchemeWithDetails(scheme string) error {
	return fmt.Errorf("%w: '%s', must be one of: http, https, ftp, file", ErrInvalidURLScheme, scheme)
}

// ErrNegativeDurationWithName wraps ErrNegativeDuration with the setting name.
func ErrNegativeDurationWithName(name string) error {
	return fmt.Errorf("%s: %w", name, ErrNegativeDuration)
}

// ErrConcurrencyTooLowWithName wraps ErrConcurrencyTooLow with the setting name.
func ErrConcurrencyTooLowWithName(name string) error {
	return fmt.Errorf("%s: %w", name, ErrConcurrencyTooLow)
}
