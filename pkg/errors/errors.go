package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath           = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath         = fmt.Errorf("invalid config file path")
	ErrConfigParse               = fmt.Errorf("failed to parse config")
	ErrConfigValidation          = fmt.Errorf("invalid configuration")
	ErrConfigEncode              = fmt.Errorf("failed to encode config")
	ErrConfigDirectory           = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate          = fmt.Errorf("failed to create config file")
	ErrConfigFileRename          = fmt.Errorf("failed to move config file into place")
	ErrConfigFileExists          = fmt.Errorf("config file already exists")
	ErrSignatureCheckUnsupported = fmt.Errorf("package signature verification is not supported")
	ErrZchunkUnsupported         = fmt.Errorf("zchunk metadata is not supported")

	// Registry errors.
	ErrDistroNotFound  = fmt.Errorf("distribution not loaded")
	ErrNoDistrosLoaded = fmt.Errorf("no distribution could be loaded")
	ErrRefreshRunning  = fmt.Errorf("refresh already in progress")

	// Repository definition and metadata errors.
	ErrNoRepositories    = fmt.Errorf("no enabled repositories")
	ErrRepoDefinition    = fmt.Errorf("invalid repository definition")
	ErrNoBaseURL         = fmt.Errorf("repository has no usable base URL")
	ErrMetadataMissing   = fmt.Errorf("repository metadata is missing")
	ErrMetadataParse     = fmt.Errorf("failed to parse repository metadata")
	ErrUnsupportedFormat = fmt.Errorf("unsupported metadata compression")

	// Download errors.
	ErrInvalidPath         = fmt.Errorf("invalid path")
	ErrDownloadFailed      = fmt.Errorf("download failed")
	ErrFileHashMismatch    = fmt.Errorf("file hash mismatch")
	ErrUnsupportedChecksum = fmt.Errorf("unsupported checksum type")
	ErrInvalidCredential   = fmt.Errorf("credential must set exactly one of username, token or headers")

	// Query errors.
	ErrPackageNotFound  = fmt.Errorf("package not found")
	ErrInvalidQueryType = fmt.Errorf("invalid query type")
	ErrSackClosed       = fmt.Errorf("repository index is closed")
	ErrSackSchema       = fmt.Errorf("repository index has an incompatible schema")
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
