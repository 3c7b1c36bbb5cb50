package cache

import "fmt"

// Common cache errors.
var (
	// ErrCacheDirectory is returned when there's an error with the cache directory.
	ErrCacheDirectory = fmt.Errorf("invalid cache directory")

	// ErrStoreClosed is returned when the state store is used after Close.
	ErrStoreClosed = fmt.Errorf("state store is closed")
)
