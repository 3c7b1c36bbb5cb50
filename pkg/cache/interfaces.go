package cache

import "time"

// Manager defines the interface for cache management operations.
type Manager interface {
	Clean(options CleanOptions) (*CleanResult, error)
	GetInfo() (*Info, error)
	GetDirectory() string
	SetDirectory(dir string) error
}

// CleanOptions specifies what to clean from the cache. Without Metadata or
// Indexes both are cleaned. An empty Distros list means every distribution.
type CleanOptions struct {
	Distros  []string
	Metadata bool
	Indexes  bool
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	TotalFreed    int64
	MetadataFreed int64
	IndexFreed    int64
}

// Info represents cache information.
type Info struct {
	Directory     string
	TotalSize     int64
	MetadataSize  int64
	MetadataFiles int
	IndexSize     int64
	IndexFiles    int
	Distros       []DistroUsage
}

// DistroUsage is the disk usage of one distribution's cache directory.
type DistroUsage struct {
	ID           string
	MetadataSize int64
	IndexSize    int64
	LastModified time.Time
}
