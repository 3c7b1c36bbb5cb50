package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/glorpus-work/querykit/internal/logger"
)

// Operation renders cache management results for the command line.
type Operation struct {
	manager Manager
}

// NewOperation creates a new cache operation instance.
func NewOperation(manager Manager) *Operation {
	return &Operation{
		manager: manager,
	}
}

// Clean cleans the cache based on the provided options.
func (op *Operation) Clean(options CleanOptions) (string, error) {
	logger.Debug("Cleaning cache", logger.Fields{
		"distros":  strings.Join(options.Distros, ","),
		"metadata": options.Metadata,
		"indexes":  options.Indexes,
	})

	result, err := op.manager.Clean(options)
	if err != nil {
		return "", fmt.Errorf("failed to clean cache: %w", err)
	}

	if result.TotalFreed == 0 {
		return "No files were removed from the cache.", nil
	}
	msg := fmt.Sprintf("Successfully cleaned cache. Freed %s of disk space.", FormatBytes(result.TotalFreed))
	if result.MetadataFreed > 0 {
		msg += fmt.Sprintf("\n- Metadata: %s", FormatBytes(result.MetadataFreed))
	}
	if result.IndexFreed > 0 {
		msg += fmt.Sprintf("\n- Indexes: %s", FormatBytes(result.IndexFreed))
	}
	return msg, nil
}

// GetInfo returns information about the cache.
func (op *Operation) GetInfo() (string, error) {
	info, err := op.manager.GetInfo()
	if err != nil {
		return "", fmt.Errorf("failed to get cache info: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Cache Information:
  Directory:    %s
  Total Size:   %s
  Metadata:     %s (%d files)
  Indexes:      %s (%d files)`,
		info.Directory,
		FormatBytes(info.TotalSize),
		FormatBytes(info.MetadataSize),
		info.MetadataFiles,
		FormatBytes(info.IndexSize),
		info.IndexFiles,
	)
	for _, d := range info.Distros {
		fmt.Fprintf(&b, "\n  %-20s %s metadata, %s index, updated %s",
			d.ID, FormatBytes(d.MetadataSize), FormatBytes(d.IndexSize), d.LastModified.Format(time.RFC1123))
	}
	return b.String(), nil
}

// GetDirectory returns the cache directory path.
func (op *Operation) GetDirectory() string {
	return op.manager.GetDirectory()
}

// FormatBytes converts bytes to a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T", "P", "E"}
	if exp < len(units) {
		return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
	}
	return fmt.Sprintf("%d B", bytes)
}
