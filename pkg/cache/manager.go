package cache

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
)

// DefaultManager implements the Manager interface for cache operations.
// The cache root holds one directory per distribution; each contains one
// directory of downloaded metadata per repository plus the built indexes.
type DefaultManager struct {
	directory string
}

// NewManager creates a new cache manager.
func NewManager(directory string) *DefaultManager {
	return &DefaultManager{
		directory: directory,
	}
}

// IsSackFile reports whether name is a built repository index.
func IsSackFile(name string) bool {
	return strings.HasPrefix(name, SackPrefix) && strings.HasSuffix(name, SackSuffix)
}

// Clean removes cached files according to the specified options.
func (cm *DefaultManager) Clean(options CleanOptions) (*CleanResult, error) {
	result := &CleanResult{}

	// Default to cleaning both if no specific flags are set
	if !options.Metadata && !options.Indexes {
		options.Metadata = true
		options.Indexes = true
	}

	distros, err := cm.distroDirs()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list cache directory")
	}
	for _, id := range distros {
		if len(options.Distros) > 0 && !slices.Contains(options.Distros, id) {
			continue
		}
		metaFreed, indexFreed, err := cleanDistro(filepath.Join(cm.directory, id), options)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to clean cache for %s", id)
		}
		result.MetadataFreed += metaFreed
		result.IndexFreed += indexFreed
	}
	result.TotalFreed = result.MetadataFreed + result.IndexFreed
	return result, nil
}

func cleanDistro(dir string, options CleanOptions) (int64, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}

	var metaFreed, indexFreed int64
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.IsDir() && options.Metadata:
			size, err := cleanDirectory(path)
			if err != nil {
				return 0, 0, err
			}
			metaFreed += size
		case !entry.IsDir() && IsSackFile(entry.Name()) && options.Indexes:
			info, err := entry.Info()
			if err != nil {
				return 0, 0, err
			}
			if err := fsutil.RemoveIfExists(path); err != nil {
				return 0, 0, errors.Wrapf(err, "failed to remove %s", path)
			}
			indexFreed += info.Size()
		}
	}
	return metaFreed, indexFreed, nil
}

// GetInfo returns information about the cache.
func (cm *DefaultManager) GetInfo() (*Info, error) {
	info := &Info{Directory: cm.directory}

	distros, err := cm.distroDirs()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get cache info")
	}
	for _, id := range distros {
		usage, metaFiles, indexFiles, err := distroUsage(filepath.Join(cm.directory, id))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get cache info for %s", id)
		}
		usage.ID = id
		info.Distros = append(info.Distros, usage)
		info.MetadataSize += usage.MetadataSize
		info.MetadataFiles += metaFiles
		info.IndexSize += usage.IndexSize
		info.IndexFiles += indexFiles
	}
	info.TotalSize = info.MetadataSize + info.IndexSize
	return info, nil
}

func distroUsage(dir string) (DistroUsage, int, int, error) {
	var usage DistroUsage
	var metaFiles, indexFiles int

	entries, err := os.ReadDir(dir)
	if err != nil {
		return usage, 0, 0, err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return usage, 0, 0, err
		}
		if info.ModTime().After(usage.LastModified) {
			usage.LastModified = info.ModTime()
		}
		if entry.IsDir() {
			size, files, err := fsutil.DirSize(filepath.Join(dir, entry.Name()))
			if err != nil {
				return usage, 0, 0, err
			}
			usage.MetadataSize += size
			metaFiles += files
			continue
		}
		if IsSackFile(entry.Name()) {
			usage.IndexSize += info.Size()
			indexFiles++
		}
	}
	return usage, metaFiles, indexFiles, nil
}

// GetDirectory returns the cache directory path.
func (cm *DefaultManager) GetDirectory() string {
	return cm.directory
}

// SetDirectory sets the cache directory path.
func (cm *DefaultManager) SetDirectory(dir string) error {
	if dir == "" {
		return ErrCacheDirectory
	}
	cm.directory = dir
	return nil
}

func (cm *DefaultManager) distroDirs() ([]string, error) {
	entries, err := os.ReadDir(cm.directory)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// cleanDirectory empties a directory and returns bytes freed.
func cleanDirectory(dir string) (int64, error) {
	size, _, err := fsutil.DirSize(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "error walking directory %s", dir)
	}

	if err := os.RemoveAll(dir); err != nil {
		return 0, errors.Wrapf(err, "failed to remove directory %s", dir)
	}

	// Recreate empty directory with cache-specific permissions
	if err := os.MkdirAll(dir, CacheDirPerm); err != nil {
		return size, errors.Wrapf(err, "failed to recreate directory %s", dir)
	}
	return size, nil
}
