package cache

import "github.com/glorpus-work/querykit/pkg/fsutil"

// CacheDirPerm is the permission mode for recreated cache directories.
var CacheDirPerm = fsutil.DirModeSecure

const (
	// SackPrefix and SackSuffix frame the file names of built repository indexes.
	SackPrefix = "sack-"
	SackSuffix = ".sqlite"
)
