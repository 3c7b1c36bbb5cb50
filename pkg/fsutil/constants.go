package fsutil

// File and directory permission constants used for everything the daemon writes
// below its cache and state directories.
const (
	FileModeDefault = 0o644 // -rw-r--r--: config files, exported metadata
	FileModeSecure  = 0o640 // -rw-r-----: downloaded metadata, state database

	DirModeDefault = 0o755 // drwxr-xr-x: config and data directories
	DirModeSecure  = 0o750 // drwxr-x---: cache and state directories
)

// AppName is the name of the application used in paths.
const AppName = "querykit"
