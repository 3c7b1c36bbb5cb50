package fsutil

import (
	"os"
	"path/filepath"
)

// executable is swapped in tests.
var executable = os.Executable

// ExecutableDir returns the directory holding the running binary with symlinks resolved.
func ExecutableDir() (string, error) {
	exe, err := executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// ResolveInstallRelative makes a relative path absolute against the directory of
// the running binary. Absolute and empty paths are returned unchanged.
func ResolveInstallRelative(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return path, nil
	}
	dir, err := ExecutableDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, path), nil
}
