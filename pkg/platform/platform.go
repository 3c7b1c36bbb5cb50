package platform

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// kernelArch is swapped in tests.
var kernelArch = host.KernelArch

// DetectArch returns the rpm architecture of the running host. It asks the
// kernel first (uname machine) and falls back to the Go build target.
func DetectArch() string {
	if arch, err := kernelArch(); err == nil && arch != "" {
		return NormalizeArch(arch)
	}
	if arch, ok := goArchToRPM[runtime.GOARCH]; ok {
		return arch
	}
	return runtime.GOARCH
}

// NormalizeArch lower-cases arch and maps Go architecture names onto rpm names.
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	if rpmArch, ok := goArchToRPM[arch]; ok {
		return rpmArch
	}
	return arch
}

// BaseArch returns the $basearch value for an rpm arch. Unknown arches map to themselves.
func BaseArch(arch string) string {
	arch = NormalizeArch(arch)
	for base, members := range baseArches {
		for _, m := range members {
			if m == arch {
				return base
			}
		}
	}
	return arch
}

// DefaultArches returns the arch filter applied to available packages: noarch plus arch.
func DefaultArches(arch string) []string {
	arch = NormalizeArch(arch)
	if arch == "" || arch == ArchNoarch {
		return []string{ArchNoarch}
	}
	return []string{ArchNoarch, arch}
}
