// Package platform maps host architectures onto rpm architecture names.
package platform

// rpm architecture names the daemon cares about.
const (
	ArchNoarch  = "noarch"
	ArchX86_64  = "x86_64"
	ArchI386    = "i386"
	ArchI686    = "i686"
	ArchAarch64 = "aarch64"
	ArchArmhfp  = "armhfp"
	ArchPPC64LE = "ppc64le"
	ArchPPC64   = "ppc64"
	ArchS390X   = "s390x"
	ArchRISCV64 = "riscv64"
)

// goArchToRPM maps runtime.GOARCH values to rpm arch names.
var goArchToRPM = map[string]string{
	"amd64":   ArchX86_64,
	"386":     ArchI686,
	"arm64":   ArchAarch64,
	"arm":     "armv7hl",
	"ppc64":   ArchPPC64,
	"ppc64le": ArchPPC64LE,
	"s390x":   ArchS390X,
	"riscv64": ArchRISCV64,
}

// baseArches groups rpm arches by the $basearch value dnf substitutes for them.
var baseArches = map[string][]string{
	ArchI386:    {"i386", "i486", "i586", "i686", "athlon", "geode", "pentium3", "pentium4"},
	ArchX86_64:  {"x86_64", "amd64", "ia32e"},
	ArchAarch64: {"aarch64"},
	ArchArmhfp:  {"armv7hl", "armv7hnl", "armv8hl", "armv7l"},
	"arm":       {"armv5tel", "armv5tejl", "armv6l", "armv6hl"},
	ArchPPC64:   {"ppc64", "ppc64p7"},
	ArchPPC64LE: {"ppc64le"},
	ArchS390X:   {"s390x"},
	ArchRISCV64: {"riscv64"},
}
