package sack

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/cavaliergopher/rpm"
)

// Package is one available package of a repository index.
type Package struct {
	Key     int64
	Repo    string
	Name    string
	Arch    string
	Epoch   int
	Version string
	Release string
	Summary string
	URL     string

	// Sizes in bytes; zero when the metadata does not say.
	DownloadSize int64
	InstallSize  int64

	LocationHref string
	LocationBase string
	RepoBaseURL  string
}

// EVR renders [epoch:]version-release.
func (p Package) EVR() string {
	evr := p.Version + "-" + p.Release
	if p.Epoch > 0 {
		evr = strconv.Itoa(p.Epoch) + ":" + evr
	}
	return evr
}

// NEVRA renders name-[epoch:]version-release.arch.
func (p Package) NEVRA() string {
	return p.Name + "-" + p.EVR() + "." + p.Arch
}

// RemoteLocation returns the absolute download URL of the package, or "" when
// it cannot be built or its scheme is not one of schemes.
func (p Package) RemoteLocation(schemes []string) string {
	base := p.LocationBase
	if base == "" {
		base = p.RepoBaseURL
	}
	if p.LocationHref == "" {
		return ""
	}

	href, err := url.Parse(p.LocationHref)
	if err != nil {
		return ""
	}
	if !href.IsAbs() {
		if base == "" {
			return ""
		}
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		href = b.ResolveReference(href)
	}
	if !slices.Contains(schemes, href.Scheme) {
		return ""
	}
	return href.String()
}

// evr adapts a Package to rpm.Version; Package's own field names collide
// with the interface's method names.
type evr struct{ p *Package }

func (e evr) Epoch() int      { return e.p.Epoch }
func (e evr) Version() string { return e.p.Version }
func (e evr) Release() string { return e.p.Release }

// CompareEVR orders a and b by epoch, version and release using rpm's rules.
func CompareEVR(a, b *Package) int {
	return rpm.Compare(evr{a}, evr{b})
}

// Latest returns the package with the highest EVR, preferring the earliest
// element on ties. It returns nil for an empty slice.
func Latest(pkgs []Package) *Package {
	var best *Package
	for i := range pkgs {
		if best == nil || CompareEVR(&pkgs[i], best) > 0 {
			best = &pkgs[i]
		}
	}
	return best
}
