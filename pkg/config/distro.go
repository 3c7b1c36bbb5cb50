package config

import (
	"maps"
	"path/filepath"
	"slices"

	"dario.cat/mergo"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
	"github.com/glorpus-work/querykit/pkg/platform"
)

// Distro configures one distribution's repository set.
type Distro struct {
	ID string `yaml:"id,omitempty" toml:"id"`

	// Arch is the target rpm architecture; empty means the host's.
	Arch       string `yaml:"arch,omitempty" toml:"arch"`
	BaseArch   string `yaml:"basearch,omitempty" toml:"basearch"`
	ReleaseVer string `yaml:"releasever,omitempty" toml:"releasever"`

	// ReposDir holds the *.repo files; CacheDir holds downloaded metadata and built indexes.
	ReposDir string `yaml:"reposdir,omitempty" toml:"reposdir"`
	CacheDir string `yaml:"cachedir,omitempty" toml:"cachedir"`

	// Arches limits the available package set; empty means noarch plus Arch.
	Arches        []string          `yaml:"arches,omitempty" toml:"arches"`
	// LoadFilelists imports filelists.xml so file queries see every path;
	// unset means true.
	LoadFilelists *bool             `yaml:"load_filelists,omitempty" toml:"load_filelists"`
	Substitutions map[string]string `yaml:"substitutions,omitempty" toml:"substitutions"`

	// Neither is supported; both must stay false.
	GPGCheck bool `yaml:"gpgcheck,omitempty" toml:"gpgcheck"`
	Zchunk   bool `yaml:"zchunk,omitempty" toml:"zchunk"`
}

// DefaultDistros returns the stock distribution table.
func DefaultDistros() []*Distro {
	return []*Distro{
		{ID: "fedora", ReleaseVer: "40"},
		{ID: "tumbleweed"},
		{ID: "leap", ReleaseVer: "15.6"},
		{ID: "openmandriva", ReleaseVer: "4.1"},
		{ID: "mageia", ReleaseVer: "7"},
		{ID: "centos", ReleaseVer: "9-stream"},
		{ID: "packman-leap", ReleaseVer: "15.6"},
		{ID: "packman-tumbleweed"},
		{ID: "rpmfusion", ReleaseVer: "40"},
	}
}

// ResolveDistros returns every configured distribution with Defaults merged in
// and all derived values (arch, basearch, paths, arch filter) filled.
func (c *Config) ResolveDistros() ([]Distro, error) {
	dataDir, err := fsutil.ResolveInstallRelative(c.Settings.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve data_dir")
	}
	cacheDir, err := fsutil.ResolveInstallRelative(c.Settings.CacheDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve cache_dir")
	}

	out := make([]Distro, 0, len(c.Distros))
	for _, d := range c.Distros {
		resolved, err := d.resolve(c.Defaults, dataDir, cacheDir)
		if err != nil {
			return nil, errors.Wrapf(err, "distribution %s", d.ID)
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (d *Distro) resolve(defaults Distro, dataDir, cacheDir string) (Distro, error) {
	r := d.Clone()
	if err := mergo.Merge(&r, defaults.Clone()); err != nil {
		return Distro{}, err
	}

	if r.Arch == "" {
		r.Arch = platform.DetectArch()
	} else {
		r.Arch = platform.NormalizeArch(r.Arch)
	}
	if r.BaseArch == "" {
		r.BaseArch = platform.BaseArch(r.Arch)
	}

	var err error
	if r.ReposDir == "" {
		r.ReposDir = filepath.Join(dataDir, r.ID)
	} else if r.ReposDir, err = fsutil.ResolveInstallRelative(r.ReposDir); err != nil {
		return Distro{}, err
	}
	if r.CacheDir == "" {
		r.CacheDir = filepath.Join(cacheDir, r.ID)
	} else if r.CacheDir, err = fsutil.ResolveInstallRelative(r.CacheDir); err != nil {
		return Distro{}, err
	}

	if len(r.Arches) == 0 {
		r.Arches = platform.DefaultArches(r.Arch)
	}
	if r.LoadFilelists == nil {
		r.LoadFilelists = ptr(true)
	}
	return r, nil
}

// Clone returns a deep copy so resolved values never alias config slices or maps.
func (d *Distro) Clone() Distro {
	c := *d
	c.Arches = slices.Clone(d.Arches)
	c.Substitutions = maps.Clone(d.Substitutions)
	if d.LoadFilelists != nil {
		c.LoadFilelists = ptr(*d.LoadFilelists)
	}
	return c
}

// Filelists reports whether file lists are loaded for the distribution.
func (d Distro) Filelists() bool {
	return d.LoadFilelists == nil || *d.LoadFilelists
}

func ptr[T any](v T) *T { return &v }

// Vars returns the dnf substitution variables for the distribution's .repo files.
func (d Distro) Vars() map[string]string {
	vars := map[string]string{
		"arch":     d.Arch,
		"basearch": d.BaseArch,
	}
	if d.ReleaseVer != "" {
		vars["releasever"] = d.ReleaseVer
	}
	for k, v := range d.Substitutions {
		vars[k] = v
	}
	return vars
}
