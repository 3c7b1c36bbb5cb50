// Package repodef reads dnf-style *.repo files.
package repodef

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/glorpus-work/querykit/pkg/errors"
	"gopkg.in/ini.v1"
)

// Vars are the substitution variables expanded in repository URLs and names
// ($releasever, $basearch, $arch and any configured extras).
type Vars map[string]string

// Repo is one repository section of a .repo file.
type Repo struct {
	ID         string
	Name       string
	BaseURLs   []string
	Metalink   string
	MirrorList string
	Enabled    bool
	GPGCheck   bool
	Type       string
	// Source is the file the section was read from.
	Source string
}

// HasLocation reports whether the repo names at least one way to reach it.
func (r *Repo) HasLocation() bool {
	return len(r.BaseURLs) > 0 || r.Metalink != "" || r.MirrorList != ""
}

var supportedTypes = []string{"", "rpm-md", "rpm", "yum"}

// LoadDir parses every *.repo file in dir and returns the enabled repositories
// sorted by id. Zero enabled repositories is an error.
func LoadDir(dir string, vars Vars) ([]*Repo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read repository directory %s", dir)
	}

	var repos []*Repo
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".repo" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		parsed, err := LoadFile(path, vars)
		if err != nil {
			return nil, err
		}
		for _, r := range parsed {
			if prev, ok := seen[r.ID]; ok {
				return nil, errors.Wrapf(errors.ErrRepoDefinition, "repository '%s' defined in both %s and %s", r.ID, prev, path)
			}
			seen[r.ID] = path
			if r.Enabled {
				repos = append(repos, r)
			}
		}
	}

	if len(repos) == 0 {
		return nil, errors.Wrap(errors.ErrNoRepositories, dir)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
	return repos, nil
}

// LoadFile parses a single .repo file. Disabled sections are returned with
// Enabled=false so callers can detect duplicate ids across files.
func LoadFile(path string, vars Vars) ([]*Repo, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowShadows:               true,
		AllowPythonMultilineValues: true,
		IgnoreInlineComment:        true,
	}, path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrRepoDefinition, "%s: %v", path, err)
	}

	var repos []*Repo
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		r, err := parseSection(section, vars)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
		r.Source = path
		repos = append(repos, r)
	}
	return repos, nil
}

func parseSection(section *ini.Section, vars Vars) (*Repo, error) {
	r := &Repo{
		ID:         vars.Expand(section.Name()),
		Name:       vars.Expand(section.Key("name").String()),
		Metalink:   vars.Expand(section.Key("metalink").String()),
		MirrorList: vars.Expand(section.Key("mirrorlist").String()),
		Enabled:    section.Key("enabled").MustBool(true),
		GPGCheck:   section.Key("gpgcheck").MustBool(false),
		Type:       strings.ToLower(section.Key("type").String()),
	}

	// baseurl may repeat, be comma separated or continue on indented lines.
	if section.HasKey("baseurl") {
		for _, value := range section.Key("baseurl").ValueWithShadows() {
			for _, u := range strings.FieldsFunc(value, func(c rune) bool {
				return c == ',' || c == ' ' || c == '\n' || c == '\t'
			}) {
				r.BaseURLs = append(r.BaseURLs, vars.Expand(u))
			}
		}
	}

	if !slices.Contains(supportedTypes, r.Type) {
		return nil, errors.Wrapf(errors.ErrRepoDefinition, "repository '%s' has unsupported type '%s'", r.ID, r.Type)
	}
	if r.Enabled && !r.HasLocation() {
		return nil, errors.Wrapf(errors.ErrNoBaseURL, "repository '%s'", r.ID)
	}
	return r, nil
}

// Expand substitutes $name and ${name} references. Unknown variables are kept verbatim.
func (v Vars) Expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(name string) string {
		if val, ok := v[name]; ok {
			return val
		}
		return "$" + name
	})
}
