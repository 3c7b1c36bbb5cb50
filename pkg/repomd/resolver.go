package repomd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/repodef"
)

// Getter reads small remote documents. download.Manager satisfies it.
type Getter interface {
	Get(ctx context.Context, u *url.URL) ([]byte, error)
}

// Resolver finds and fetches repository indexes.
type Resolver struct {
	getter  Getter
	schemes []string
}

// NewResolver creates a Resolver. Only mirrors whose scheme is in schemes are
// used; an empty list allows https, http and file.
func NewResolver(getter Getter, schemes []string) *Resolver {
	if len(schemes) == 0 {
		schemes = []string{"https", "http", "file"}
	}
	return &Resolver{getter: getter, schemes: schemes}
}

// Remote is a resolved repository: where it lives and its current index.
type Remote struct {
	BaseURL *url.URL
	RepoMD  *RepoMD
}

// Resolve tries every candidate base URL of repo (baseurl entries first, then
// metalink mirrors, then mirrorlist entries) until one serves repomd.xml.
func (r *Resolver) Resolve(ctx context.Context, repo *repodef.Repo) (*Remote, error) {
	candidates, err := r.candidates(ctx, repo)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.Wrapf(errors.ErrNoBaseURL, "repository '%s'", repo.ID)
	}

	var lastErr error
	for _, base := range candidates {
		md, err := r.Fetch(ctx, base)
		if err == nil {
			return &Remote{BaseURL: base, RepoMD: md}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug("Mirror failed", logger.Fields{"repo": repo.ID, "url": base.Redacted(), "error": err})
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "repository '%s': all %d mirrors failed", repo.ID, len(candidates))
}

// Fetch downloads and decodes base/repodata/repomd.xml.
func (r *Resolver) Fetch(ctx context.Context, base *url.URL) (*RepoMD, error) {
	data, err := r.getter.Get(ctx, base.JoinPath(Path))
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (r *Resolver) candidates(ctx context.Context, repo *repodef.Repo) ([]*url.URL, error) {
	var out []*url.URL
	for _, raw := range repo.BaseURLs {
		if u := r.parseBase(raw); u != nil {
			out = append(out, u)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	if repo.Metalink != "" {
		mirrors, err := r.fromMetalink(ctx, repo.Metalink)
		if err != nil {
			return nil, errors.Wrapf(err, "repository '%s' metalink", repo.ID)
		}
		out = append(out, mirrors...)
	}
	if len(out) == 0 && repo.MirrorList != "" {
		mirrors, err := r.fromMirrorList(ctx, repo.MirrorList)
		if err != nil {
			return nil, errors.Wrapf(err, "repository '%s' mirrorlist", repo.ID)
		}
		out = append(out, mirrors...)
	}
	return out, nil
}

func (r *Resolver) parseBase(raw string) *url.URL {
	u, err := url.Parse(WithTrailingSlash(strings.TrimSpace(raw)))
	if err != nil || !slices.Contains(r.schemes, u.Scheme) {
		return nil
	}
	return u
}

type metalink struct {
	Files []struct {
		Name string        `xml:"name,attr"`
		URLs []metalinkURL `xml:"resources>url"`
	} `xml:"files>file"`
}

type metalinkURL struct {
	Protocol   string `xml:"protocol,attr"`
	Preference int    `xml:"preference,attr"`
	Value      string `xml:",chardata"`
}

func (r *Resolver) fromMetalink(ctx context.Context, raw string) ([]*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRepoDefinition, err.Error())
	}
	data, err := r.getter.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	return ParseMetalink(data, r.schemes)
}

// ParseMetalink returns the repository base URLs listed for repomd.xml in a
// metalink document, highest preference first.
func ParseMetalink(data []byte, schemes []string) ([]*url.URL, error) {
	var ml metalink
	if err := xml.Unmarshal(data, &ml); err != nil {
		return nil, errors.Wrap(errors.ErrMetadataParse, err.Error())
	}

	var urls []metalinkURL
	for _, f := range ml.Files {
		if f.Name == "repomd.xml" {
			urls = append(urls, f.URLs...)
		}
	}
	sort.SliceStable(urls, func(i, j int) bool { return urls[i].Preference > urls[j].Preference })

	var out []*url.URL
	for _, mu := range urls {
		raw := strings.TrimSuffix(strings.TrimSpace(mu.Value), Path)
		u, err := url.Parse(WithTrailingSlash(raw))
		if err != nil || !slices.Contains(schemes, u.Scheme) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *Resolver) fromMirrorList(ctx context.Context, raw string) ([]*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRepoDefinition, err.Error())
	}
	data, err := r.getter.Get(ctx, u)
	if err != nil {
		return nil, err
	}

	var out []*url.URL
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if base := r.parseBase(line); base != nil {
			out = append(out, base)
		}
	}
	return out, scanner.Err()
}
