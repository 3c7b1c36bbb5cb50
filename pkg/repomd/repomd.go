// Package repomd reads rpm-md repository indexes (repodata/repomd.xml) and
// resolves where a repository actually lives (baseurl, metalink or mirrorlist).
package repomd

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/glorpus-work/querykit/pkg/errors"
)

// Metadata types the index loader understands.
const (
	TypePrimary     = "primary"
	TypePrimaryDB   = "primary_db"
	TypeFilelists   = "filelists"
	TypeFilelistsDB = "filelists_db"
)

// Path is the location of repomd.xml relative to a repository base URL.
const Path = "repodata/repomd.xml"

// RepoMD is the decoded repomd.xml.
type RepoMD struct {
	XMLName  xml.Name `xml:"repomd"`
	Revision string   `xml:"revision"`
	Data     []Data   `xml:"data"`
}

// Data is one <data> entry of repomd.xml.
type Data struct {
	Type            string   `xml:"type,attr"`
	Location        Location `xml:"location"`
	Checksum        Checksum `xml:"checksum"`
	OpenChecksum    Checksum `xml:"open-checksum"`
	Timestamp       int64    `xml:"timestamp"`
	Size            int64    `xml:"size"`
	OpenSize        int64    `xml:"open-size"`
	DatabaseVersion int      `xml:"database_version"`
}

// Location points at a metadata file, optionally on another host (xml:base).
type Location struct {
	Href string `xml:"href,attr"`
	Base string `xml:"base,attr"`
}

// Checksum is a typed hex digest.
type Checksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Parse decodes repomd.xml.
func Parse(data []byte) (*RepoMD, error) {
	var md RepoMD
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&md); err != nil {
		return nil, errors.Wrap(errors.ErrMetadataParse, err.Error())
	}
	for i := range md.Data {
		md.Data[i].Checksum.Value = strings.TrimSpace(md.Data[i].Checksum.Value)
		md.Data[i].OpenChecksum.Value = strings.TrimSpace(md.Data[i].OpenChecksum.Value)
	}
	return &md, nil
}

// Find returns the first entry matching one of types, in the order given.
func (md *RepoMD) Find(types ...string) *Data {
	for _, t := range types {
		for i := range md.Data {
			if md.Data[i].Type == t {
				return &md.Data[i]
			}
		}
	}
	return nil
}

// URL resolves the entry's location against the repository base URL.
func (d *Data) URL(base *url.URL) (*url.URL, error) {
	root := base
	if d.Location.Base != "" {
		b, err := url.Parse(WithTrailingSlash(d.Location.Base))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrMetadataParse, "location base %q: %v", d.Location.Base, err)
		}
		root = base.ResolveReference(b)
	}
	ref, err := url.Parse(d.Location.Href)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrMetadataParse, "location href %q: %v", d.Location.Href, err)
	}
	return root.ResolveReference(ref), nil
}

// IsDatabase reports whether the entry is a pre-built sqlite database.
func (d *Data) IsDatabase() bool {
	return strings.HasSuffix(d.Type, "_db")
}

// WithTrailingSlash makes s usable as a base for relative references.
func WithTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
