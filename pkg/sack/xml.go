package sack

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/glorpus-work/querykit/pkg/errors"
)

type xmlEntry struct {
	Name    string `xml:"name,attr"`
	Flags   string `xml:"flags,attr"`
	Epoch   string `xml:"epoch,attr"`
	Version string `xml:"ver,attr"`
	Release string `xml:"rel,attr"`
}

type xmlFile struct {
	Type string `xml:"type,attr"`
	Path string `xml:",chardata"`
}

func (f xmlFile) kind() string {
	switch f.Type {
	case "dir", "ghost":
		return f.Type
	default:
		return "file"
	}
}

type xmlFormat struct {
	Provides    []xmlEntry `xml:"provides>entry"`
	Requires    []xmlEntry `xml:"requires>entry"`
	Conflicts   []xmlEntry `xml:"conflicts>entry"`
	Obsoletes   []xmlEntry `xml:"obsoletes>entry"`
	Recommends  []xmlEntry `xml:"recommends>entry"`
	Suggests    []xmlEntry `xml:"suggests>entry"`
	Supplements []xmlEntry `xml:"supplements>entry"`
	Enhances    []xmlEntry `xml:"enhances>entry"`
	Files       []xmlFile  `xml:"file"`
}

func (f *xmlFormat) relations(kind RelationKind) []xmlEntry {
	switch kind {
	case Provides:
		return f.Provides
	case Requires:
		return f.Requires
	case Conflicts:
		return f.Conflicts
	case Obsoletes:
		return f.Obsoletes
	case Recommends:
		return f.Recommends
	case Suggests:
		return f.Suggests
	case Supplements:
		return f.Supplements
	case Enhances:
		return f.Enhances
	}
	return nil
}

type xmlVersion struct {
	Epoch   string `xml:"epoch,attr"`
	Version string `xml:"ver,attr"`
	Release string `xml:"rel,attr"`
}

type xmlPrimaryPackage struct {
	Name     string     `xml:"name"`
	Arch     string     `xml:"arch"`
	Version  xmlVersion `xml:"version"`
	Checksum struct {
		Value string `xml:",chardata"`
	} `xml:"checksum"`
	Summary string `xml:"summary"`
	URL     string `xml:"url"`
	Size    struct {
		Package   int64 `xml:"package,attr"`
		Installed int64 `xml:"installed,attr"`
	} `xml:"size"`
	Location struct {
		Href string `xml:"href,attr"`
		Base string `xml:"base,attr"`
	} `xml:"location"`
	Format xmlFormat `xml:"format"`
}

type xmlFilelistsPackage struct {
	PkgID string    `xml:"pkgid,attr"`
	Files []xmlFile `xml:"file"`
}

// eachElement decodes every element named local from r into a fresh T and
// hands it to fn.
func eachElement[T any](ctx context.Context, r io.Reader, local string, fn func(*T) error) error {
	d := xml.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", errors.ErrMetadataParse, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != local {
			continue
		}
		v := new(T)
		if err := d.DecodeElement(v, &se); err != nil {
			return fmt.Errorf("%w: %w", errors.ErrMetadataParse, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

func importPrimaryXML(ctx context.Context, tx *sql.Tx, repo string, r io.Reader) error {
	insPkg, err := tx.PrepareContext(ctx, `INSERT INTO packages (repo, pkgId, name, arch, epoch, version, release,
	summary, url, size_package, size_installed, location_href, location_base)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = insPkg.Close() }()
	insRel, err := tx.PrepareContext(ctx, `INSERT INTO relations (pkgKey, kind, name, flags, epoch, version, release)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = insRel.Close() }()
	insFile, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO files (pkgKey, name, type) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = insFile.Close() }()

	return eachElement(ctx, r, "package", func(p *xmlPrimaryPackage) error {
		epoch, _ := strconv.Atoi(p.Version.Epoch)
		var pkgID any
		if id := strings.TrimSpace(p.Checksum.Value); id != "" {
			pkgID = id
		}
		res, err := insPkg.ExecContext(ctx, repo, pkgID, strings.TrimSpace(p.Name), strings.TrimSpace(p.Arch),
			epoch, p.Version.Version, p.Version.Release, strings.TrimSpace(p.Summary), strings.TrimSpace(p.URL),
			p.Size.Package, p.Size.Installed, p.Location.Href, p.Location.Base)
		if err != nil {
			return err
		}
		key, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, kind := range RelationKinds {
			for _, e := range p.Format.relations(kind) {
				if _, err := insRel.ExecContext(ctx, key, string(kind), e.Name, e.Flags, e.Epoch, e.Version, e.Release); err != nil {
					return err
				}
			}
		}
		for _, f := range p.Format.Files {
			if _, err := insFile.ExecContext(ctx, key, strings.TrimSpace(f.Path), f.kind()); err != nil {
				return err
			}
		}
		return nil
	})
}

func importFilelistsXML(ctx context.Context, tx *sql.Tx, keys map[string]int64, r io.Reader) error {
	insFile, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO files (pkgKey, name, type) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = insFile.Close() }()

	return eachElement(ctx, r, "package", func(p *xmlFilelistsPackage) error {
		key, ok := keys[p.PkgID]
		if !ok {
			return nil
		}
		for _, f := range p.Files {
			if _, err := insFile.ExecContext(ctx, key, strings.TrimSpace(f.Path), f.kind()); err != nil {
				return err
			}
		}
		return nil
	})
}
