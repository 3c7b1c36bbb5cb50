package testutil

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/glorpus-work/querykit/pkg/archive"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Entry is one relation entry of a fixture package.
type Entry struct {
	Name, Flags, Epoch, Ver, Rel string
}

// File is one path of a fixture package. Type is "", "dir" or "ghost".
type File struct {
	Path, Type string
}

// Pkg describes a package of a fixture repository.
type Pkg struct {
	PkgID   string
	Name    string
	Arch    string
	Epoch   int
	Version string
	Release string
	Summary string
	URL     string

	SizePackage   int64
	SizeInstalled int64
	Href          string
	Base          string

	// Relations by kind name (provides, requires, ...).
	Relations map[string][]Entry
	Files     []File
}

// primaryFile reports whether createrepo would list path in primary metadata.
func primaryFile(p string) bool {
	return strings.HasPrefix(p, "/etc/") || strings.Contains(p, "bin/")
}

var relationKinds = []string{"provides", "requires", "conflicts", "obsoletes", "recommends", "suggests", "supplements", "enhances"}

// FedoraPackages is a small Fedora-like package set.
func FedoraPackages() []Pkg {
	return []Pkg{
		{
			PkgID: "0b1f", Name: "bash", Arch: "x86_64", Version: "5.2.26", Release: "3.fc40",
			Summary: "The GNU Bourne Again shell", URL: "https://www.gnu.org/software/bash",
			SizePackage: 1834567, SizeInstalled: 8312456, Href: "Packages/b/bash-5.2.26-3.fc40.x86_64.rpm",
			Relations: map[string][]Entry{
				"provides": {{Name: "bash", Flags: "EQ", Epoch: "0", Ver: "5.2.26", Rel: "3.fc40"}, {Name: "/bin/sh"}, {Name: "config(bash)", Flags: "EQ", Epoch: "0", Ver: "5.2.26", Rel: "3.fc40"}},
				"requires": {{Name: "libc.so.6()(64bit)"}, {Name: "filesystem", Flags: "GE", Epoch: "0", Ver: "3"}},
			},
			Files: []File{{Path: "/usr/bin/bash"}, {Path: "/usr/bin/sh"}, {Path: "/etc/skel/.bashrc"}, {Path: "/usr/share/doc/bash", Type: "dir"}, {Path: "/usr/share/doc/bash/README"}},
		},
		{
			PkgID: "0b20", Name: "bash", Arch: "i686", Version: "5.2.26", Release: "3.fc40",
			Summary: "The GNU Bourne Again shell", URL: "https://www.gnu.org/software/bash",
			SizePackage: 1800000, SizeInstalled: 8000000, Href: "Packages/b/bash-5.2.26-3.fc40.i686.rpm",
			Relations: map[string][]Entry{"provides": {{Name: "bash", Flags: "EQ", Epoch: "0", Ver: "5.2.26", Rel: "3.fc40"}}},
			Files:     []File{{Path: "/usr/bin/bash"}},
		},
		{
			PkgID: "1c2d", Name: "bash-completion", Arch: "noarch", Epoch: 1, Version: "2.11", Release: "15.fc40",
			Summary: "Programmable completion for Bash", URL: "https://github.com/scop/bash-completion",
			Href: "Packages/b/bash-completion-2.11-15.fc40.noarch.rpm",
			Relations: map[string][]Entry{
				"provides":    {{Name: "bash-completion", Flags: "EQ", Epoch: "1", Ver: "2.11", Rel: "15.fc40"}},
				"requires":    {{Name: "bash", Flags: "GE", Epoch: "0", Ver: "4.1"}},
				"supplements": {{Name: "bash"}},
			},
			Files: []File{{Path: "/usr/share/bash-completion", Type: "dir"}, {Path: "/usr/share/bash-completion/bash_completion"}},
		},
		{
			PkgID: "2e3f", Name: "python3", Arch: "x86_64", Version: "3.12.2", Release: "2.fc40",
			Summary: "Version 3 of the Python interpreter", URL: "https://www.python.org/",
			SizePackage: 27000, SizeInstalled: 33000, Href: "Packages/p/python3-3.12.2-2.fc40.x86_64.rpm",
			Relations: map[string][]Entry{
				"provides": {{Name: "python3", Flags: "EQ", Epoch: "0", Ver: "3.12.2", Rel: "2.fc40"}, {Name: "python(abi)", Flags: "EQ", Epoch: "0", Ver: "3.12"}},
				"requires": {{Name: "python3-libs", Flags: "EQ", Epoch: "0", Ver: "3.12.2", Rel: "2.fc40"}},
			},
			Files: []File{{Path: "/usr/bin/python3"}},
		},
		{
			PkgID: "2e40", Name: "python3", Arch: "x86_64", Version: "3.12.3", Release: "1.fc40",
			Summary: "Version 3 of the Python interpreter", URL: "https://www.python.org/",
			SizePackage: 27500, SizeInstalled: 33500, Href: "Packages/p/python3-3.12.3-1.fc40.x86_64.rpm",
			Relations: map[string][]Entry{
				"provides":   {{Name: "python3", Flags: "EQ", Epoch: "0", Ver: "3.12.3", Rel: "1.fc40"}, {Name: "python(abi)", Flags: "EQ", Epoch: "0", Ver: "3.12"}},
				"requires":   {{Name: "python3-libs", Flags: "EQ", Epoch: "0", Ver: "3.12.3", Rel: "1.fc40"}},
				"obsoletes":  {{Name: "python3-tools", Flags: "LT", Epoch: "0", Ver: "3.0"}},
				"conflicts":  {{Name: "python3-legacy"}},
				"recommends": {{Name: "python3-pip"}},
			},
			Files: []File{{Path: "/usr/bin/python3"}, {Path: "/usr/bin/python3.12"}, {Path: "/usr/lib64/python3.12", Type: "dir"}},
		},
		{
			PkgID: "3a4b", Name: "python3-pip", Arch: "noarch", Version: "23.3.2", Release: "1.fc40",
			Summary: "A tool for installing and managing Python3 packages", URL: "https://pip.pypa.io/",
			SizePackage: 3100000, SizeInstalled: 12000000, Href: "Packages/p/python3-pip-23.3.2-1.fc40.noarch.rpm",
			Relations: map[string][]Entry{
				"provides": {{Name: "python3-pip", Flags: "EQ", Epoch: "0", Ver: "23.3.2", Rel: "1.fc40"}, {Name: "pip"}},
				"requires": {{Name: "python3"}},
				"enhances": {{Name: "python3"}},
				"suggests": {{Name: "python3-wheel"}},
			},
			Files: []File{{Path: "/usr/bin/pip3"}, {Path: "/usr/bin/pip"}},
		},
		{
			PkgID: "4c5d", Name: "nginx", Arch: "x86_64", Epoch: 1, Version: "1.24.0", Release: "4.fc40",
			Summary: "A high performance web server and reverse proxy server", URL: "https://nginx.org",
			SizePackage: 35000, SizeInstalled: 100000, Href: "Packages/n/nginx-1.24.0-4.fc40.x86_64.rpm",
			Relations: map[string][]Entry{
				"provides": {{Name: "nginx", Flags: "EQ", Epoch: "1", Ver: "1.24.0", Rel: "4.fc40"}, {Name: "webserver"}},
				"requires": {{Name: "nginx-filesystem"}},
				"suggests": {{Name: "logrotate"}},
			},
			Files: []File{{Path: "/usr/sbin/nginx"}, {Path: "/etc/nginx/nginx.conf"}, {Path: "/var/log/nginx", Type: "dir"}, {Path: "/run/nginx.pid", Type: "ghost"}},
		},
	}
}

// UpdatesPackages is a second repository carrying a newer bash.
func UpdatesPackages() []Pkg {
	return []Pkg{
		{
			PkgID: "9f01", Name: "bash", Arch: "x86_64", Version: "5.2.32", Release: "1.fc40",
			Summary: "The GNU Bourne Again shell", URL: "https://www.gnu.org/software/bash",
			SizePackage: 1840000, SizeInstalled: 8320000, Href: "Packages/b/bash-5.2.32-1.fc40.x86_64.rpm",
			Relations: map[string][]Entry{
				"provides": {{Name: "bash", Flags: "EQ", Epoch: "0", Ver: "5.2.32", Rel: "1.fc40"}, {Name: "/bin/sh"}},
			},
			Files: []File{{Path: "/usr/bin/bash"}, {Path: "/usr/bin/sh"}},
		},
	}
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func entryAttrs(e Entry) string {
	s := fmt.Sprintf(`name="%s"`, escape(e.Name))
	if e.Flags != "" {
		s += fmt.Sprintf(` flags="%s"`, e.Flags)
	}
	if e.Epoch != "" {
		s += fmt.Sprintf(` epoch="%s"`, e.Epoch)
	}
	if e.Ver != "" {
		s += fmt.Sprintf(` ver="%s"`, escape(e.Ver))
	}
	if e.Rel != "" {
		s += fmt.Sprintf(` rel="%s"`, escape(e.Rel))
	}
	return s
}

func fileElem(f File) string {
	if f.Type != "" {
		return fmt.Sprintf(`<file type="%s">%s</file>`, f.Type, escape(f.Path))
	}
	return "<file>" + escape(f.Path) + "</file>"
}

// PrimaryXML renders pkgs as primary.xml.
func PrimaryXML(pkgs []Pkg) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<metadata xmlns="http://linux.duke.edu/metadata/common" xmlns:rpm="http://linux.duke.edu/metadata/rpm" packages="%d">`+"\n", len(pkgs))
	for _, p := range pkgs {
		b.WriteString(`<package type="rpm">` + "\n")
		fmt.Fprintf(&b, "  <name>%s</name>\n  <arch>%s</arch>\n", escape(p.Name), p.Arch)
		fmt.Fprintf(&b, `  <version epoch="%d" ver="%s" rel="%s"/>`+"\n", p.Epoch, escape(p.Version), escape(p.Release))
		fmt.Fprintf(&b, `  <checksum type="sha256" pkgid="YES">%s</checksum>`+"\n", p.PkgID)
		fmt.Fprintf(&b, "  <summary>%s</summary>\n  <description>%s</description>\n  <url>%s</url>\n",
			escape(p.Summary), escape(p.Summary), escape(p.URL))
		fmt.Fprintf(&b, `  <size package="%d" installed="%d" archive="%d"/>`+"\n", p.SizePackage, p.SizeInstalled, p.SizeInstalled)
		if p.Base != "" {
			fmt.Fprintf(&b, `  <location xml:base="%s" href="%s"/>`+"\n", escape(p.Base), escape(p.Href))
		} else {
			fmt.Fprintf(&b, `  <location href="%s"/>`+"\n", escape(p.Href))
		}
		b.WriteString("  <format>\n    <rpm:license>MIT</rpm:license>\n")
		for _, kind := range relationKinds {
			entries := p.Relations[kind]
			if len(entries) == 0 {
				continue
			}
			fmt.Fprintf(&b, "    <rpm:%s>\n", kind)
			for _, e := range entries {
				fmt.Fprintf(&b, "      <rpm:entry %s/>\n", entryAttrs(e))
			}
			fmt.Fprintf(&b, "    </rpm:%s>\n", kind)
		}
		for _, f := range p.Files {
			if primaryFile(f.Path) {
				b.WriteString("    " + fileElem(f) + "\n")
			}
		}
		b.WriteString("  </format>\n</package>\n")
	}
	b.WriteString("</metadata>\n")
	return b.String()
}

// FilelistsXML renders pkgs as filelists.xml.
func FilelistsXML(pkgs []Pkg) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<filelists xmlns="http://linux.duke.edu/metadata/filelists" packages="%d">`+"\n", len(pkgs))
	for _, p := range pkgs {
		fmt.Fprintf(&b, `<package pkgid="%s" name="%s" arch="%s">`+"\n", p.PkgID, escape(p.Name), p.Arch)
		fmt.Fprintf(&b, `  <version epoch="%d" ver="%s" rel="%s"/>`+"\n", p.Epoch, escape(p.Version), escape(p.Release))
		for _, f := range p.Files {
			b.WriteString("  " + fileElem(f) + "\n")
		}
		b.WriteString("</package>\n")
	}
	b.WriteString("</filelists>\n")
	return b.String()
}

// WritePrimaryDB writes pkgs as a createrepo primary_db at dbPath.
func WritePrimaryDB(t *testing.T, dbPath string, pkgs []Pkg) {
	t.Helper()
	db := openDB(t, dbPath)
	defer func() { _ = db.Close() }()

	exec(t, db, `CREATE TABLE db_info (dbversion INTEGER, checksum TEXT);
CREATE TABLE packages (pkgKey INTEGER PRIMARY KEY, pkgId TEXT, name TEXT, arch TEXT, version TEXT,
	epoch TEXT, release TEXT, summary TEXT, description TEXT, url TEXT, time_file INTEGER,
	time_build INTEGER, rpm_license TEXT, rpm_vendor TEXT, rpm_group TEXT, rpm_buildhost TEXT,
	rpm_sourcerpm TEXT, rpm_header_start INTEGER, rpm_header_end INTEGER, rpm_packager TEXT,
	size_package INTEGER, size_installed INTEGER, size_archive INTEGER, location_href TEXT,
	location_base TEXT, checksum_type TEXT);
CREATE TABLE files (name TEXT, type TEXT, pkgKey INTEGER);
INSERT INTO db_info VALUES (10, '');`)
	for _, kind := range relationKinds {
		extra := ""
		if kind == "requires" {
			extra = ", pre BOOLEAN DEFAULT FALSE"
		}
		exec(t, db, fmt.Sprintf("CREATE TABLE %s (name TEXT, flags TEXT, epoch TEXT, version TEXT, release TEXT, pkgKey INTEGER%s)", kind, extra))
	}

	// Keys deliberately do not start at 1 so imports cannot rely on them.
	for i, p := range pkgs {
		key := 100 + i
		var base any
		if p.Base != "" {
			base = p.Base
		}
		exec(t, db, `INSERT INTO packages (pkgKey, pkgId, name, arch, version, epoch, release, summary, url,
	size_package, size_installed, location_href, location_base, checksum_type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'sha256')`,
			key, p.PkgID, p.Name, p.Arch, p.Version, strconv.Itoa(p.Epoch), p.Release, p.Summary, p.URL,
			p.SizePackage, p.SizeInstalled, p.Href, base)
		for _, kind := range relationKinds {
			for _, e := range p.Relations[kind] {
				exec(t, db, fmt.Sprintf("INSERT INTO %s (name, flags, epoch, version, release, pkgKey) VALUES (?, ?, ?, ?, ?, ?)", kind),
					e.Name, nullable(e.Flags), nullable(e.Epoch), nullable(e.Ver), nullable(e.Rel), key)
			}
		}
		for _, f := range p.Files {
			if primaryFile(f.Path) {
				exec(t, db, "INSERT INTO files (name, type, pkgKey) VALUES (?, ?, ?)", f.Path, fileType(f), key)
			}
		}
	}
}

// WriteFilelistsDB writes pkgs as a createrepo filelists_db at dbPath.
func WriteFilelistsDB(t *testing.T, dbPath string, pkgs []Pkg) {
	t.Helper()
	db := openDB(t, dbPath)
	defer func() { _ = db.Close() }()

	exec(t, db, `CREATE TABLE db_info (dbversion INTEGER, checksum TEXT);
CREATE TABLE packages (pkgKey INTEGER PRIMARY KEY, pkgId TEXT);
CREATE TABLE filelist (pkgKey INTEGER, dirname TEXT, filenames TEXT, filetypes TEXT);
INSERT INTO db_info VALUES (10, '');`)

	for i, p := range pkgs {
		key := 500 + i
		exec(t, db, "INSERT INTO packages (pkgKey, pkgId) VALUES (?, ?)", key, p.PkgID)

		byDir := map[string][]File{}
		for _, f := range p.Files {
			dir := path.Dir(f.Path)
			byDir[dir] = append(byDir[dir], f)
		}
		dirs := make([]string, 0, len(byDir))
		for d := range byDir {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)
		for _, d := range dirs {
			var names, types []string
			for _, f := range byDir[d] {
				names = append(names, path.Base(f.Path))
				types = append(types, fileType(f)[:1])
			}
			exec(t, db, "INSERT INTO filelist (pkgKey, dirname, filenames, filetypes) VALUES (?, ?, ?, ?)",
				key, d, strings.Join(names, "/"), strings.Join(types, ""))
		}
	}
}

func fileType(f File) string {
	if f.Type == "" {
		return "file"
	}
	return f.Type
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func openDB(t *testing.T, dbPath string) *sql.DB {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(dbPath), err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	return db
}

func exec(t *testing.T, db *sql.DB, q string, args ...any) {
	t.Helper()
	if _, err := db.Exec(q, args...); err != nil {
		t.Fatalf("Failed to execute %q: %v", q, err)
	}
}

// RepoFormat selects which metadata flavours WriteRepo publishes.
type RepoFormat int

const (
	// FormatXML publishes primary and filelists only.
	FormatXML RepoFormat = iota
	// FormatDB publishes the sqlite databases next to the XML documents.
	FormatDB
)

// RepoOptions controls WriteRepo.
type RepoOptions struct {
	Format   RepoFormat
	Ext      string // compression suffix, ".gz" when empty
	Revision string
}

// WriteRepo publishes pkgs as an rpm-md repository rooted at dir.
func WriteRepo(t *testing.T, dir string, pkgs []Pkg, opts RepoOptions) {
	t.Helper()
	if opts.Ext == "" {
		opts.Ext = ".gz"
	}
	if opts.Revision == "" {
		opts.Revision = "1712000000"
	}
	repodata := filepath.Join(dir, "repodata")
	if err := os.MkdirAll(repodata, 0o755); err != nil {
		t.Fatalf("Failed to create repodata: %v", err)
	}
	plain := t.TempDir()

	type entry struct{ typ, file string }
	var entries []entry
	write := func(typ, name, content string) {
		p := filepath.Join(plain, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", p, err)
		}
		entries = append(entries, entry{typ, p})
	}
	write("primary", "primary.xml", PrimaryXML(pkgs))
	write("filelists", "filelists.xml", FilelistsXML(pkgs))
	if opts.Format == FormatDB {
		p := filepath.Join(plain, "primary.sqlite")
		WritePrimaryDB(t, p, pkgs)
		entries = append(entries, entry{"primary_db", p})
		f := filepath.Join(plain, "filelists.sqlite")
		WriteFilelistsDB(t, f, pkgs)
		entries = append(entries, entry{"filelists_db", f})
	}

	am := archive.NewManager()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<repomd xmlns="http://linux.duke.edu/metadata/repo" xmlns:rpm="http://linux.duke.edu/metadata/rpm">` + "\n")
	fmt.Fprintf(&b, "  <revision>%s</revision>\n", opts.Revision)
	for _, e := range entries {
		openSum, openSize := FileSHA256(t, e.file)
		tmp := e.file + opts.Ext
		if err := am.Compress(context.Background(), e.file, tmp); err != nil {
			t.Fatalf("Failed to compress %s: %v", e.file, err)
		}
		sum, size := FileSHA256(t, tmp)
		name := sum + "-" + filepath.Base(tmp)
		if err := os.Rename(tmp, filepath.Join(repodata, name)); err != nil {
			t.Fatalf("Failed to publish %s: %v", name, err)
		}
		fmt.Fprintf(&b, `  <data type="%s">`+"\n", e.typ)
		fmt.Fprintf(&b, `    <checksum type="sha256">%s</checksum>`+"\n", sum)
		fmt.Fprintf(&b, `    <open-checksum type="sha256">%s</open-checksum>`+"\n", openSum)
		fmt.Fprintf(&b, `    <location href="repodata/%s"/>`+"\n", name)
		fmt.Fprintf(&b, "    <timestamp>%s</timestamp>\n    <size>%d</size>\n    <open-size>%d</open-size>\n", opts.Revision, size, openSize)
		if strings.HasSuffix(e.typ, "_db") {
			b.WriteString("    <database_version>10</database_version>\n")
		}
		b.WriteString("  </data>\n")
	}
	b.WriteString("</repomd>\n")

	if err := os.WriteFile(filepath.Join(repodata, "repomd.xml"), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Failed to write repomd.xml: %v", err)
	}
}

// FileSHA256 returns the hex sha256 and size of the file at p.
func FileSHA256(t *testing.T, p string) (string, int64) {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", p, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), int64(len(data))
}
