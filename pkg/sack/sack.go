// Package sack is the repository index: the set of available packages of one
// distribution, built from rpm-md metadata into a private SQLite database and
// queried with substring, glob and relation filters.
package sack

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/glorpus-work/querykit/pkg/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:generate mockgen -destination=mocks/sack.go -package=mocks . Sack

// Sack is an opened repository index. It is safe for concurrent use.
type Sack interface {
	// Query starts a filter chain over every package of the index.
	Query() Query
	// Files lists the paths shipped by pkg, sorted.
	Files(ctx context.Context, pkg Package) ([]string, error)
	// Relations lists pkg's relations of one kind in metadata order.
	Relations(ctx context.Context, pkg Package, kind RelationKind) ([]Relation, error)
	// Info describes the index.
	Info() Info
	// Close releases the index. Queries started afterwards fail with ErrSackClosed.
	Close() error
}

// Info describes a built index.
type Info struct {
	Distro   string
	Path     string
	Packages int
	BuiltAt  time.Time
	Repos    []RepoInfo
}

// RepoInfo describes one repository imported into an index.
type RepoInfo struct {
	ID       string
	BaseURL  string
	Revision string
}

type index struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

func (i *index) acquire() (*sql.DB, func(), error) {
	if i == nil {
		return nil, nil, errors.ErrSackClosed
	}
	i.mu.RLock()
	if i.closed {
		i.mu.RUnlock()
		return nil, nil, errors.ErrSackClosed
	}
	return i.db, i.mu.RUnlock, nil
}

type sqliteSack struct {
	idx     *index
	info    Info
	onClose func(path string) error
}

// Open opens the index at path read-only. onClose, when set, runs after the
// database is closed (e.g. to delete a superseded index file).
func Open(ctx context.Context, path string, onClose func(path string) error) (Sack, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=query_only(1)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open index %s", path)
	}

	info, err := readInfo(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to read index %s", path)
	}
	info.Path = path

	return &sqliteSack{idx: &index{db: db}, info: info, onClose: onClose}, nil
}

func readInfo(ctx context.Context, db *sql.DB) (Info, error) {
	var info Info
	meta := map[string]string{}
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return info, err
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return info, err
		}
		meta[k] = v
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return info, err
	}

	if meta[metaSchema] != strconv.Itoa(SchemaVersion) {
		return info, errors.Wrapf(errors.ErrSackSchema, "got %q, want %d", meta[metaSchema], SchemaVersion)
	}
	info.Distro = meta[metaDistro]
	info.Packages, _ = strconv.Atoi(meta[metaPackages])
	if t, err := time.Parse(time.RFC3339, meta[metaBuiltAt]); err == nil {
		info.BuiltAt = t
	}

	repoRows, err := db.QueryContext(ctx, "SELECT id, base_url, revision FROM repos ORDER BY id")
	if err != nil {
		return info, err
	}
	defer func() { _ = repoRows.Close() }()
	for repoRows.Next() {
		var r RepoInfo
		if err := repoRows.Scan(&r.ID, &r.BaseURL, &r.Revision); err != nil {
			return info, err
		}
		info.Repos = append(info.Repos, r)
	}
	return info, repoRows.Err()
}

func (s *sqliteSack) Query() Query {
	return Query{idx: s.idx}
}

func (s *sqliteSack) Files(ctx context.Context, pkg Package) ([]string, error) {
	db, release, err := s.idx.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.QueryContext(ctx, "SELECT name FROM files WHERE pkgKey = ? ORDER BY name", pkg.Key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	return files, rows.Err()
}

func (s *sqliteSack) Relations(ctx context.Context, pkg Package, kind RelationKind) ([]Relation, error) {
	db, release, err := s.idx.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.QueryContext(ctx,
		"SELECT name, flags, epoch, version, release FROM relations WHERE pkgKey = ? AND kind = ? ORDER BY rowid",
		pkg.Key, string(kind))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	rels := []Relation{}
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.Name, &r.Flags, &r.Epoch, &r.Version, &r.Release); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (s *sqliteSack) Info() Info {
	return s.info
}

// Close waits for in-flight queries, closes the database and runs onClose once.
func (s *sqliteSack) Close() error {
	s.idx.mu.Lock()
	if s.idx.closed {
		s.idx.mu.Unlock()
		return nil
	}
	s.idx.closed = true
	err := s.idx.db.Close()
	s.idx.mu.Unlock()

	if s.onClose != nil {
		if cerr := s.onClose(s.info.Path); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
