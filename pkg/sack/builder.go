package sack

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
)

// Builder writes a new index file. Repositories are added one at a time and
// their metadata imported either from the prebuilt sqlite databases or from
// the XML documents. A Builder is not safe for concurrent use.
type Builder struct {
	path   string
	distro string
	db     *sql.DB
	conn   *sql.Conn
	repos  map[string]bool
}

// NewBuilder creates an empty index at path, replacing any file already there.
func NewBuilder(ctx context.Context, path, distro string) (*Builder, error) {
	if err := fsutil.EnsureFileDir(path); err != nil {
		return nil, err
	}
	if err := fsutil.RemoveIfExists(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create index %s", path)
	}
	// ATTACH is per connection, so every statement goes through one.
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to create index %s", path)
	}

	b := &Builder{path: path, distro: distro, db: db, conn: conn, repos: map[string]bool{}}
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=OFF; PRAGMA synchronous=OFF;"+schema); err != nil {
		b.Abort()
		return nil, errors.Wrapf(err, "failed to initialize index %s", path)
	}
	return b, nil
}

// AddRepo registers a repository; its packages are imported separately.
func (b *Builder) AddRepo(ctx context.Context, repo RepoInfo) error {
	if b.repos[repo.ID] {
		return errors.Wrapf(errors.ErrRepoDefinition, "repository %s added twice", repo.ID)
	}
	if _, err := b.conn.ExecContext(ctx, "INSERT INTO repos (id, base_url, revision) VALUES (?, ?, ?)",
		repo.ID, repo.BaseURL, repo.Revision); err != nil {
		return errors.Wrapf(err, "failed to add repository %s", repo.ID)
	}
	b.repos[repo.ID] = true
	return nil
}

func (b *Builder) checkRepo(repo string) error {
	if !b.repos[repo] {
		return fmt.Errorf("repository %s was not added to the index", repo)
	}
	return nil
}

// attach runs fn with the database at path attached as "src".
func (b *Builder) attach(ctx context.Context, path string, fn func(tx *sql.Tx, tables map[string]bool) error) (err error) {
	if _, err := b.conn.ExecContext(ctx, "ATTACH DATABASE ? AS src", path); err != nil {
		return errors.Wrapf(err, "failed to attach %s", path)
	}
	defer func() {
		if _, derr := b.conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE src"); derr != nil && err == nil {
			err = errors.Wrapf(derr, "failed to detach %s", path)
		}
	}()

	tables, err := b.srcTables(ctx)
	if err != nil {
		return err
	}

	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx, tables); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *Builder) srcTables(ctx context.Context) (map[string]bool, error) {
	rows, err := b.conn.QueryContext(ctx, "SELECT name FROM src.sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, errors.Wrap(err, "attached database is not a sqlite metadata database")
	}
	defer func() { _ = rows.Close() }()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}

// ImportPrimaryDB copies packages, relations and primary files of repo from
// a decompressed primary_db.
func (b *Builder) ImportPrimaryDB(ctx context.Context, repo, path string) error {
	if err := b.checkRepo(repo); err != nil {
		return err
	}
	return b.attach(ctx, path, func(tx *sql.Tx, tables map[string]bool) error {
		if !tables["packages"] {
			return fmt.Errorf("%s has no packages table", path)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO packages (repo, src_key, pkgId, name, arch, epoch, version, release, summary, url,
	size_package, size_installed, location_href, location_base)
SELECT ?, pkgKey, pkgId, name, arch, COALESCE(CAST(epoch AS INTEGER), 0), COALESCE(version, ''),
	COALESCE(release, ''), COALESCE(summary, ''), COALESCE(url, ''), COALESCE(size_package, 0),
	COALESCE(size_installed, 0), COALESCE(location_href, ''), COALESCE(location_base, '')
FROM src.packages ORDER BY pkgKey`, repo); err != nil {
			return errors.Wrapf(err, "failed to import packages of %s", repo)
		}

		for _, kind := range RelationKinds {
			if !tables[string(kind)] {
				continue
			}
			// kind comes from the RelationKinds whitelist.
			q := `
INSERT INTO relations (pkgKey, kind, name, flags, epoch, version, release)
SELECT p.pkgKey, ?, r.name, COALESCE(r.flags, ''), COALESCE(r.epoch, ''), COALESCE(r.version, ''),
	COALESCE(r.release, '')
FROM src.` + string(kind) + ` r JOIN packages p ON p.repo = ? AND p.src_key = r.pkgKey
ORDER BY r.rowid`
			if _, err := tx.ExecContext(ctx, q, string(kind), repo); err != nil {
				return errors.Wrapf(err, "failed to import %s of %s", kind, repo)
			}
		}

		if tables["files"] {
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO files (pkgKey, name, type)
SELECT p.pkgKey, f.name, COALESCE(f.type, 'file')
FROM src.files f JOIN packages p ON p.repo = ? AND p.src_key = f.pkgKey`, repo); err != nil {
				return errors.Wrapf(err, "failed to import files of %s", repo)
			}
		}
		return nil
	})
}

// ImportFilelistsDB copies the complete file lists of repo from a
// decompressed filelists_db. Packages are matched on pkgId.
func (b *Builder) ImportFilelistsDB(ctx context.Context, repo, path string) error {
	if err := b.checkRepo(repo); err != nil {
		return err
	}
	return b.attach(ctx, path, func(tx *sql.Tx, tables map[string]bool) error {
		if !tables["filelist"] || !tables["packages"] {
			return fmt.Errorf("%s has no filelist table", path)
		}
		// filenames holds the entries of one directory joined by '/', and
		// filetypes one character per entry.
		if _, err := tx.ExecContext(ctx, `
WITH RECURSIVE split(pkgKey, dirname, rest, types, idx, name) AS (
	SELECT p.pkgKey, fl.dirname, fl.filenames || '/', fl.filetypes, 0, NULL
	FROM src.filelist fl
	JOIN src.packages sp ON sp.pkgKey = fl.pkgKey
	JOIN packages p ON p.repo = ? AND p.pkgId = sp.pkgId
	UNION ALL
	SELECT pkgKey, dirname, substr(rest, instr(rest, '/') + 1), types, idx + 1,
		substr(rest, 1, instr(rest, '/') - 1)
	FROM split WHERE rest <> ''
)
INSERT OR IGNORE INTO files (pkgKey, name, type)
SELECT pkgKey,
	CASE WHEN dirname = '/' THEN '/' || name ELSE dirname || '/' || name END,
	CASE substr(types, idx, 1) WHEN 'd' THEN 'dir' WHEN 'g' THEN 'ghost' ELSE 'file' END
FROM split WHERE name IS NOT NULL AND name <> ''`, repo); err != nil {
			return errors.Wrapf(err, "failed to import file lists of %s", repo)
		}
		return nil
	})
}

// ImportPrimaryXML streams primary.xml of repo into the index.
func (b *Builder) ImportPrimaryXML(ctx context.Context, repo string, r io.Reader) error {
	if err := b.checkRepo(repo); err != nil {
		return err
	}
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := importPrimaryXML(ctx, tx, repo, r); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "failed to import primary.xml of %s", repo)
	}
	return tx.Commit()
}

// ImportFilelistsXML streams filelists.xml of repo into the index. Packages
// must already be imported; entries for unknown pkgIds are ignored.
func (b *Builder) ImportFilelistsXML(ctx context.Context, repo string, r io.Reader) error {
	if err := b.checkRepo(repo); err != nil {
		return err
	}
	keys, err := b.pkgKeys(ctx, repo)
	if err != nil {
		return err
	}
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := importFilelistsXML(ctx, tx, keys, r); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "failed to import filelists.xml of %s", repo)
	}
	return tx.Commit()
}

func (b *Builder) pkgKeys(ctx context.Context, repo string) (map[string]int64, error) {
	rows, err := b.conn.QueryContext(ctx, "SELECT pkgId, pkgKey FROM packages WHERE repo = ? AND pkgId IS NOT NULL", repo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := map[string]int64{}
	for rows.Next() {
		var id string
		var key int64
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		keys[id] = key
	}
	return keys, rows.Err()
}

// Finish creates the query indexes, records the index metadata and closes
// the file. It returns the number of packages written.
func (b *Builder) Finish(ctx context.Context) (int, error) {
	var n int
	if err := b.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM packages").Scan(&n); err != nil {
		b.Abort()
		return 0, err
	}

	meta := map[string]string{
		metaSchema:   strconv.Itoa(SchemaVersion),
		metaDistro:   b.distro,
		metaBuiltAt:  time.Now().UTC().Format(time.RFC3339),
		metaPackages: strconv.Itoa(n),
	}
	if _, err := b.conn.ExecContext(ctx, queryIndexes); err != nil {
		b.Abort()
		return 0, errors.Wrap(err, "failed to create query indexes")
	}
	for k, v := range meta {
		if _, err := b.conn.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			b.Abort()
			return 0, err
		}
	}
	if _, err := b.conn.ExecContext(ctx, "ANALYZE"); err != nil {
		b.Abort()
		return 0, err
	}

	if err := b.close(); err != nil {
		_ = os.Remove(b.path)
		return 0, err
	}
	return n, nil
}

// Abort discards the partially written index.
func (b *Builder) Abort() {
	_ = b.close()
	_ = fsutil.RemoveIfExists(b.path)
}

func (b *Builder) close() error {
	var err error
	if b.conn != nil {
		err = b.conn.Close()
		b.conn = nil
	}
	if b.db != nil {
		if cerr := b.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
		b.db = nil
	}
	return err
}
