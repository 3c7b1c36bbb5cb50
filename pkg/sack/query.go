package sack

import (
	"context"
	"database/sql"
	"slices"
	"strings"
)

// Filter narrows a Query. Filters combine with AND.
type Filter interface {
	clause() (string, []any)
}

type filter struct {
	sql  string
	args []any
}

func (f filter) clause() (string, []any) { return f.sql, f.args }

// NameSubstr keeps packages whose name contains s (case-sensitive).
func NameSubstr(s string) Filter {
	return filter{"instr(p.name, ?) > 0", []any{s}}
}

// NameEq keeps packages named exactly name.
func NameEq(name string) Filter {
	return filter{"p.name = ?", []any{name}}
}

// ArchIn keeps packages built for one of arches. An empty list keeps everything.
func ArchIn(arches ...string) Filter {
	if len(arches) == 0 {
		return filter{"1", nil}
	}
	args := make([]any, len(arches))
	for i, a := range arches {
		args[i] = a
	}
	return filter{"p.arch IN (" + placeholders(len(arches)) + ")", args}
}

// FileGlob keeps packages shipping a file whose path matches the GLOB pattern.
func FileGlob(pattern string) Filter {
	return filter{"p.pkgKey IN (SELECT pkgKey FROM files WHERE name GLOB ?)", []any{pattern}}
}

// RelationEq keeps packages with a kind relation named exactly name.
func RelationEq(kind RelationKind, name string) Filter {
	return filter{"p.pkgKey IN (SELECT pkgKey FROM relations WHERE kind = ? AND name = ?)", []any{string(kind), name}}
}

// RelationGlob keeps packages with a kind relation whose name matches the GLOB pattern.
func RelationGlob(kind RelationKind, pattern string) Filter {
	return filter{"p.pkgKey IN (SELECT pkgKey FROM relations WHERE kind = ? AND name GLOB ?)", []any{string(kind), pattern}}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Query is an immutable filter chain over an index. The zero value matches
// nothing and reports ErrSackClosed.
type Query struct {
	idx     *index
	filters []Filter
}

// Filter returns a new Query with filters appended.
func (q Query) Filter(filters ...Filter) Query {
	return Query{idx: q.idx, filters: append(slices.Clip(q.filters), filters...)}
}

const packageColumns = `p.pkgKey, p.repo, p.name, p.arch, p.epoch, p.version, p.release,
	p.summary, p.url, p.size_package, p.size_installed, p.location_href, p.location_base, r.base_url`

func (q Query) where() (string, []any) {
	if len(q.filters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(q.filters))
	var args []any
	for _, f := range q.filters {
		s, a := f.clause()
		parts = append(parts, s)
		args = append(args, a...)
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// Packages runs the query. Results are ordered by name, repository and arch.
func (q Query) Packages(ctx context.Context) ([]Package, error) {
	db, release, err := q.idx.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	where, args := q.where()
	rows, err := db.QueryContext(ctx,
		"SELECT "+packageColumns+" FROM packages p JOIN repos r ON r.id = p.repo"+where+
			" ORDER BY p.name, p.repo, p.arch, p.pkgKey", args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanPackages(rows)
}

// Count returns the number of matching packages.
func (q Query) Count(ctx context.Context) (int, error) {
	db, release, err := q.idx.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	where, args := q.where()
	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM packages p"+where, args...).Scan(&n)
	return n, err
}

func scanPackages(rows *sql.Rows) ([]Package, error) {
	var out []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.Key, &p.Repo, &p.Name, &p.Arch, &p.Epoch, &p.Version, &p.Release,
			&p.Summary, &p.URL, &p.DownloadSize, &p.InstallSize, &p.LocationHref, &p.LocationBase, &p.RepoBaseURL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
