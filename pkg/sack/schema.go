package sack

// SchemaVersion changes whenever the index layout does; indexes recorded with
// another version are rebuilt.
const SchemaVersion = 1

const schema = `
CREATE TABLE repos (
	id       TEXT PRIMARY KEY,
	base_url TEXT NOT NULL,
	revision TEXT NOT NULL DEFAULT ''
);

CREATE TABLE packages (
	pkgKey         INTEGER PRIMARY KEY,
	repo           TEXT NOT NULL,
	src_key        INTEGER,
	pkgId          TEXT,
	name           TEXT NOT NULL,
	arch           TEXT NOT NULL,
	epoch          INTEGER NOT NULL DEFAULT 0,
	version        TEXT NOT NULL DEFAULT '',
	release        TEXT NOT NULL DEFAULT '',
	summary        TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	size_package   INTEGER NOT NULL DEFAULT 0,
	size_installed INTEGER NOT NULL DEFAULT 0,
	location_href  TEXT NOT NULL DEFAULT '',
	location_base  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE relations (
	pkgKey  INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	name    TEXT NOT NULL,
	flags   TEXT NOT NULL DEFAULT '',
	epoch   TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	release TEXT NOT NULL DEFAULT ''
);

CREATE TABLE files (
	pkgKey INTEGER NOT NULL,
	name   TEXT NOT NULL,
	type   TEXT NOT NULL DEFAULT 'file',
	UNIQUE (pkgKey, name)
);

CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX packages_src ON packages (repo, src_key);
CREATE INDEX packages_pkgid ON packages (repo, pkgId);
`

// queryIndexes are created after the bulk import.
const queryIndexes = `
CREATE INDEX packages_name ON packages (name);
CREATE INDEX relations_kind_name ON relations (kind, name);
CREATE INDEX relations_pkg ON relations (pkgKey);
CREATE INDEX files_name ON files (name);
`

// Keys of the meta table.
const (
	metaSchema   = "schema"
	metaDistro   = "distro"
	metaBuiltAt  = "built_at"
	metaPackages = "packages"
)
