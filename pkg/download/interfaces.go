package download

import (
	"context"
	"net/url"
)

// Manager downloads repository metadata. It batches and de-duplicates requests
// and verifies the checksums advertised by repomd.xml.
type Manager interface {
	// FetchAll downloads all items, respecting Options (e.g., concurrency and cache dir).
	// It returns a map from Item.ID to absolute local file path.
	FetchAll(ctx context.Context, items []Item, opts Options) (map[string]string, error)

	// Fetch downloads a single item to a deterministic location (within opts.Dir).
	// It returns the absolute local file path.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)

	// Get reads a small document (repomd.xml, metalink, mirrorlist) into memory.
	Get(ctx context.Context, u *url.URL) ([]byte, error)
}

// Item represents one remote resource to download.
type Item struct {
	ID       string   // stable identifier (e.g., repo/type). Must be unique within a batch.
	URL      *url.URL // source URL to download
	Checksum string   // optional hex-encoded checksum; if provided, will be verified
	// ChecksumType names the digest of Checksum as repomd.xml spells it
	// (sha256, sha512, sha1, sha). Empty means sha256.
	ChecksumType string
	Filename     string // optional preferred filename; if empty, a name will be derived
}

// Options control the behavior of the download manager.
type Options struct {
	Dir         string // destination directory (cache). Must be absolute.
	Concurrency int    // number of parallel downloads; if <=0, a sane default is used
}
