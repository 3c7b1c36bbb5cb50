//go:generate mockgen -destination=./mocks/orchestrator.go -package=mocks . RepoResolver,Downloader

package orchestrator

import (
	"context"

	"github.com/glorpus-work/querykit/pkg/archive"
	"github.com/glorpus-work/querykit/pkg/cache"
	"github.com/glorpus-work/querykit/pkg/download"
	"github.com/glorpus-work/querykit/pkg/repodef"
	"github.com/glorpus-work/querykit/pkg/repomd"
)

// RepoResolver finds where a repository lives and reads its repomd.xml.
type RepoResolver interface {
	Resolve(ctx context.Context, repo *repodef.Repo) (*repomd.Remote, error)
}

// Downloader handles metadata downloading.
type Downloader interface {
	FetchAll(ctx context.Context, items []download.Item, opts download.Options) (map[string]string, error)
}

// Orchestrator ties repository definitions, metadata download and index
// building together to produce the index of one distribution.
type Orchestrator struct {
	Resolver RepoResolver
	DL       Downloader
	Archive  *archive.Manager
	Store    cache.StateStore // optional; without it every load rebuilds
	Hooks    Hooks            // Hooks for progress and event notifications
	Options  Options
}

// Event represents a simple progress notification.
type Event struct {
	Phase  string // resolving|downloading|building|reused|done|error
	Distro string
	ID     string // repository ID, when the event concerns one
	Msg    string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// Options control orchestrator execution.
type Options struct {
	Concurrency int // parallel metadata downloads per distribution
}
