package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/archive"
	"github.com/glorpus-work/querykit/pkg/cache"
	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/download"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/fsutil"
	"github.com/glorpus-work/querykit/pkg/repodef"
	"github.com/glorpus-work/querykit/pkg/repomd"
	"github.com/glorpus-work/querykit/pkg/sack"
	"github.com/google/uuid"
)

// repoPlan is one repository resolved to the metadata files to import.
type repoPlan struct {
	repo      *repodef.Repo
	remote    *repomd.Remote
	primary   *repomd.Data
	filelists *repomd.Data // nil when file lists are not loaded

	primaryPath   string
	filelistsPath string
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// Load produces the index of distro. An index recorded in the store for the
// same repository revisions is reopened; otherwise metadata is downloaded and
// a new index built. Any repository that cannot be resolved or imported fails
// the whole distribution.
func (o *Orchestrator) Load(ctx context.Context, distro config.Distro) (s sack.Sack, err error) {
	if o.Resolver == nil {
		return nil, fmt.Errorf("repository resolver is not configured")
	}
	if o.DL == nil {
		return nil, fmt.Errorf("download manager is not configured")
	}
	defer func() {
		if err != nil {
			emit(o.Hooks, Event{Phase: "error", Distro: distro.ID, Msg: err.Error()})
		}
	}()

	repos, err := repodef.LoadDir(distro.ReposDir, repodef.Vars(distro.Vars()))
	if err != nil {
		return nil, err
	}

	plans := make([]*repoPlan, 0, len(repos))
	for _, r := range repos {
		p, err := o.plan(ctx, distro, r)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}

	fp := fingerprint(distro, plans)
	if s := o.reuse(ctx, distro, fp); s != nil {
		emit(o.Hooks, Event{Phase: "reused", Distro: distro.ID, Msg: s.Info().Path})
		emit(o.Hooks, Event{Phase: "done", Distro: distro.ID})
		return s, nil
	}

	if err := o.fetch(ctx, distro, plans); err != nil {
		return nil, err
	}
	s, err = o.build(ctx, distro, plans, fp)
	if err != nil {
		return nil, err
	}
	emit(o.Hooks, Event{Phase: "done", Distro: distro.ID, Msg: strconv.Itoa(s.Info().Packages) + " packages"})
	return s, nil
}

func (o *Orchestrator) plan(ctx context.Context, distro config.Distro, r *repodef.Repo) (*repoPlan, error) {
	emit(o.Hooks, Event{Phase: "resolving", Distro: distro.ID, ID: r.ID})
	remote, err := o.Resolver.Resolve(ctx, r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve repository %s", r.ID)
	}

	p := &repoPlan{repo: r, remote: remote}
	p.primary = remote.RepoMD.Find(repomd.TypePrimaryDB, repomd.TypePrimary)
	if p.primary == nil {
		return nil, errors.ErrMetadataMissingWithType(r.ID, repomd.TypePrimary)
	}
	if distro.Filelists() {
		p.filelists = remote.RepoMD.Find(repomd.TypeFilelistsDB, repomd.TypeFilelists)
		if p.filelists == nil {
			logger.Warn("Repository publishes no file lists", logger.Fields{"distro": distro.ID, "repo": r.ID})
		}
	}
	logger.Debug("Resolved repository", logger.Fields{
		"distro":   distro.ID,
		"repo":     r.ID,
		"url":      remote.BaseURL.Redacted(),
		"revision": remote.RepoMD.Revision,
		"primary":  p.primary.Type,
	})
	return p, nil
}

// fingerprint identifies the exact metadata an index would be built from.
func fingerprint(distro config.Distro, plans []*repoPlan) string {
	h := xxhash.New()
	_, _ = fmt.Fprintf(h, "schema=%d\x00distro=%s\x00filelists=%t\x00", sack.SchemaVersion, distro.ID, distro.Filelists())
	for _, p := range plans {
		_, _ = fmt.Fprintf(h, "repo=%s\x00base=%s\x00revision=%s\x00", p.repo.ID, p.remote.BaseURL, p.remote.RepoMD.Revision)
		for _, d := range []*repomd.Data{p.primary, p.filelists} {
			if d != nil {
				_, _ = fmt.Fprintf(h, "%s=%s:%s\x00", d.Type, d.Checksum.Type, d.Checksum.Value)
			}
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (o *Orchestrator) reuse(ctx context.Context, distro config.Distro, fp string) sack.Sack {
	if o.Store == nil {
		return nil
	}
	state, err := o.Store.Get(distro.ID)
	if err != nil {
		logger.Warn("Failed to read index state", logger.Fields{"distro": distro.ID, "error": err})
		return nil
	}
	if state == nil || state.Fingerprint != fp {
		return nil
	}
	if _, err := os.Stat(state.SackPath); err != nil {
		return nil
	}
	s, err := openSack(ctx, state.SackPath, o.releaser(distro.ID))
	if err != nil {
		logger.Warn("Stored index is unusable, rebuilding", logger.Fields{"distro": distro.ID, "path": state.SackPath, "error": err})
		return nil
	}
	return s
}

func (o *Orchestrator) fetch(ctx context.Context, distro config.Distro, plans []*repoPlan) error {
	var items []download.Item
	for _, p := range plans {
		for _, d := range []*repomd.Data{p.primary, p.filelists} {
			if d == nil {
				continue
			}
			u, err := d.URL(p.remote.BaseURL)
			if err != nil {
				return errors.Wrapf(err, "repository %s", p.repo.ID)
			}
			items = append(items, download.Item{
				ID:           p.repo.ID + "/" + d.Type,
				URL:          u,
				Checksum:     d.Checksum.Value,
				ChecksumType: d.Checksum.Type,
				Filename:     filepath.Join(p.repo.ID, path.Base(d.Location.Href)),
			})
		}
	}

	emit(o.Hooks, Event{Phase: "downloading", Distro: distro.ID, Msg: strconv.Itoa(len(items)) + " files"})
	paths, err := o.DL.FetchAll(ctx, items, download.Options{Dir: distro.CacheDir, Concurrency: o.Options.Concurrency})
	if err != nil {
		return errors.Wrapf(err, "failed to download metadata for %s", distro.ID)
	}

	for _, p := range plans {
		p.primaryPath = paths[p.repo.ID+"/"+p.primary.Type]
		if p.primaryPath == "" {
			return errors.ErrMetadataMissingWithType(p.repo.ID, p.primary.Type)
		}
		if p.filelists != nil {
			p.filelistsPath = paths[p.repo.ID+"/"+p.filelists.Type]
			if p.filelistsPath == "" {
				return errors.ErrMetadataMissingWithType(p.repo.ID, p.filelists.Type)
			}
		}
	}
	return nil
}

func (o *Orchestrator) build(ctx context.Context, distro config.Distro, plans []*repoPlan, fp string) (sack.Sack, error) {
	sackPath := filepath.Join(distro.CacheDir, cache.SackPrefix+uuid.NewString()+cache.SackSuffix)
	b, err := sack.NewBuilder(ctx, sackPath, distro.ID)
	if err != nil {
		return nil, err
	}

	revisions := make(map[string]string, len(plans))
	for _, p := range plans {
		emit(o.Hooks, Event{Phase: "building", Distro: distro.ID, ID: p.repo.ID})
		revisions[p.repo.ID] = p.remote.RepoMD.Revision
		info := sack.RepoInfo{ID: p.repo.ID, BaseURL: p.remote.BaseURL.String(), Revision: p.remote.RepoMD.Revision}
		if err := b.AddRepo(ctx, info); err != nil {
			b.Abort()
			return nil, err
		}
		if err := o.importData(ctx, b, p.repo.ID, p.primary, p.primaryPath); err != nil {
			b.Abort()
			return nil, err
		}
		if p.filelists != nil {
			if err := o.importData(ctx, b, p.repo.ID, p.filelists, p.filelistsPath); err != nil {
				b.Abort()
				return nil, err
			}
		}
	}

	n, err := b.Finish(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build index for %s", distro.ID)
	}
	logger.Info("Built repository index", logger.Fields{"distro": distro.ID, "packages": n, "path": sackPath})

	// Only an index that opens is recorded; the store keeps pointing at the
	// published one otherwise.
	s, err := openSack(ctx, sackPath, o.releaser(distro.ID))
	if err != nil {
		_ = fsutil.RemoveIfExists(sackPath)
		return nil, err
	}

	keep := []string{sackPath}
	if o.Store != nil {
		if prev, err := o.Store.Get(distro.ID); err == nil && prev != nil {
			keep = append(keep, prev.SackPath)
		}
		state := cache.DistroState{
			SackPath:    sackPath,
			Fingerprint: fp,
			Revisions:   revisions,
			Packages:    n,
			BuiltAt:     time.Now().UTC(),
		}
		if err := o.Store.Put(distro.ID, state); err != nil {
			logger.Warn("Failed to record index state", logger.Fields{"distro": distro.ID, "error": err})
		}
	}
	pruneIndexes(distro.CacheDir, keep)
	return s, nil
}

func (o *Orchestrator) importData(ctx context.Context, b *sack.Builder, repo string, d *repomd.Data, file string) error {
	am := o.Archive
	if am == nil {
		am = archive.NewManager()
	}

	if d.IsDatabase() {
		db := filepath.Join(filepath.Dir(file), d.Type+".sqlite")
		if err := decompressVerified(ctx, am, d, file, db); err != nil {
			return errors.Wrapf(err, "repository %s", repo)
		}
		if d.Type == repomd.TypePrimaryDB {
			return b.ImportPrimaryDB(ctx, repo, db)
		}
		return b.ImportFilelistsDB(ctx, repo, db)
	}

	rc, err := am.Open(ctx, file)
	if err != nil {
		return errors.Wrapf(err, "repository %s", repo)
	}
	defer func() { _ = rc.Close() }()
	if d.Type == repomd.TypePrimary {
		return b.ImportPrimaryXML(ctx, repo, rc)
	}
	return b.ImportFilelistsXML(ctx, repo, rc)
}

// decompressVerified leaves the decompressed contents of src at dst, reusing
// dst when it already matches the advertised open checksum.
func decompressVerified(ctx context.Context, am *archive.Manager, d *repomd.Data, src, dst string) error {
	sum := d.OpenChecksum
	if sum.Value != "" {
		if ok, err := download.VerifyFile(dst, sum.Type, sum.Value); err == nil && ok {
			return nil
		}
	}
	if err := am.DecompressFile(ctx, src, dst); err != nil {
		return err
	}
	if sum.Value == "" {
		return nil
	}
	ok, err := download.VerifyFile(dst, sum.Type, sum.Value)
	if err != nil {
		return err
	}
	if !ok {
		_ = os.Remove(dst)
		return fmt.Errorf("open checksum mismatch for %s: %w", d.Location.Href, errors.ErrFileHashMismatch)
	}
	return nil
}

// releaser deletes a closed index file unless the store still points at it.
func (o *Orchestrator) releaser(distro string) func(string) error {
	return func(p string) error {
		if o.Store != nil {
			state, err := o.Store.Get(distro)
			if err != nil || (state != nil && state.SackPath == p) {
				return nil
			}
		}
		logger.Debug("Removing superseded index", logger.Fields{"distro": distro, "path": p})
		return fsutil.RemoveIfExists(p)
	}
}

var openSack = sack.Open

// pruneIndexes removes index files in dir other than keep, left behind by
// interrupted builds.
func pruneIndexes(dir string, keep []string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !cache.IsSackFile(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		kept := false
		for _, k := range keep {
			if k == p {
				kept = true
				break
			}
		}
		if !kept {
			_ = fsutil.RemoveIfExists(p)
		}
	}
}

// New constructs an Orchestrator from existing managers. Helper for wiring.
// store may be nil.
func New(resolver RepoResolver, dl Downloader, am *archive.Manager, store cache.StateStore, hooks Hooks, opts Options) *Orchestrator {
	return &Orchestrator{
		Resolver: resolver,
		DL:       dl,
		Archive:  am,
		Store:    store,
		Hooks:    hooks,
		Options:  opts,
	}
}
