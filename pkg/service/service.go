// Package service translates bus calls into repository index queries.
//
// Lookup failures and misses are reported as values in the call's own result
// type rather than as errors, so a caller that ignores errors still sees a
// recognizable answer. Errors are returned only for failures of the index
// itself.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/metrics"
	"github.com/glorpus-work/querykit/pkg/registry"
	"github.com/glorpus-work/querykit/pkg/sack"
	"github.com/google/uuid"
)

// PackageTuple is the bus projection of a package, signature (sssiis).
type PackageTuple struct {
	Name         string
	Summary      string
	Version      string
	DownloadSize int32
	InstallSize  int32
	URL          string
}

// Result values returned in place of errors.
var (
	InvalidDistroPackage = PackageTuple{
		Name:         "Invalid Distro",
		Summary:      "This is an invalid distro.",
		Version:      "N/A",
		DownloadSize: -1,
		InstallSize:  -1,
		URL:          "N/A",
	}
)

const (
	InvalidDistroMessage = "Invalid distro."
	InvalidQueryMessage  = "Invalid query."
)

// PackageNotFoundMessage is the single-element answer for an unknown package.
func PackageNotFoundMessage(name string) string {
	return fmt.Sprintf("Package %s not found.", name)
}

// DefaultURLSchemes are the schemes a package download URL may use when
// Options names none.
var DefaultURLSchemes = []string{"https"}

// Registry is the part of the repository registry the service needs.
type Registry interface {
	Lookup(id string) (*registry.Handle, error)
	ListDistros() []string
	RefreshAll(ctx context.Context) *registry.Report
	Refresh(ctx context.Context, id string) error
	Status() []registry.Status
}

// Options configures a QueryKit.
type Options struct {
	CacheTTL  time.Duration
	CacheSize uint64
	Metrics   *metrics.Metrics
	// URLSchemes are the schemes a package download URL may use. Tuples of
	// packages served over any other scheme carry an empty URL.
	URLSchemes []string
}

// QueryKit answers queries against the loaded distributions.
type QueryKit struct {
	registry Registry
	cache    *resultCache
	metrics  *metrics.Metrics
	schemes  []string
}

// New creates a QueryKit. A zero CacheTTL disables the result cache.
func New(reg Registry, opts Options) *QueryKit {
	schemes := opts.URLSchemes
	if len(schemes) == 0 {
		schemes = DefaultURLSchemes
	}
	return &QueryKit{
		registry: reg,
		cache:    newResultCache(opts.CacheTTL, opts.CacheSize),
		metrics:  opts.Metrics,
		schemes:  slices.Clone(schemes),
	}
}

// Close stops the result cache.
func (q *QueryKit) Close() {
	q.cache.stop()
}

type call struct {
	method string
	distro string
	args   []string
	log    *slog.Logger
	start  time.Time
}

func (q *QueryKit) begin(method, distro string, args ...string) *call {
	c := &call{method: method, distro: distro, args: args, start: time.Now()}
	c.log = logger.With(logger.Fields{"request_id": uuid.NewString(), "method": method, "distro": distro})
	return c
}

func (q *QueryKit) end(c *call, err error) {
	q.metrics.Request(c.method, err)
	if err != nil {
		c.log.Error("Query failed", "error", err)
		return
	}
	c.log.Debug("Query answered", "took", time.Since(c.start).String())
}

// withSack runs fn against the distribution's current index and caches its
// result under the index generation. found is false when the distribution is
// not loaded.
func withSack[T any](q *QueryKit, c *call, fn func(sack.Sack, *registry.Handle) (T, error)) (res T, found bool, err error) {
	h, err := q.registry.Lookup(c.distro)
	if err != nil {
		if stderrors.Is(err, errors.ErrDistroNotFound) {
			c.log.Debug("Distribution not loaded")
			return res, false, nil
		}
		return res, false, err
	}

	k := key(c.distro, h.Generation(), c.method, c.args...)
	if v, ok := q.cache.get(k); ok {
		if cached, ok := v.(T); ok {
			q.metrics.CacheHit(c.method)
			return cached, true, nil
		}
	}

	var (
		gen uint64
		ran bool
	)
	err = h.UseGeneration(func(s sack.Sack, g uint64) error {
		gen, ran = g, true
		var ferr error
		res, ferr = fn(s, h)
		return ferr
	})
	if err != nil {
		// The index was released between the lookup and its use.
		if !ran && stderrors.Is(err, errors.ErrDistroNotFound) {
			c.log.Debug("Distribution released during the call")
			return res, false, nil
		}
		return res, true, err
	}
	q.cache.set(key(c.distro, gen, c.method, c.args...), res)
	return res, true, nil
}

// available returns the distribution's available package set.
func available(s sack.Sack, h *registry.Handle) sack.Query {
	return s.Query().Filter(sack.ArchIn(h.Distro().Arches...))
}

// SearchPackages returns the packages whose name contains query.
func (q *QueryKit) SearchPackages(ctx context.Context, query, distro string) (res []PackageTuple, err error) {
	c := q.begin("SearchPackages", distro, query)
	defer func() { q.end(c, err) }()

	res, found, err := withSack(q, c, func(s sack.Sack, h *registry.Handle) ([]PackageTuple, error) {
		pkgs, err := available(s, h).Filter(sack.NameSubstr(query)).Packages(ctx)
		if err != nil {
			return nil, err
		}
		return tuples(pkgs, q.schemes), nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return []PackageTuple{InvalidDistroPackage}, nil
	}
	return res, nil
}

// ListFiles returns the files of the newest available package named pkg.
func (q *QueryKit) ListFiles(ctx context.Context, pkg, distro string) (res []string, err error) {
	c := q.begin("ListFiles", distro, pkg)
	defer func() { q.end(c, err) }()

	res, found, err := withSack(q, c, func(s sack.Sack, h *registry.Handle) ([]string, error) {
		p, err := newest(ctx, s, h, pkg)
		if err != nil || p == nil {
			return nil, err
		}
		return s.Files(ctx, *p)
	})
	switch {
	case err != nil:
		return nil, err
	case !found:
		return []string{InvalidDistroMessage}, nil
	case res == nil:
		return []string{PackageNotFoundMessage(pkg)}, nil
	}
	return res, nil
}

// QueryRepoPackage returns the queryType relations of the newest available
// package named pkg.
func (q *QueryKit) QueryRepoPackage(ctx context.Context, pkg, queryType, distro string) (res []string, err error) {
	c := q.begin("QueryRepoPackage", distro, pkg, queryType)
	defer func() { q.end(c, err) }()

	kind, validKind := sack.ParseRelationKind(queryType)
	res, found, err := withSack(q, c, func(s sack.Sack, h *registry.Handle) ([]string, error) {
		p, err := newest(ctx, s, h, pkg)
		if err != nil || p == nil {
			return nil, err
		}
		if !validKind {
			return []string{InvalidQueryMessage}, nil
		}
		rels, err := s.Relations(ctx, *p, kind)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(rels))
		for _, r := range rels {
			out = append(out, r.String())
		}
		return out, nil
	})
	switch {
	case err != nil:
		return nil, err
	case !found:
		return []string{InvalidDistroMessage}, nil
	case res == nil:
		return []string{PackageNotFoundMessage(pkg)}, nil
	}
	return res, nil
}

// QueryRepo returns the available packages matching every recognized filter
// in queries.
func (q *QueryKit) QueryRepo(ctx context.Context, queries map[string]string, distro string) (res []PackageTuple, err error) {
	c := q.begin("QueryRepo", distro, queryArgs(queries)...)
	defer func() { q.end(c, err) }()

	res, found, err := withSack(q, c, func(s sack.Sack, h *registry.Handle) ([]PackageTuple, error) {
		query, err := applyFilters(ctx, available(s, h), queries)
		if err != nil {
			return nil, err
		}
		pkgs, err := query.Packages(ctx)
		if err != nil {
			return nil, err
		}
		return tuples(pkgs, q.schemes), nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return []PackageTuple{InvalidDistroPackage}, nil
	}
	return res, nil
}

// GetDistros returns the loaded distribution ids.
func (q *QueryKit) GetDistros() []string {
	q.metrics.Request("GetDistros", nil)
	return q.registry.ListDistros()
}

// Refresh reloads distro, or every distribution when distro is empty.
func (q *QueryKit) Refresh(ctx context.Context, distro string) (err error) {
	c := q.begin("Refresh", distro)
	defer func() { q.end(c, err) }()

	if distro == "" {
		return q.registry.RefreshAll(ctx).Err()
	}
	return q.registry.Refresh(ctx, distro)
}

// Status describes every configured distribution.
func (q *QueryKit) Status() []registry.Status {
	q.metrics.Request("GetStatus", nil)
	return q.registry.Status()
}

// newest returns the highest-EVR available package named name, or nil.
func newest(ctx context.Context, s sack.Sack, h *registry.Handle, name string) (*sack.Package, error) {
	pkgs, err := available(s, h).Filter(sack.NameEq(name)).Packages(ctx)
	if err != nil {
		return nil, err
	}
	return sack.Latest(pkgs), nil
}

// filterKinds are the recognized QueryRepo keys in the order they apply.
var filterKinds = []string{
	"file",
	"whatconflicts",
	"whatrequires",
	"whatobsoletes",
	"whatprovides",
	"whatrecommends",
	"whatenhances",
	"whatsupplements",
	"whatsuggests",
}

// applyFilters narrows query by each recognized key. whatprovides matches
// provides by glob and falls back to a file glob when nothing provides it.
func applyFilters(ctx context.Context, query sack.Query, queries map[string]string) (sack.Query, error) {
	for _, k := range filterKinds {
		v, ok := queries[k]
		if !ok {
			continue
		}
		switch k {
		case "file":
			query = query.Filter(sack.FileGlob(v))
		case "whatconflicts":
			query = query.Filter(sack.RelationEq(sack.Conflicts, v))
		case "whatrequires":
			query = query.Filter(sack.RelationEq(sack.Requires, v))
		case "whatobsoletes":
			query = query.Filter(sack.RelationEq(sack.Obsoletes, v))
		case "whatprovides":
			provided := query.Filter(sack.RelationGlob(sack.Provides, v))
			n, err := provided.Count(ctx)
			if err != nil {
				return query, err
			}
			if n > 0 {
				query = provided
			} else {
				query = query.Filter(sack.FileGlob(v))
			}
		case "whatrecommends":
			query = query.Filter(sack.RelationGlob(sack.Recommends, v))
		case "whatenhances":
			query = query.Filter(sack.RelationGlob(sack.Enhances, v))
		case "whatsupplements":
			query = query.Filter(sack.RelationGlob(sack.Supplements, v))
		case "whatsuggests":
			query = query.Filter(sack.RelationGlob(sack.Suggests, v))
		}
	}
	return query, nil
}

// queryArgs flattens the recognized filters into a stable argument list.
func queryArgs(queries map[string]string) []string {
	args := make([]string, 0, 2*len(queries))
	keys := make([]string, 0, len(queries))
	for k := range queries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, queries[k])
	}
	return args
}

func tuples(pkgs []sack.Package, schemes []string) []PackageTuple {
	out := make([]PackageTuple, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, PackageTuple{
			Name:         p.Name,
			Summary:      p.Summary,
			Version:      p.Version,
			DownloadSize: size(p.DownloadSize),
			InstallSize:  size(p.InstallSize),
			URL:          p.RemoteLocation(schemes),
		})
	}
	return out
}

// size maps an unknown (zero) size to -1 and saturates at the bus integer range.
func size(n int64) int32 {
	switch {
	case n <= 0:
		return -1
	case n > math.MaxInt32:
		return math.MaxInt32
	}
	return int32(n)
}
