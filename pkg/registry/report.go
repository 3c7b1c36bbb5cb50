package registry

import (
	stderrors "errors"
	"sort"
	"sync"

	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/hashicorp/go-multierror"
)

// Report is the outcome of loading or refreshing a group of distributions.
type Report struct {
	mu sync.Mutex

	Loaded  []string
	Failed  map[string]error
	Skipped []string
}

func newReport() *Report {
	return &Report{Failed: map[string]error{}}
}

func (r *Report) record(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err == nil:
		r.Loaded = append(r.Loaded, id)
	case stderrors.Is(err, errors.ErrRefreshRunning):
		r.Skipped = append(r.Skipped, id)
	default:
		r.Failed[id] = err
	}
}

func (r *Report) sort() {
	sort.Strings(r.Loaded)
	sort.Strings(r.Skipped)
}

// Err aggregates every failure, ordered by distribution, or returns nil.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result *multierror.Error
	for _, id := range ids {
		result = multierror.Append(result, errors.Wrapf(r.Failed[id], "distribution %s", id))
	}
	return result.ErrorOrNil()
}
