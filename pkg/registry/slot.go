package registry

import (
	"sync"
	"time"

	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/sack"
)

// State is the lifecycle state of a configured distribution.
type State string

const (
	StatePending State = "pending"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// Status describes one configured distribution.
type Status struct {
	Distro      string
	State       State
	Packages    int
	Generation  uint64
	LastRefresh time.Time
	LastError   string
}

// slot is the repository set of one distribution. mu guards the sack
// pointer: readers hold it shared for the duration of a query and a swap
// takes it exclusively. refreshing serializes loads of the same distro.
type slot struct {
	cfg        config.Distro
	refreshing sync.Mutex

	mu          sync.RWMutex
	sack        sack.Sack
	gen         uint64
	state       State
	lastRefresh time.Time
	lastErr     string
}

func newSlot(cfg config.Distro) *slot {
	return &slot{cfg: cfg, state: StatePending}
}

func (s *slot) loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sack != nil
}

// swap publishes next and returns the previous sack, which the caller closes
// once no reader can reach it.
func (s *slot) swap(next sack.Sack) sack.Sack {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sack
	s.sack = next
	s.gen++
	s.state = StateLoaded
	s.lastRefresh = time.Now()
	s.lastErr = ""
	return prev
}

func (s *slot) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRefresh = time.Now()
	s.lastErr = err.Error()
	if s.sack == nil {
		s.state = StateFailed
	}
}

// detach removes the sack for shutdown.
func (s *slot) detach() sack.Sack {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sack
	s.sack = nil
	return prev
}

func (s *slot) status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Distro:      s.cfg.ID,
		State:       s.state,
		Generation:  s.gen,
		LastRefresh: s.lastRefresh,
		LastError:   s.lastErr,
	}
	if s.sack != nil {
		st.Packages = s.sack.Info().Packages
	}
	return st
}

// Handle gives access to a loaded distribution.
type Handle struct {
	s *slot
}

// Distro returns the resolved configuration of the distribution.
func (h *Handle) Distro() config.Distro {
	return h.s.cfg
}

// Generation is incremented on every successful refresh.
func (h *Handle) Generation() uint64 {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.gen
}

// Use runs fn against the current sack. The sack is neither swapped nor
// closed until fn returns.
func (h *Handle) Use(fn func(sack.Sack) error) error {
	return h.UseGeneration(func(s sack.Sack, _ uint64) error { return fn(s) })
}

// UseGeneration is Use that also passes the generation of the sack.
func (h *Handle) UseGeneration(fn func(s sack.Sack, gen uint64) error) error {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	if h.s.sack == nil {
		return errors.ErrDistroNotFoundWithID(h.s.cfg.ID)
	}
	return fn(h.s.sack, h.s.gen)
}
