package registry

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/metrics"
	"github.com/glorpus-work/querykit/pkg/registry/mocks"
	"github.com/glorpus-work/querykit/pkg/sack"
	sackmocks "github.com/glorpus-work/querykit/pkg/sack/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errMirror = stderrors.New("mirror unreachable")

func distros(ids ...string) []config.Distro {
	out := make([]config.Distro, 0, len(ids))
	for _, id := range ids {
		out = append(out, config.Distro{ID: id, ReposDir: "/etc/querykit/repos/" + id})
	}
	return out
}

func newSack(ctrl *gomock.Controller, distro string, packages int) *sackmocks.MockSack {
	s := sackmocks.NewMockSack(ctrl)
	s.EXPECT().Info().Return(sack.Info{Distro: distro, Packages: packages}).AnyTimes()
	return s
}

func distroIs(id string) gomock.Matcher {
	return gomock.Cond(func(d config.Distro) bool { return d.ID == id })
}

func TestInitialize_DropsFailedDistro(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	fedora := newSack(ctrl, "fedora", 10)
	loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(fedora, nil)
	loader.EXPECT().Load(gomock.Any(), distroIs("mageia")).Return(nil, errMirror)

	r := New(loader)
	report, err := r.Initialize(context.Background(), distros("fedora", "mageia"))
	require.NoError(t, err)

	assert.Equal(t, []string{"fedora"}, report.Loaded)
	assert.ErrorIs(t, report.Failed["mageia"], errMirror)
	assert.Equal(t, []string{"fedora"}, r.ListDistros())

	_, err = r.Lookup("mageia")
	assert.ErrorIs(t, err, errors.ErrDistroNotFound)
	_, err = r.Lookup("arch")
	assert.ErrorIs(t, err, errors.ErrDistroNotFound)

	h, err := r.Lookup("fedora")
	require.NoError(t, err)
	assert.Equal(t, "fedora", h.Distro().ID)
	assert.Equal(t, uint64(1), h.Generation())

	status := r.Status()
	require.Len(t, status, 2)
	assert.Equal(t, StateLoaded, status[0].State)
	assert.Equal(t, 10, status[0].Packages)
	assert.Equal(t, StateFailed, status[1].State)
	assert.Contains(t, status[1].LastError, "mirror unreachable")
}

func TestInitialize_NothingLoaded(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	loader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(nil, errMirror).Times(2)

	r := New(loader)
	report, err := r.Initialize(context.Background(), distros("fedora", "mageia"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoDistrosLoaded)
	assert.ErrorIs(t, err, errMirror)
	assert.Contains(t, err.Error(), "distribution fedora")
	assert.Contains(t, err.Error(), "distribution mageia")
	assert.Len(t, report.Failed, 2)
	assert.Empty(t, r.ListDistros())
}

func TestInitialize_DuplicateDistro(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := New(mocks.NewMockLoader(ctrl))

	_, err := r.Initialize(context.Background(), distros("fedora", "fedora"))
	assert.ErrorIs(t, err, errors.ErrDuplicateDistro)
}

func TestInitialize_BoundsConcurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)

	var running, peak atomic.Int32
	loader.EXPECT().Load(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d config.Distro) (sack.Sack, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return newSack(ctrl, d.ID, 1), nil
	}).Times(5)

	r := New(loader, WithMaxConcurrentLoads(2))
	_, err := r.Initialize(context.Background(), distros("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, r.ListDistros())
}

func TestInitialize_LoadTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	loader.EXPECT().Load(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ config.Distro) (sack.Sack, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	r := New(loader, WithLoadTimeout(20*time.Millisecond))
	_, err := r.Initialize(context.Background(), distros("fedora"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefreshAll_SwapsAndClosesPrevious(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	first := newSack(ctrl, "fedora", 10)
	second := newSack(ctrl, "fedora", 12)
	gomock.InOrder(
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(first, nil),
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(second, nil),
	)
	first.EXPECT().Close().Return(nil)

	r := New(loader)
	_, err := r.Initialize(context.Background(), distros("fedora"))
	require.NoError(t, err)

	report := r.RefreshAll(context.Background())
	assert.Equal(t, []string{"fedora"}, report.Loaded)
	assert.NoError(t, report.Err())

	h, err := r.Lookup("fedora")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.Generation())
	require.NoError(t, h.Use(func(s sack.Sack) error {
		assert.Equal(t, 12, s.Info().Packages)
		return nil
	}))
}

func TestRefreshAll_FailureKeepsPreviousHandle(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	first := newSack(ctrl, "fedora", 10)
	gomock.InOrder(
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(first, nil),
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(nil, errMirror),
	)

	r := New(loader)
	_, err := r.Initialize(context.Background(), distros("fedora"))
	require.NoError(t, err)

	report := r.RefreshAll(context.Background())
	assert.Empty(t, report.Loaded)
	assert.ErrorIs(t, report.Err(), errMirror)

	h, err := r.Lookup("fedora")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Generation())
	require.NoError(t, h.Use(func(s sack.Sack) error {
		assert.Same(t, first, s)
		return nil
	}))

	st := r.Status()[0]
	assert.Equal(t, StateLoaded, st.State)
	assert.Contains(t, st.LastError, "mirror unreachable")
}

func TestRefreshAll_SkipsDroppedUnlessRetrying(t *testing.T) {
	tests := []struct {
		name        string
		retry       bool
		wantDistros []string
	}{
		{name: "dropped stays dropped", retry: false, wantDistros: []string{"fedora"}},
		{name: "dropped is retried", retry: true, wantDistros: []string{"fedora", "mageia"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			loader := mocks.NewMockLoader(ctrl)
			fedora := newSack(ctrl, "fedora", 10)
			fedora2 := newSack(ctrl, "fedora", 10)
			fedora.EXPECT().Close().Return(nil)
			gomock.InOrder(
				loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(fedora, nil),
				loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(fedora2, nil),
			)
			loader.EXPECT().Load(gomock.Any(), distroIs("mageia")).Return(nil, errMirror)
			if tt.retry {
				loader.EXPECT().Load(gomock.Any(), distroIs("mageia")).Return(newSack(ctrl, "mageia", 3), nil)
			}

			var changes [][]string
			r := New(loader, WithRetryFailed(tt.retry), WithOnChange(func(ids []string) {
				changes = append(changes, ids)
			}))
			_, err := r.Initialize(context.Background(), distros("fedora", "mageia"))
			require.NoError(t, err)

			r.RefreshAll(context.Background())
			assert.Equal(t, tt.wantDistros, r.ListDistros())

			want := [][]string{{"fedora"}}
			if tt.retry {
				want = append(want, []string{"fedora", "mageia"})
			}
			assert.Equal(t, want, changes)
		})
	}
}

func TestRefresh_Single(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	first := newSack(ctrl, "fedora", 10)
	first.EXPECT().Close().Return(nil)
	gomock.InOrder(
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(first, nil),
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(newSack(ctrl, "fedora", 11), nil),
	)
	loader.EXPECT().Load(gomock.Any(), distroIs("mageia")).Return(nil, errMirror)

	r := New(loader)
	_, err := r.Initialize(context.Background(), distros("fedora", "mageia"))
	require.NoError(t, err)

	require.NoError(t, r.Refresh(context.Background(), "fedora"))
	assert.ErrorIs(t, r.Refresh(context.Background(), "mageia"), errors.ErrDistroNotFound)
	assert.ErrorIs(t, r.Refresh(context.Background(), "arch"), errors.ErrDistroNotFound)
}

func TestRefresh_AlreadyRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	first := newSack(ctrl, "fedora", 10)
	first.EXPECT().Close().Return(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	gomock.InOrder(
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(first, nil),
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).DoAndReturn(func(context.Context, config.Distro) (sack.Sack, error) {
			close(started)
			<-release
			return newSack(ctrl, "fedora", 11), nil
		}),
	)

	r := New(loader)
	_, err := r.Initialize(context.Background(), distros("fedora"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background(), "fedora") }()
	<-started

	assert.ErrorIs(t, r.Refresh(context.Background(), "fedora"), errors.ErrRefreshRunning)
	report := r.RefreshAll(context.Background())
	assert.Equal(t, []string{"fedora"}, report.Skipped)
	assert.NoError(t, report.Err())

	close(release)
	require.NoError(t, <-done)
}

func TestHandle_UseBlocksSwap(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	first := newSack(ctrl, "fedora", 10)

	var closed atomic.Bool
	first.EXPECT().Close().DoAndReturn(func() error {
		closed.Store(true)
		return nil
	})

	loading := make(chan struct{})
	gomock.InOrder(
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(first, nil),
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).DoAndReturn(func(context.Context, config.Distro) (sack.Sack, error) {
			close(loading)
			return newSack(ctrl, "fedora", 11), nil
		}),
	)

	r := New(loader)
	_, err := r.Initialize(context.Background(), distros("fedora"))
	require.NoError(t, err)
	h, err := r.Lookup("fedora")
	require.NoError(t, err)

	var wg sync.WaitGroup
	require.NoError(t, h.Use(func(s sack.Sack) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Refresh(context.Background(), "fedora"))
		}()
		<-loading
		time.Sleep(20 * time.Millisecond)
		assert.False(t, closed.Load(), "index closed while in use")
		assert.Equal(t, 10, s.Info().Packages)
		return nil
	}))
	wg.Wait()

	assert.True(t, closed.Load())
	assert.Equal(t, uint64(2), h.Generation())
}

func TestRegistry_Metrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(newSack(ctrl, "fedora", 42), nil)
	loader.EXPECT().Load(gomock.Any(), distroIs("mageia")).Return(nil, errMirror)

	m := metrics.New()
	r := New(loader, WithMetrics(m))
	_, err := r.Initialize(context.Background(), distros("fedora", "mageia"))
	require.NoError(t, err)

	expected := `
# HELP querykit_distro_loaded Whether a distribution's repository index is loaded (1) or not (0).
# TYPE querykit_distro_loaded gauge
querykit_distro_loaded{distro="fedora"} 1
querykit_distro_loaded{distro="mageia"} 0
# HELP querykit_refresh_total Index loads and refreshes by distribution and result.
# TYPE querykit_refresh_total counter
querykit_refresh_total{distro="fedora",result="success"} 1
querykit_refresh_total{distro="mageia",result="error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"querykit_distro_loaded", "querykit_refresh_total"))
}

func TestRegistry_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	fedora := newSack(ctrl, "fedora", 1)
	mageia := newSack(ctrl, "mageia", 1)
	fedora.EXPECT().Close().Return(nil)
	mageia.EXPECT().Close().Return(nil)
	loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(fedora, nil)
	loader.EXPECT().Load(gomock.Any(), distroIs("mageia")).Return(mageia, nil)

	r := New(loader)
	_, err := r.Initialize(context.Background(), distros("fedora", "mageia"))
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.Empty(t, r.ListDistros())
	require.NoError(t, r.Close())
}

func TestRefresher_InvalidSchedule(t *testing.T) {
	_, err := NewRefresher(New(nil), "every now and then")
	assert.ErrorIs(t, err, errors.ErrInvalidSchedule)
}

func TestRefresher_RunsOnSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)

	refreshed := make(chan struct{}, 1)
	first := newSack(ctrl, "fedora", 1)
	first.EXPECT().Close().Return(nil).AnyTimes()
	gomock.InOrder(
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(first, nil),
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).DoAndReturn(func(context.Context, config.Distro) (sack.Sack, error) {
			select {
			case refreshed <- struct{}{}:
			default:
			}
			return nil, errMirror
		}).MinTimes(1),
	)

	r := New(loader)
	_, err := r.Initialize(context.Background(), distros("fedora"))
	require.NoError(t, err)

	f, err := NewRefresher(r, "@every 1s")
	require.NoError(t, err)
	f.Start(context.Background())
	defer f.Stop()

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled refresh did not run")
	}
}

func TestWatcher_RefreshesOnRepoChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)

	reposDir := t.TempDir()
	cfg := []config.Distro{{ID: "fedora", ReposDir: reposDir}}

	refreshed := make(chan struct{})
	var once sync.Once
	first := newSack(ctrl, "fedora", 1)
	first.EXPECT().Close().Return(nil)
	gomock.InOrder(
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).Return(first, nil),
		loader.EXPECT().Load(gomock.Any(), distroIs("fedora")).DoAndReturn(func(context.Context, config.Distro) (sack.Sack, error) {
			once.Do(func() { close(refreshed) })
			next := newSack(ctrl, "fedora", 2)
			next.EXPECT().Close().Return(nil).AnyTimes()
			return next, nil
		}).MinTimes(1),
	)

	r := New(loader)
	_, err := r.Initialize(context.Background(), cfg)
	require.NoError(t, err)

	w, err := NewWatcher(r, cfg)
	require.NoError(t, err)
	w.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	// Unrelated files are ignored; a burst of repo edits refreshes once.
	require.NoError(t, os.WriteFile(filepath.Join(reposDir, "notes.txt"), []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(reposDir, "fedora.repo"), []byte("[fedora]\n"), 0o644))
	}

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("repository change did not trigger a refresh")
	}

	cancel()
	<-stopped
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(New(nil), []config.Distro{{ID: "fedora", ReposDir: filepath.Join(t.TempDir(), "missing")}})
	assert.Error(t, err)
}
