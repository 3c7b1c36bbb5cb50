package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/registry"
	"github.com/glorpus-work/querykit/pkg/service"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	distros   []string
	refreshed []string
	refresh   error
	deadline  bool
}

func (f *fakeService) SearchPackages(ctx context.Context, query, distro string) ([]service.PackageTuple, error) {
	_, f.deadline = ctx.Deadline()
	if distro != "fedora" {
		return []service.PackageTuple{service.InvalidDistroPackage}, nil
	}
	return []service.PackageTuple{{Name: query, Summary: "s", Version: "1.0", DownloadSize: 10, InstallSize: 20, URL: "https://example.com/" + query + ".rpm"}}, nil
}

func (f *fakeService) ListFiles(_ context.Context, pkg, _ string) ([]string, error) {
	if pkg == "broken" {
		return nil, stderrors.New("disk I/O error")
	}
	return []string{"/usr/bin/" + pkg}, nil
}

func (f *fakeService) QueryRepoPackage(_ context.Context, pkg, queryType, _ string) ([]string, error) {
	return []string{pkg + " " + queryType}, nil
}

func (f *fakeService) QueryRepo(_ context.Context, queries map[string]string, _ string) ([]service.PackageTuple, error) {
	return []service.PackageTuple{{Name: queries["whatprovides"]}}, nil
}

func (f *fakeService) GetDistros() []string { return f.distros }

func (f *fakeService) Refresh(_ context.Context, distro string) error {
	f.refreshed = append(f.refreshed, distro)
	return f.refresh
}

func (f *fakeService) Status() []registry.Status {
	return []registry.Status{
		{Distro: "fedora", State: registry.StateLoaded, Packages: 70000},
		{Distro: "mageia", State: registry.StateFailed, LastError: "mirror unreachable"},
	}
}

func TestObject_Dispatch(t *testing.T) {
	svc := &fakeService{}
	obj := &object{ctx: context.Background(), svc: svc, timeout: time.Second}

	pkgs, derr := obj.SearchPackages("bash", "fedora")
	require.Nil(t, derr)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "bash", pkgs[0].Name)
	assert.True(t, svc.deadline, "call should carry a deadline")

	pkgs, derr = obj.SearchPackages("bash", "arch")
	require.Nil(t, derr)
	assert.Equal(t, []service.PackageTuple{service.InvalidDistroPackage}, pkgs)

	files, derr := obj.ListFiles("bash", "fedora")
	require.Nil(t, derr)
	assert.Equal(t, []string{"/usr/bin/bash"}, files)

	rels, derr := obj.QueryRepoPackage("bash", "requires", "fedora")
	require.Nil(t, derr)
	assert.Equal(t, []string{"bash requires"}, rels)

	pkgs, derr = obj.QueryRepo(map[string]string{"whatprovides": "webserver"}, "fedora")
	require.Nil(t, derr)
	assert.Equal(t, "webserver", pkgs[0].Name)

	distros, derr := obj.GetDistros()
	require.Nil(t, derr)
	assert.NotNil(t, distros)
	assert.Empty(t, distros)

	status, derr := obj.GetStatus()
	require.Nil(t, derr)
	assert.Equal(t, []StatusTuple{
		{Distro: "fedora", State: "loaded", Packages: 70000},
		{Distro: "mageia", State: "failed", LastError: "mirror unreachable"},
	}, status)

	require.Nil(t, obj.Refresh(""))
	assert.Equal(t, []string{""}, svc.refreshed)
}

func TestObject_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "unknown distro", err: errors.ErrDistroNotFoundWithID("arch"), want: ErrorInvalidDistro},
		{name: "refresh running", err: fmt.Errorf("fedora: %w", errors.ErrRefreshRunning), want: ErrorRefreshRunning},
		{name: "other", err: stderrors.New("boom"), want: ErrorFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &object{ctx: context.Background(), svc: &fakeService{refresh: tt.err}, timeout: time.Second}
			derr := obj.Refresh("fedora")
			require.NotNil(t, derr)
			assert.Equal(t, tt.want, derr.Name)
			assert.Equal(t, []interface{}{tt.err.Error()}, derr.Body)
		})
	}

	obj := &object{ctx: context.Background(), svc: &fakeService{}, timeout: time.Second}
	_, derr := obj.ListFiles("broken", "fedora")
	require.NotNil(t, derr)
	assert.Equal(t, ErrorFailed, derr.Name)
	assert.Nil(t, busError(nil))
}

func TestConnect_InvalidType(t *testing.T) {
	_, err := Connect("carrier-pigeon")
	assert.ErrorIs(t, err, errors.ErrInvalidBusType)
}

// TestServerAndClient runs against a real session bus when one is available.
func TestServerAndClient(t *testing.T) {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("no session bus")
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		t.Skipf("session bus unavailable: %v", err)
	}
	defer conn.Close()

	name := fmt.Sprintf("com.github.Appadeia.QueryKit.Test%d", os.Getpid())
	path := "/com/github/Appadeia/QueryKit"
	svc := &fakeService{distros: []string{"fedora"}}

	srv, err := NewServer(context.Background(), conn, svc, ServerOptions{Name: name, Path: path, Version: "1.2.3"})
	require.NoError(t, err)
	defer srv.Close()

	clientConn, err := dbus.ConnectSessionBus()
	require.NoError(t, err)
	client := NewClient(clientConn, name, path)
	defer client.Close()

	ctx := context.Background()
	pkgs, err := client.SearchPackages(ctx, "bash", "fedora")
	require.NoError(t, err)
	assert.Equal(t, []service.PackageTuple{{Name: "bash", Summary: "s", Version: "1.0", DownloadSize: 10, InstallSize: 20, URL: "https://example.com/bash.rpm"}}, pkgs)

	files, err := client.ListFiles(ctx, "bash", "fedora")
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/bash"}, files)

	_, err = client.ListFiles(ctx, "broken", "fedora")
	var derr dbus.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, ErrorFailed, derr.Name)

	distros, err := client.Distros()
	require.NoError(t, err)
	assert.Equal(t, []string{"fedora"}, distros)

	srv.SetDistros([]string{"fedora", "mageia"})
	distros, err = client.Distros()
	require.NoError(t, err)
	assert.Equal(t, []string{"fedora", "mageia"}, distros)

	version, err := client.Version()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status, 2)

	require.NoError(t, client.Refresh(ctx, "fedora"))
}
