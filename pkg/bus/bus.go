// Package bus exposes the query service on D-Bus and provides a client for it.
package bus

import (
	"context"

	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/registry"
	"github.com/glorpus-work/querykit/pkg/service"
	"github.com/godbus/dbus/v5"
)

// Error names returned for failed calls.
const (
	ErrorFailed         = "com.github.Appadeia.QueryKit.Error.Failed"
	ErrorInvalidDistro  = "com.github.Appadeia.QueryKit.Error.InvalidDistro"
	ErrorRefreshRunning = "com.github.Appadeia.QueryKit.Error.RefreshRunning"
)

// StatusTuple is the bus projection of a distribution status, signature (ssxs).
type StatusTuple struct {
	Distro    string
	State     string
	Packages  int64
	LastError string
}

// Service is what the bus object dispatches to.
type Service interface {
	SearchPackages(ctx context.Context, query, distro string) ([]service.PackageTuple, error)
	ListFiles(ctx context.Context, pkg, distro string) ([]string, error)
	QueryRepoPackage(ctx context.Context, pkg, queryType, distro string) ([]string, error)
	QueryRepo(ctx context.Context, queries map[string]string, distro string) ([]service.PackageTuple, error)
	GetDistros() []string
	Refresh(ctx context.Context, distro string) error
	Status() []registry.Status
}

// Connect opens the bus named by busType: "system" or "session".
func Connect(busType string) (*dbus.Conn, error) {
	switch busType {
	case config.BusSession:
		return dbus.ConnectSessionBus()
	case config.BusSystem, "":
		return dbus.ConnectSystemBus()
	}
	return nil, errors.ErrInvalidBusTypeWithDetails(busType)
}

func statusTuples(in []registry.Status) []StatusTuple {
	out := make([]StatusTuple, 0, len(in))
	for _, s := range in {
		out = append(out, StatusTuple{
			Distro:    s.Distro,
			State:     string(s.State),
			Packages:  int64(s.Packages),
			LastError: s.LastError,
		})
	}
	return out
}
