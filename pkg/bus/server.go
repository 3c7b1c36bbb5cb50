package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/service"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// DefaultCallTimeout bounds a single query call.
const DefaultCallTimeout = 30 * time.Second

// ServerOptions configures a Server.
type ServerOptions struct {
	Name        string
	Path        string
	Version     string
	CallTimeout time.Duration
}

// Server owns the bus name and the exported object.
type Server struct {
	conn  *dbus.Conn
	name  string
	iface string
	props *prop.Properties
}

// object carries the exported methods. Every exported method of object is
// published on the bus.
type object struct {
	ctx     context.Context
	svc     Service
	timeout time.Duration
}

// NewServer exports svc on conn and claims opts.Name. The interface name is
// the bus name. ctx bounds every call dispatched to svc.
func NewServer(ctx context.Context, conn *dbus.Conn, svc Service, opts ServerOptions) (*Server, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	path := dbus.ObjectPath(opts.Path)
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", opts.Path)
	}
	iface := opts.Name
	obj := &object{ctx: ctx, svc: svc, timeout: opts.CallTimeout}

	if err := conn.Export(obj, path, iface); err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", iface, err)
	}

	props, err := prop.Export(conn, path, prop.Map{
		iface: {
			"Distros": {Value: nonNil(svc.GetDistros()), Writable: false, Emit: prop.EmitTrue},
			"Version": {Value: opts.Version, Writable: false, Emit: prop.EmitConst},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}

	node := &introspect.Node{
		Name: opts.Path,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       iface,
				Methods:    introspect.Methods(obj),
				Properties: props.Introspection(iface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(opts.Name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request bus name %s: %w", opts.Name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("bus name %s is already taken", opts.Name)
	}

	logger.Info("Listening on the bus", logger.Fields{"name": opts.Name, "path": opts.Path})
	return &Server{conn: conn, name: opts.Name, iface: iface, props: props}, nil
}

// SetDistros publishes a new loaded set; watchers get PropertiesChanged.
func (s *Server) SetDistros(ids []string) {
	s.props.SetMust(s.iface, "Distros", nonNil(ids))
	logger.Debug("Published distribution set", logger.Fields{"distros": ids})
}

// Close releases the bus name.
func (s *Server) Close() error {
	_, err := s.conn.ReleaseName(s.name)
	return err
}

func (o *object) call() (context.Context, context.CancelFunc) {
	return context.WithTimeout(o.ctx, o.timeout)
}

func (o *object) SearchPackages(query, distro string) ([]service.PackageTuple, *dbus.Error) {
	ctx, cancel := o.call()
	defer cancel()
	res, err := o.svc.SearchPackages(ctx, query, distro)
	return res, busError(err)
}

func (o *object) ListFiles(pkg, distro string) ([]string, *dbus.Error) {
	ctx, cancel := o.call()
	defer cancel()
	res, err := o.svc.ListFiles(ctx, pkg, distro)
	return res, busError(err)
}

func (o *object) QueryRepoPackage(pkg, queryType, distro string) ([]string, *dbus.Error) {
	ctx, cancel := o.call()
	defer cancel()
	res, err := o.svc.QueryRepoPackage(ctx, pkg, queryType, distro)
	return res, busError(err)
}

func (o *object) QueryRepo(queries map[string]string, distro string) ([]service.PackageTuple, *dbus.Error) {
	ctx, cancel := o.call()
	defer cancel()
	res, err := o.svc.QueryRepo(ctx, queries, distro)
	return res, busError(err)
}

func (o *object) GetDistros() ([]string, *dbus.Error) {
	return nonNil(o.svc.GetDistros()), nil
}

// Refresh is not bounded by the call timeout; loads have their own.
func (o *object) Refresh(distro string) *dbus.Error {
	return busError(o.svc.Refresh(o.ctx, distro))
}

func (o *object) GetStatus() ([]StatusTuple, *dbus.Error) {
	return statusTuples(o.svc.Status()), nil
}

func busError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrDistroNotFound):
		return dbus.NewError(ErrorInvalidDistro, []interface{}{err.Error()})
	case stderrors.Is(err, errors.ErrRefreshRunning):
		return dbus.NewError(ErrorRefreshRunning, []interface{}{err.Error()})
	}
	return dbus.NewError(ErrorFailed, []interface{}{err.Error()})
}

// nonNil keeps an empty list from being sent as a nil variant.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
