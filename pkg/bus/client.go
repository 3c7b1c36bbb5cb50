package bus

import (
	"context"
	"fmt"

	"github.com/glorpus-work/querykit/pkg/service"
	"github.com/godbus/dbus/v5"
)

// Client calls a running daemon.
type Client struct {
	conn  *dbus.Conn
	obj   dbus.BusObject
	iface string
}

// NewClient addresses the object at path owned by name.
func NewClient(conn *dbus.Conn, name, path string) *Client {
	return &Client{conn: conn, obj: conn.Object(name, dbus.ObjectPath(path)), iface: name}
}

// Dial connects to busType and addresses the daemon.
func Dial(busType, name, path string) (*Client, error) {
	conn, err := Connect(busType)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the %s bus: %w", busType, err)
	}
	return NewClient(conn, name, path), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, out []interface{}, args ...interface{}) error {
	call := c.obj.CallWithContext(ctx, c.iface+"."+method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if len(out) == 0 {
		return nil
	}
	return call.Store(out...)
}

func (c *Client) SearchPackages(ctx context.Context, query, distro string) ([]service.PackageTuple, error) {
	var res []service.PackageTuple
	err := c.call(ctx, "SearchPackages", []interface{}{&res}, query, distro)
	return res, err
}

func (c *Client) ListFiles(ctx context.Context, pkg, distro string) ([]string, error) {
	var res []string
	err := c.call(ctx, "ListFiles", []interface{}{&res}, pkg, distro)
	return res, err
}

func (c *Client) QueryRepoPackage(ctx context.Context, pkg, queryType, distro string) ([]string, error) {
	var res []string
	err := c.call(ctx, "QueryRepoPackage", []interface{}{&res}, pkg, queryType, distro)
	return res, err
}

func (c *Client) QueryRepo(ctx context.Context, queries map[string]string, distro string) ([]service.PackageTuple, error) {
	if queries == nil {
		queries = map[string]string{}
	}
	var res []service.PackageTuple
	err := c.call(ctx, "QueryRepo", []interface{}{&res}, queries, distro)
	return res, err
}

func (c *Client) GetDistros(ctx context.Context) ([]string, error) {
	var res []string
	err := c.call(ctx, "GetDistros", []interface{}{&res})
	return res, err
}

// Refresh asks the daemon to reload distro, or every distribution when empty.
func (c *Client) Refresh(ctx context.Context, distro string) error {
	return c.call(ctx, "Refresh", nil, distro)
}

func (c *Client) Status(ctx context.Context) ([]StatusTuple, error) {
	var res []StatusTuple
	err := c.call(ctx, "GetStatus", []interface{}{&res})
	return res, err
}

// Distros reads the Distros property.
func (c *Client) Distros() ([]string, error) {
	var res []string
	v, err := c.obj.GetProperty(c.iface + ".Distros")
	if err != nil {
		return nil, err
	}
	err = dbus.Store([]interface{}{v.Value()}, &res)
	return res, err
}

// Version reads the daemon's Version property.
func (c *Client) Version() (string, error) {
	v, err := c.obj.GetProperty(c.iface + ".Version")
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected Version type %s", v.Signature())
	}
	return s, nil
}
