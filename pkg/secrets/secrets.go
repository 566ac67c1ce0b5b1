package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDest             = "org.freedesktop.secrets"
	dbusServiceInterface = "org.freedesktop.Secret.Service"
	dbusPath             = "/org/freedesktop/secrets"
)

// Locker locks secret service objects.
type Locker interface {
	Lock(ctx context.Context, paths []string) error
}

type Service struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func New() (*Service, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	return &Service{
		conn: conn,
		obj:  conn.Object(dbusDest, dbusPath),
	}, nil
}

// Lock locks the given objects. The given objects are prepended by "/org/freedesktop/secrets/".
// Objects that require a prompt to be locked are left as is.
func (s *Service) Lock(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	objs := objectPaths(paths)
	var locked []dbus.ObjectPath
	var prompt dbus.ObjectPath
	err := s.obj.CallWithContext(ctx, dbusServiceInterface+".Lock", 0, objs).Store(&locked, &prompt)
	if err != nil {
		return fmt.Errorf("could not lock collection: %w", err)
	}

	return nil
}

func (s *Service) Close() error {
	return s.conn.Close()
}

func objectPaths(paths []string) []dbus.ObjectPath {
	objs := make([]dbus.ObjectPath, len(paths))
	for i, path := range paths {
		objs[i] = dbus.ObjectPath(dbusPath + "/" + strings.TrimPrefix(path, "/"))
	}
	return objs
}
