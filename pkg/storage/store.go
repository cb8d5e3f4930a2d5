package storage

import (
	"errors"

	"github.com/cuemby/embedded-cassandra/pkg/types"
)

// ErrNotFound is returned when no instance has the requested name.
var ErrNotFound = errors.New("instance not found")

// Store records running Cassandra instances.
type Store interface {
	PutInstance(inst *types.Instance) error
	GetInstance(name string) (*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	DeleteInstance(name string) error

	Close() error
}
