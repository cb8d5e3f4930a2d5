package storage

import (
	"github.com/cuemby/embedded-cassandra/pkg/types"
)

// Registry is a Store shared between processes. Every call opens the
// database and closes it again, so the file is only locked during the call.
type Registry struct {
	dir string
}

// NewRegistry returns a registry kept in dataDir.
func NewRegistry(dataDir string) *Registry {
	return &Registry{dir: dataDir}
}

// Dir returns the data directory.
func (r *Registry) Dir() string {
	return r.dir
}

func (r *Registry) with(fn func(s *BoltStore) error) error {
	s, err := NewBoltStore(r.dir)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (r *Registry) PutInstance(inst *types.Instance) error {
	return r.with(func(s *BoltStore) error {
		return s.PutInstance(inst)
	})
}

func (r *Registry) GetInstance(name string) (*types.Instance, error) {
	var inst *types.Instance
	err := r.with(func(s *BoltStore) (err error) {
		inst, err = s.GetInstance(name)
		return err
	})
	return inst, err
}

func (r *Registry) ListInstances() ([]*types.Instance, error) {
	var instances []*types.Instance
	err := r.with(func(s *BoltStore) (err error) {
		instances, err = s.ListInstances()
		return err
	})
	return instances, err
}

func (r *Registry) DeleteInstance(name string) error {
	return r.with(func(s *BoltStore) error {
		return s.DeleteInstance(name)
	})
}

// Close is a no-op; nothing stays open between calls.
func (r *Registry) Close() error {
	return nil
}
