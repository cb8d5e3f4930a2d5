package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const dbFile = "instances.db"

var bucketInstances = []byte("instances")

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the registry in dataDir. The database file
// is locked while open, so other processes wait up to a second for it.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, dbFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketInstances); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketInstances, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutInstance creates or replaces the record of inst.Name.
func (s *BoltStore) PutInstance(inst *types.Instance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data, err := json.Marshal(inst)
		if err != nil {
			return err
		}
		return b.Put([]byte(inst.Name), data)
	})
}

func (s *BoltStore) GetInstance(name string) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return json.Unmarshal(data, &inst)
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstances returns all records ordered by start time.
func (s *BoltStore) ListInstances() ([]*types.Instance, error) {
	var instances []*types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.ForEach(func(k, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return fmt.Errorf("failed to decode instance %s: %w", k, err)
			}
			instances = append(instances, &inst)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].StartedAt.Before(instances[j].StartedAt)
	})
	return instances, nil
}

// DeleteInstance removes a record. Removing a missing record is not an error.
func (s *BoltStore) DeleteInstance(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).Delete([]byte(name))
	})
}
