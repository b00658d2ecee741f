package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/types"
)

var (
	// Bucket names
	bucketWorkloads = []byte("workloads")
	bucketUnits     = []byte("units")
	bucketBindings  = []byte("bindings")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "roost.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketWorkloads,
			bucketUnits,
			bucketBindings,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
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

func workloadKey(namespace, name string) []byte {
	return []byte(namespace + "/" + name)
}

// ordinalKey builds a per-ordinal key under a workload. Ordinals are
// zero-padded so bolt's byte order matches numeric order and prefix scans
// return units sorted by ordinal.
func ordinalKey(namespace, workload string, ordinal int) []byte {
	return []byte(fmt.Sprintf("%s/%s/%08d", namespace, workload, ordinal))
}

func ordinalPrefix(namespace, workload string) []byte {
	return []byte(namespace + "/" + workload + "/")
}

// Workload operations

func (s *BoltStore) SaveWorkload(w *types.Workload) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkloads)
		data, err := json.Marshal(w)
		if err != nil {
			return err
		}
		return b.Put(workloadKey(w.Namespace, w.Name), data)
	})
}

func (s *BoltStore) GetWorkload(namespace, name string) (*types.Workload, error) {
	var w types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkloads)
		data := b.Get(workloadKey(namespace, name))
		if data == nil {
			return fmt.Errorf("workload %s/%s: %w", namespace, name, errdefs.ErrNotFound)
		}
		return json.Unmarshal(data, &w)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *BoltStore) ListWorkloads() ([]*types.Workload, error) {
	var workloads []*types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkloads)
		return b.ForEach(func(k, v []byte) error {
			var w types.Workload
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			workloads = append(workloads, &w)
			return nil
		})
	})
	return workloads, err
}

func (s *BoltStore) DeleteWorkload(namespace, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkloads)
		return b.Delete(workloadKey(namespace, name))
	})
}

// Unit operations

func (s *BoltStore) SaveUnit(u *types.Unit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUnits)
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return b.Put(ordinalKey(u.Namespace, u.Workload, u.Ordinal), data)
	})
}

func (s *BoltStore) GetUnit(namespace, workload string, ordinal int) (*types.Unit, error) {
	var u types.Unit
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUnits)
		data := b.Get(ordinalKey(namespace, workload, ordinal))
		if data == nil {
			return fmt.Errorf("unit %s/%s/%d: %w", namespace, workload, ordinal, errdefs.ErrNotFound)
		}
		return json.Unmarshal(data, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUnits returns the units of one workload in ascending ordinal order.
func (s *BoltStore) ListUnits(namespace, workload string) ([]*types.Unit, error) {
	var units []*types.Unit
	prefix := ordinalPrefix(namespace, workload)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketUnits).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var u types.Unit
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			units = append(units, &u)
		}
		return nil
	})
	return units, err
}

func (s *BoltStore) DeleteUnit(namespace, workload string, ordinal int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUnits)
		return b.Delete(ordinalKey(namespace, workload, ordinal))
	})
}

// Binding operations

func (s *BoltStore) SaveBinding(vb *types.VolumeBinding) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		data, err := json.Marshal(vb)
		if err != nil {
			return err
		}
		return b.Put(ordinalKey(vb.Namespace, vb.Workload, vb.Ordinal), data)
	})
}

func (s *BoltStore) GetBinding(namespace, workload string, ordinal int) (*types.VolumeBinding, error) {
	var vb types.VolumeBinding
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		data := b.Get(ordinalKey(namespace, workload, ordinal))
		if data == nil {
			return fmt.Errorf("binding %s/%s/%d: %w", namespace, workload, ordinal, errdefs.ErrNotFound)
		}
		return json.Unmarshal(data, &vb)
	})
	if err != nil {
		return nil, err
	}
	return &vb, nil
}

// ListBindings returns the bindings of one workload in ascending ordinal
// order, released bindings included.
func (s *BoltStore) ListBindings(namespace, workload string) ([]*types.VolumeBinding, error) {
	var bindings []*types.VolumeBinding
	prefix := ordinalPrefix(namespace, workload)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBindings).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var vb types.VolumeBinding
			if err := json.Unmarshal(v, &vb); err != nil {
				return err
			}
			bindings = append(bindings, &vb)
		}
		return nil
	})
	return bindings, err
}

func (s *BoltStore) DeleteBinding(namespace, workload string, ordinal int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		return b.Delete(ordinalKey(namespace, workload, ordinal))
	})
}
