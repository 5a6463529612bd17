package recovery

import (
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

const (
	// BoltFile is the database filename inside the recovery directory
	BoltFile = "recovery.db"
)

var bucketSequence = []byte("sequence")

// BoltStore keeps sequence values in a single bbolt file
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens or creates recovery.db in dir
func OpenBolt(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recovery directory: %w", err)
	}

	path := filepath.Join(dir, BoltFile)
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("recovery: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSequence)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recovery: init bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Load reads every sequence record
func (s *BoltStore) Load() (map[int]uint32, error) {
	values := make(map[int]uint32)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSequence).ForEach(func(k, v []byte) error {
			dest, ok := decodeKey(k)
			if !ok {
				return nil
			}
			value, err := decodeValue(v)
			if err != nil {
				return err
			}
			values[dest] = value
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Save upserts one record
func (s *BoltStore) Save(dest int, value uint32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSequence).Put(encodeKey(dest), encodeValue(value))
	})
}

// Close closes the database file
func (s *BoltStore) Close() error {
	return s.db.Close()
}
