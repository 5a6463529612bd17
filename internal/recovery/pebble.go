package recovery

import (
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps sequence values in a Pebble database
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens or creates the database in dir
func OpenPebble(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recovery directory: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open Pebble DB: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

// Load reads every sequence record
func (s *PebbleStore) Load() (map[int]uint32, error) {
	upper := append([]byte(nil), keyPrefix...)
	upper[len(upper)-1]++

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	values := make(map[int]uint32)
	for iter.First(); iter.Valid(); iter.Next() {
		dest, ok := decodeKey(iter.Key())
		if !ok {
			continue
		}
		raw, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		values[dest] = v
	}

	return values, iter.Error()
}

// Save writes one record synchronously
func (s *PebbleStore) Save(dest int, value uint32) error {
	return s.db.Set(encodeKey(dest), encodeValue(value), pebble.Sync)
}

// Close closes the database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
