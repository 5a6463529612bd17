// Package recovery persists destination sequence counters across resets.
package recovery

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Store is a small persisted key-value area holding one sequence value per destination
type Store interface {
	// Load returns every saved sequence value keyed by destination index
	Load() (map[int]uint32, error)
	// Save records the current sequence value for a destination
	Save(dest int, value uint32) error
	// Close releases the backing storage
	Close() error
}

// Backend names accepted by Open
const (
	BackendPebble = "pebble"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

var keyPrefix = []byte("seq/")

// encodeKey encodes a destination index as "seq/" + big-endian uint16
func encodeKey(dest int) []byte {
	key := make([]byte, len(keyPrefix)+2)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint16(key[len(keyPrefix):], uint16(dest))
	return key
}

// decodeKey reverses encodeKey
func decodeKey(key []byte) (int, bool) {
	if len(key) != len(keyPrefix)+2 || string(key[:len(keyPrefix)]) != string(keyPrefix) {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(key[len(keyPrefix):])), true
}

func encodeValue(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func decodeValue(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, CorruptRecordError{Length: len(data)}
	}
	return binary.BigEndian.Uint32(data), nil
}

// Open opens the named backend rooted at dir
func Open(backend, dir string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendPebble, "":
		return OpenPebble(dir)
	case BackendBolt:
		return OpenBolt(dir)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, UnknownBackendError{Backend: backend}
	}
}

// UnknownBackendError indicates an unsupported backend name
type UnknownBackendError struct {
	Backend string
}

func (e UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown recovery backend: %q", e.Backend)
}

// CorruptRecordError indicates a stored value of the wrong size
type CorruptRecordError struct {
	Length int
}

func (e CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt recovery record: %d bytes", e.Length)
}
