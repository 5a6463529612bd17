// Package index maps message type identifiers to filter table slots.
package index

import (
	"encoding/binary"
	"math/bits"

	"github.com/zeebo/xxh3"

	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/table"
)

// DefaultBuckets is the default bucket count
const DefaultBuckets = 256

type link struct {
	id   message.MessageID
	slot int
}

// Index is a fixed-bucket hash of message id to filter table slot.
// Chains keep insertion order. The index must be rebuilt or patched after
// every filter table change and before the next lookup.
type Index struct {
	buckets [][]link
	mask    uint64
	count   int
}

// New creates an index with the bucket count rounded up to a power of two
func New(buckets int) *Index {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	size := 1 << bits.Len(uint(buckets-1))
	return &Index{
		buckets: make([][]link, size),
		mask:    uint64(size - 1),
	}
}

// Buckets returns the bucket count
func (x *Index) Buckets() int {
	return len(x.buckets)
}

// Len returns the number of indexed ids
func (x *Index) Len() int {
	return x.count
}

func (x *Index) bucket(id message.MessageID) int {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(id))
	return int(xxh3.Hash(key[:]) & x.mask)
}

// Lookup returns the filter table slot for id
func (x *Index) Lookup(id message.MessageID) (int, bool) {
	for _, l := range x.buckets[x.bucket(id)] {
		if l.id == id {
			return l.slot, true
		}
	}
	return 0, false
}

// Insert adds or replaces the slot for id
func (x *Index) Insert(id message.MessageID, slot int) {
	b := x.bucket(id)
	for i := range x.buckets[b] {
		if x.buckets[b][i].id == id {
			x.buckets[b][i].slot = slot
			return
		}
	}
	x.buckets[b] = append(x.buckets[b], link{id: id, slot: slot})
	x.count++
}

// Remove drops id from the index and reports whether it was present
func (x *Index) Remove(id message.MessageID) bool {
	b := x.bucket(id)
	chain := x.buckets[b]
	for i := range chain {
		if chain[i].id == id {
			x.buckets[b] = append(chain[:i], chain[i+1:]...)
			x.count--
			return true
		}
	}
	return false
}

// Clear empties every bucket
func (x *Index) Clear() {
	for i := range x.buckets {
		x.buckets[i] = x.buckets[i][:0]
	}
	x.count = 0
}

// Rebuild clears the index and inserts every non-empty filter table row.
// When a table holds an id twice the first row wins, matching a linear scan.
func (x *Index) Rebuild(t *table.FilterTable) {
	x.Clear()
	if t == nil {
		return
	}
	for slot := range t.Entries {
		e := &t.Entries[slot]
		if e.Empty() {
			continue
		}
		if _, exists := x.Lookup(e.MessageID); exists {
			continue
		}
		x.Insert(e.MessageID, slot)
	}
}
