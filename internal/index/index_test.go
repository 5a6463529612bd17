package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/table"
)

func TestNew_RoundsToPowerOfTwo(t *testing.T) {
	tests := []struct {
		requested int
		expected  int
	}{
		{0, DefaultBuckets},
		{1, 1},
		{2, 2},
		{3, 4},
		{100, 128},
		{256, 256},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, New(tc.requested).Buckets(), "requested %d", tc.requested)
	}
}

func TestLookup_Absent(t *testing.T) {
	x := New(16)

	_, ok := x.Lookup(0x0801)
	assert.False(t, ok)
	assert.Equal(t, 0, x.Len())
}

func TestInsertLookupRemove(t *testing.T) {
	x := New(16)

	x.Insert(0x0801, 3)
	x.Insert(0x0802, 7)

	slot, ok := x.Lookup(0x0801)
	require.True(t, ok)
	assert.Equal(t, 3, slot)

	// Re-insert replaces the slot without growing the index
	x.Insert(0x0801, 9)
	slot, _ = x.Lookup(0x0801)
	assert.Equal(t, 9, slot)
	assert.Equal(t, 2, x.Len())

	assert.True(t, x.Remove(0x0801))
	assert.False(t, x.Remove(0x0801))
	_, ok = x.Lookup(0x0801)
	assert.False(t, ok)

	slot, ok = x.Lookup(0x0802)
	require.True(t, ok)
	assert.Equal(t, 7, slot)
}

func TestCollisions_SingleBucket(t *testing.T) {
	// One bucket forces every id into the same chain
	x := New(1)
	for i := 1; i <= 50; i++ {
		x.Insert(message.MessageID(i), i*10)
	}

	for i := 1; i <= 50; i++ {
		slot, ok := x.Lookup(message.MessageID(i))
		require.True(t, ok)
		assert.Equal(t, i*10, slot)
	}

	assert.True(t, x.Remove(25))
	_, ok := x.Lookup(25)
	assert.False(t, ok)
	slot, ok := x.Lookup(26)
	require.True(t, ok)
	assert.Equal(t, 260, slot)
}

func TestRebuild_MatchesTable(t *testing.T) {
	limits := table.DefaultLimits()
	limits.FilterEntries = 8
	tbl := table.NewFilterTable(limits)
	tbl.Entries[0].MessageID = 0x0800
	tbl.Entries[2].MessageID = 0x0801
	tbl.Entries[5].MessageID = 0x0900
	tbl.Entries[6].MessageID = 0x0801 // duplicate, first row wins

	x := New(4)
	x.Insert(0x1234, 1) // stale entry must disappear
	x.Rebuild(tbl)

	assert.Equal(t, 3, x.Len())
	_, ok := x.Lookup(0x1234)
	assert.False(t, ok)

	for _, id := range []message.MessageID{0x0800, 0x0801, 0x0900} {
		slot, ok := x.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, tbl.Find(id), slot)
	}
}

func TestRebuild_EquivalentToIncremental(t *testing.T) {
	limits := table.DefaultLimits()
	tbl := table.NewFilterTable(limits)
	for i := 0; i < 100; i++ {
		tbl.Entries[i*2].MessageID = message.MessageID(0x0800 + i)
	}

	rebuilt := New(32)
	rebuilt.Rebuild(tbl)

	incremental := New(32)
	for slot, e := range tbl.Entries {
		if !e.Empty() {
			incremental.Insert(e.MessageID, slot)
		}
	}

	assert.Equal(t, incremental.Len(), rebuilt.Len())
	for i := 0; i < 100; i++ {
		id := message.MessageID(0x0800 + i)
		a, okA := rebuilt.Lookup(id)
		b, okB := incremental.Lookup(id)
		assert.True(t, okA)
		assert.True(t, okB)
		assert.Equal(t, b, a)
	}

	rebuilt.Rebuild(nil)
	assert.Equal(t, 0, rebuilt.Len())
}
