// Package test holds helpers shared by package tests.
package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowmesh/archiver/internal/message"
)

// TempDir creates a temporary directory for testing and returns its path.
// The directory is automatically cleaned up after the test.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "archiver-test-*")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir) // Ignore cleanup errors in tests
	})
	return dir
}

// CreateArchiveDirs creates working and move directories under baseDir
// and returns them.
func CreateArchiveDirs(t *testing.T, baseDir string) (work, moved string) {
	t.Helper()
	work = filepath.Join(baseDir, "ram")
	moved = filepath.Join(baseDir, "downlink")
	//nolint:gosec // Acceptable: test directory permissions
	require.NoError(t, os.MkdirAll(work, 0755))
	//nolint:gosec // Acceptable: test directory permissions
	require.NoError(t, os.MkdirAll(moved, 0755))
	return work, moved
}

// AssertFileExists checks if a file exists and fails the test if it doesn't.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.NoError(t, err, "file should exist: %s", path)
}

// AssertFileNotExists checks if a file doesn't exist and fails the test if it does.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.Error(t, err, "file should not exist: %s", path)
	require.True(t, os.IsNotExist(err), "expected file not to exist: %s", path)
}

// ReadFile returns the contents of path or fails the test
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// Clock is a manually advanced clock
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fixed time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Packet builds a message of size bytes
func Packet(id message.MessageID, seq uint16, size int) *message.Message {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return &message.Message{
		ID:       id,
		Sequence: seq,
		Time:     message.MissionTime{Seconds: uint32(seq)},
		Data:     data,
	}
}
