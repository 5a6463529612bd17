package destination

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File is an open destination file
type File interface {
	io.Writer
	io.WriterAt
	Sync() error
	Close() error
}

// FileSystem creates and relocates destination files
type FileSystem interface {
	// Create creates or truncates name for writing
	Create(name string) (File, error)
	// Rename moves a closed file
	Rename(from, to string) error
}

// OSFileSystem is the FileSystem backed by the host
type OSFileSystem struct {
	// CreateDirs creates missing parent directories on Create and Rename
	CreateDirs bool
}

// Create opens name read-write so the header can be patched in place
func (fs OSFileSystem) Create(name string) (File, error) {
	if fs.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Rename moves from to to
func (fs OSFileSystem) Rename(from, to string) error {
	if fs.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
			return err
		}
	}
	return os.Rename(from, to)
}

// SyncPolicy defines when destination files are synced to disk
type SyncPolicy string

const (
	// SyncNone leaves syncing to the operating system
	SyncNone SyncPolicy = "none"
	// SyncOnClose syncs once before each file is closed
	SyncOnClose SyncPolicy = "close"
	// SyncAlways syncs after every write
	SyncAlways SyncPolicy = "always"
)

// ParseSyncPolicy maps a configured name to a policy
func ParseSyncPolicy(s string) (SyncPolicy, bool) {
	switch SyncPolicy(strings.ToLower(s)) {
	case SyncNone:
		return SyncNone, true
	case SyncOnClose, "":
		return SyncOnClose, true
	case SyncAlways:
		return SyncAlways, true
	}
	return "", false
}

// Clock supplies the wall time used for names and header timestamps
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock
type SystemClock struct{}

// Now returns time.Now
func (SystemClock) Now() time.Time {
	return time.Now()
}
