package message

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	// EntryHeaderSize is the framing overhead per entry (length + checksum)
	EntryHeaderSize = 8
	// MaxEntrySize bounds a single captured message (64KB, above any bus message)
	MaxEntrySize = 64 * 1024
)

var (
	// CRC32Table for checksum calculation
	CRC32Table = crc32.MakeTable(crc32.IEEE)
)

// CaptureWriter appends framed messages to a capture file.
// Format per entry: [Length (4 bytes)][Encoded message][Checksum (4 bytes)]
type CaptureWriter struct {
	file   *os.File
	path   string
	offset int64
	mu     sync.Mutex
}

// NewCaptureWriter opens or creates a capture file for appending
func NewCaptureWriter(path string) (*CaptureWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		//nolint:errcheck // Ignore close error
		_ = file.Close()
		return nil, err
	}

	return &CaptureWriter{
		file:   file,
		path:   path,
		offset: stat.Size(),
	}, nil
}

// Append encodes and writes one message
func (cw *CaptureWriter) Append(msg *Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if len(data) > MaxEntrySize {
		return EntryTooLargeError{Size: len(data), Max: MaxEntrySize}
	}

	buf := make([]byte, 0, EntryHeaderSize+len(data))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.Checksum(data, CRC32Table))

	if _, err := cw.file.Write(buf); err != nil {
		return err
	}
	cw.offset += int64(len(buf))

	return nil
}

// Offset returns the current write offset
func (cw *CaptureWriter) Offset() int64 {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.offset
}

// Close syncs and closes the capture file
func (cw *CaptureWriter) Close() error {
	if cw.file == nil {
		return nil
	}
	if err := cw.file.Sync(); err != nil {
		//nolint:errcheck // Sync error takes precedence
		_ = cw.file.Close()
		return err
	}
	return cw.file.Close()
}

// CaptureReader reads framed messages from a capture stream
type CaptureReader struct {
	r      io.Reader
	closer io.Closer
	offset int64
}

// NewCaptureReader wraps an arbitrary stream, e.g. stdin
func NewCaptureReader(r io.Reader) *CaptureReader {
	cr := &CaptureReader{r: r}
	if c, ok := r.(io.Closer); ok {
		cr.closer = c
	}
	return cr
}

// OpenCapture opens a capture file for reading
func OpenCapture(path string) (*CaptureReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewCaptureReader(file), nil
}

// Next returns the next message, or io.EOF at the end of the stream
func (cr *CaptureReader) Next() (*Message, error) {
	var length uint32
	if err := binary.Read(cr.r, binary.BigEndian, &length); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	if length == 0 || length > MaxEntrySize {
		return nil, InvalidEntryLengthError{Length: length}
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(cr.r, data); err != nil {
		return nil, err
	}

	var stored uint32
	if err := binary.Read(cr.r, binary.BigEndian, &stored); err != nil {
		return nil, err
	}

	if actual := crc32.Checksum(data, CRC32Table); actual != stored {
		return nil, ChecksumMismatchError{Expected: stored, Actual: actual}
	}

	cr.offset += EntryHeaderSize + int64(length)

	return Decode(data)
}

// Offset returns the number of bytes consumed so far
func (cr *CaptureReader) Offset() int64 {
	return cr.offset
}

// Close closes the underlying stream when it is closable
func (cr *CaptureReader) Close() error {
	if cr.closer != nil {
		return cr.closer.Close()
	}
	return nil
}
