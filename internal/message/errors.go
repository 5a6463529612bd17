package message

import "fmt"

// EntryTooLargeError indicates a capture entry exceeds the maximum size
type EntryTooLargeError struct {
	Size int
	Max  int
}

func (e EntryTooLargeError) Error() string {
	return fmt.Sprintf("entry size %d exceeds maximum %d", e.Size, e.Max)
}

// InvalidEntryLengthError indicates a corrupt length prefix
type InvalidEntryLengthError struct {
	Length uint32
}

func (e InvalidEntryLengthError) Error() string {
	return fmt.Sprintf("invalid entry length: %d", e.Length)
}

// ChecksumMismatchError indicates a checksum validation failure
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %d, got %d", e.Expected, e.Actual)
}
