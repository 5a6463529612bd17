package destination

import "fmt"

// RangeError indicates a destination index outside the table
type RangeError struct {
	Dest  int
	Count int
}

func (e RangeError) Error() string {
	return fmt.Sprintf("destination index %d out of range [0,%d)", e.Dest, e.Count)
}

// NotConfiguredError indicates an operation on an unconfigured destination
type NotConfiguredError struct {
	Dest int
}

func (e NotConfiguredError) Error() string {
	return fmt.Sprintf("destination %d is not configured", e.Dest)
}

// SequenceRangeError indicates a sequence value beyond the wrap maximum
type SequenceRangeError struct {
	Value uint32
	Max   uint32
}

func (e SequenceRangeError) Error() string {
	return fmt.Sprintf("sequence %d exceeds maximum %d", e.Value, e.Max)
}

// NamingError indicates no filename could be built for a destination
type NamingError struct {
	Dest int
	Err  error
}

func (e NamingError) Error() string {
	return fmt.Sprintf("destination %d: filename: %v", e.Dest, e.Err)
}

func (e NamingError) Unwrap() error { return e.Err }

// CreateError indicates the destination file could not be created
type CreateError struct {
	Dest int
	Name string
	Err  error
}

func (e CreateError) Error() string {
	return fmt.Sprintf("destination %d: create %s: %v", e.Dest, e.Name, e.Err)
}

func (e CreateError) Unwrap() error { return e.Err }

// WriteError indicates a failed or short write
type WriteError struct {
	Dest     int
	Name     string
	Written  int
	Expected int
	Err      error
}

func (e WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("destination %d: write %s: %v", e.Dest, e.Name, e.Err)
	}
	return fmt.Sprintf("destination %d: short write to %s: %d of %d bytes", e.Dest, e.Name, e.Written, e.Expected)
}

func (e WriteError) Unwrap() error { return e.Err }

// MoveError indicates a closed file could not be relocated
type MoveError struct {
	Dest int
	From string
	To   string
	Err  error
}

func (e MoveError) Error() string {
	return fmt.Sprintf("destination %d: move %s to %s: %v", e.Dest, e.From, e.To, e.Err)
}

func (e MoveError) Unwrap() error { return e.Err }

// HeaderUpdateError indicates the close time could not be patched
type HeaderUpdateError struct {
	Dest int
	Name string
	Err  error
}

func (e HeaderUpdateError) Error() string {
	return fmt.Sprintf("destination %d: update header of %s: %v", e.Dest, e.Name, e.Err)
}

func (e HeaderUpdateError) Unwrap() error { return e.Err }

// InvalidHeaderError indicates bytes that are not an archive file header
type InvalidHeaderError struct {
	Reason string
}

func (e InvalidHeaderError) Error() string {
	return fmt.Sprintf("invalid archive header: %s", e.Reason)
}
