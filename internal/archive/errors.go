package archive

import (
	"errors"
	"fmt"

	"github.com/flowmesh/archiver/internal/message"
)

var (
	// ErrNoFilterTable is returned by filter mutations before a table is loaded
	ErrNoFilterTable = errors.New("no filter table loaded")
	// ErrNoDestinationTable is returned by destination commands before a table is loaded
	ErrNoDestinationTable = errors.New("no destination table loaded")
	// ErrInvalidMessageID is returned for the reserved unused id
	ErrInvalidMessageID = errors.New("invalid message id")
	// ErrFilterTableFull is returned when no unused row is left
	ErrFilterTableFull = errors.New("filter table is full")
)

// MessageNotFoundError indicates a message id with no filter table row
type MessageNotFoundError struct {
	ID message.MessageID
}

func (e MessageNotFoundError) Error() string {
	return fmt.Sprintf("message id 0x%04X not in filter table", uint32(e.ID))
}

// MessageExistsError indicates an id that already has a filter table row
type MessageExistsError struct {
	ID   message.MessageID
	Slot int
}

func (e MessageExistsError) Error() string {
	return fmt.Sprintf("message id 0x%04X already in filter table slot %d", uint32(e.ID), e.Slot)
}

// IndexRangeError indicates a row or filter index outside its table
type IndexRangeError struct {
	Field string
	Index int
	Max   int
}

func (e IndexRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [0,%d)", e.Field, e.Index, e.Max)
}
