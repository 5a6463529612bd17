package table

import (
	"github.com/flowmesh/archiver/internal/message"
)

// FilterKind selects which message field drives the pass/reject window
type FilterKind uint16

const (
	// BySequence filters on the transport sequence counter
	BySequence FilterKind = 1
	// ByTime filters on the packed timestamp phase value
	ByTime FilterKind = 2
)

// String returns the table-file spelling of the kind
func (k FilterKind) String() string {
	switch k {
	case BySequence:
		return "sequence"
	case ByTime:
		return "time"
	default:
		return "unknown"
	}
}

// NameKind selects how destination filenames are sequenced
type NameKind uint16

const (
	// ByCount numbers files with a persisted counter
	ByCount NameKind = 1
	// ByTimeName stamps files with the creation time
	ByTimeName NameKind = 2
)

// String returns the table-file spelling of the kind
func (k NameKind) String() string {
	switch k {
	case ByCount:
		return "count"
	case ByTimeName:
		return "time"
	default:
		return "unknown"
	}
}

// EnableState is the enable flag for a destination
type EnableState uint8

const (
	// Disabled destinations receive nothing
	Disabled EnableState = 0
	// Enabled destinations are eligible for writes
	Enabled EnableState = 1
)

// String returns a human-readable state
func (s EnableState) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Unused in a filter's N parameter marks the filter slot inert
const Unused uint16 = 0

// Filter routes a message type to one destination with an N-of-X-at-O window
type Filter struct {
	// DestIndex is the index into the destination table
	DestIndex uint16
	// Kind is the filter algorithm
	Kind FilterKind
	// N messages pass out of every X, starting at offset O
	N uint16
	X uint16
	O uint16
}

// InUse reports whether the filter slot is active
func (f Filter) InUse() bool {
	return f.N != Unused
}

// FilterEntry is one filter table row, keyed by message type
type FilterEntry struct {
	MessageID message.MessageID
	Filters   []Filter
}

// Empty reports whether the row is an unused slot
func (e *FilterEntry) Empty() bool {
	return e.MessageID == message.InvalidID
}

// Reset clears the row back to an unused slot while keeping its filter capacity
func (e *FilterEntry) Reset() {
	e.MessageID = message.InvalidID
	for i := range e.Filters {
		e.Filters[i] = Filter{}
	}
}

// FilterTable is the fixed-size table of message type subscriptions
type FilterTable struct {
	Description string
	Entries     []FilterEntry
}

// NewFilterTable returns an empty table sized to the limits
func NewFilterTable(limits Limits) *FilterTable {
	t := &FilterTable{Entries: make([]FilterEntry, limits.FilterEntries)}
	for i := range t.Entries {
		t.Entries[i].Filters = make([]Filter, limits.FiltersPerEntry)
	}
	return t
}

// Find returns the slot holding id with a linear scan, or -1
func (t *FilterTable) Find(id message.MessageID) int {
	for i := range t.Entries {
		if t.Entries[i].MessageID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the table
func (t *FilterTable) Clone() *FilterTable {
	c := &FilterTable{Description: t.Description, Entries: make([]FilterEntry, len(t.Entries))}
	for i, e := range t.Entries {
		c.Entries[i].MessageID = e.MessageID
		c.Entries[i].Filters = append([]Filter(nil), e.Filters...)
	}
	return c
}

// DestinationConfig is one destination table row
type DestinationConfig struct {
	// Pathname is the working directory for the destination's files
	Pathname string
	// Basename is the filename prefix
	Basename string
	// Extension is the filename suffix, with or without a leading dot
	Extension string
	// MoveDir, when set, receives each file after it is closed
	MoveDir string
	// NameKind selects count or time based sequencing
	NameKind NameKind
	// Enabled is the initial enable state applied on table load
	Enabled EnableState
	// MaxSize is the rotation size in bytes
	MaxSize uint32
	// MaxAge is the rotation age in seconds
	MaxAge uint32
	// SequenceBase is the counter value used on first load and after wrap
	SequenceBase uint32
}

// Configured reports whether the row describes a destination
func (d *DestinationConfig) Configured() bool {
	return d.Pathname != ""
}

// DestinationTable is the fixed-size table of destination files
type DestinationTable struct {
	Description  string
	Destinations []DestinationConfig
}

// Validate checks the table against the limits. Parsed tables are already
// checked; this covers tables assembled in code.
func (t *DestinationTable) Validate(limits Limits) error {
	if len(t.Destinations) > limits.Destinations {
		return TableBoundsError{Table: "destination", Field: "rows", Count: len(t.Destinations), Max: limits.Destinations}
	}
	for i := range t.Destinations {
		if err := checkSequenceBase(&t.Destinations[i], limits); err != nil {
			return err
		}
	}
	return nil
}

// NewDestinationTable returns an unconfigured table sized to the limits
func NewDestinationTable(limits Limits) *DestinationTable {
	return &DestinationTable{Destinations: make([]DestinationConfig, limits.Destinations)}
}

// Clone returns a copy of the table
func (t *DestinationTable) Clone() *DestinationTable {
	return &DestinationTable{
		Description:  t.Description,
		Destinations: append([]DestinationConfig(nil), t.Destinations...),
	}
}
