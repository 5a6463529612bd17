package message

import (
	"time"
)

// MessageID identifies a message type on the software bus
type MessageID uint32

const (
	// InvalidID marks an unused filter table slot
	InvalidID MessageID = 0
)

// MissionTime is a spacecraft timestamp: whole seconds plus a 2^-32 binary fraction
type MissionTime struct {
	// Seconds is the integer seconds field
	Seconds uint32
	// Subseconds is the fractional field, one count = 2^-32 seconds
	Subseconds uint32
}

// Message is one decoded telemetry message as received from the bus
type Message struct {
	// ID is the message type identifier
	ID MessageID
	// Sequence is the transport sequence counter
	Sequence uint16
	// Time is the message timestamp
	Time MissionTime
	// Data is the full message as it will be written to a destination file
	Data []byte
}

// Len returns the number of bytes that will be archived for the message
func (m *Message) Len() int {
	return len(m.Data)
}

// TimeFilterValue packs the low 11 bits of the seconds field and the high
// 4 bits of the subseconds field into a 15-bit phase value.
func (m *Message) TimeFilterValue() uint16 {
	return uint16((m.Time.Seconds&0x7FF)<<4) | uint16(m.Time.Subseconds>>28)
}

// FromTime converts a wall-clock time into mission time relative to the Unix epoch
func FromTime(t time.Time) MissionTime {
	nanos := uint64(t.Nanosecond())
	return MissionTime{
		Seconds:    uint32(t.Unix()),
		Subseconds: uint32((nanos << 32) / uint64(time.Second)),
	}
}

// Time converts mission time back into a UTC wall-clock time
func (mt MissionTime) Time() time.Time {
	nanos := (uint64(mt.Subseconds) * uint64(time.Second)) >> 32
	return time.Unix(int64(mt.Seconds), int64(nanos)).UTC()
}

// IsZero reports whether the timestamp is unset
func (mt MissionTime) IsZero() bool {
	return mt.Seconds == 0 && mt.Subseconds == 0
}
