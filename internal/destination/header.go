package destination

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/table"
)

// File format constants. All integers are big-endian.
const (
	// Magic identifies an archive file ("ARC1")
	Magic uint32 = 0x41524331
	// SubtypeArchive marks the common header as belonging to a destination file
	SubtypeArchive uint32 = 0x4453
	// HeaderSize is the length of the common header
	HeaderSize = 64
	// DescriptionLen is the fixed width of the header description
	DescriptionLen = 32
	// CloseTimeOffset is where the trailer's close time is patched before close
	CloseTimeOffset = HeaderSize
	// trailerFixedSize covers close time, destination index and name kind
	trailerFixedSize = 4 + 4 + 2 + 2

	// DefaultDescription is written into every common header
	DefaultDescription = "Telemetry archive file"
)

// HeaderInfo carries the identifiers stamped into every file header
type HeaderInfo struct {
	SpacecraftID  uint32 `env:"SPACECRAFT_ID" envDefault:"66" yaml:"spacecraft_id"`
	ProcessorID   uint32 `env:"PROCESSOR_ID" envDefault:"1" yaml:"processor_id"`
	ApplicationID uint32 `env:"APPLICATION_ID" envDefault:"0" yaml:"application_id"`
}

// FileHeader is the common header at the start of each file
type FileHeader struct {
	HeaderInfo
	Subtype     uint32
	Length      uint32
	Created     message.MissionTime
	Description string
}

// Trailer immediately follows the common header
type Trailer struct {
	Closed   message.MissionTime
	Dest     uint16
	NameKind table.NameKind
	Filename string
}

// TrailerSize returns the trailer length for a filename field width
func TrailerSize(maxFilenameLen int) int {
	return trailerFixedSize + maxFilenameLen
}

// EncodeHeader renders the common header
func EncodeHeader(h FileHeader) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:], Magic)
	binary.BigEndian.PutUint32(buf[4:], h.Subtype)
	binary.BigEndian.PutUint32(buf[8:], h.Length)
	binary.BigEndian.PutUint32(buf[12:], h.SpacecraftID)
	binary.BigEndian.PutUint32(buf[16:], h.ProcessorID)
	binary.BigEndian.PutUint32(buf[20:], h.ApplicationID)
	binary.BigEndian.PutUint32(buf[24:], h.Created.Seconds)
	binary.BigEndian.PutUint32(buf[28:], h.Created.Subseconds)
	copy(buf[32:32+DescriptionLen], h.Description)
	return buf
}

// EncodeTrailer renders the trailer with a NUL padded filename field
func EncodeTrailer(t Trailer, maxFilenameLen int) []byte {
	buf := make([]byte, TrailerSize(maxFilenameLen))
	copy(buf[0:8], encodeCloseTime(t.Closed))
	binary.BigEndian.PutUint16(buf[8:], t.Dest)
	binary.BigEndian.PutUint16(buf[10:], uint16(t.NameKind))
	copy(buf[trailerFixedSize:], t.Filename)
	return buf
}

func encodeCloseTime(t message.MissionTime) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:], t.Seconds)
	binary.BigEndian.PutUint32(buf[4:], t.Subseconds)
	return buf
}

// DecodeHeader parses the header and trailer at the start of a file
func DecodeHeader(data []byte, maxFilenameLen int) (FileHeader, Trailer, error) {
	need := HeaderSize + TrailerSize(maxFilenameLen)
	if len(data) < need {
		return FileHeader{}, Trailer{}, InvalidHeaderError{Reason: fmt.Sprintf("need %d bytes, have %d", need, len(data))}
	}
	if m := binary.BigEndian.Uint32(data[0:]); m != Magic {
		return FileHeader{}, Trailer{}, InvalidHeaderError{Reason: fmt.Sprintf("bad magic 0x%08x", m)}
	}

	h := FileHeader{
		Subtype: binary.BigEndian.Uint32(data[4:]),
		Length:  binary.BigEndian.Uint32(data[8:]),
		HeaderInfo: HeaderInfo{
			SpacecraftID:  binary.BigEndian.Uint32(data[12:]),
			ProcessorID:   binary.BigEndian.Uint32(data[16:]),
			ApplicationID: binary.BigEndian.Uint32(data[20:]),
		},
		Created: message.MissionTime{
			Seconds:    binary.BigEndian.Uint32(data[24:]),
			Subseconds: binary.BigEndian.Uint32(data[28:]),
		},
		Description: cString(data[32 : 32+DescriptionLen]),
	}

	tr := data[HeaderSize:need]
	t := Trailer{
		Closed: message.MissionTime{
			Seconds:    binary.BigEndian.Uint32(tr[0:]),
			Subseconds: binary.BigEndian.Uint32(tr[4:]),
		},
		Dest:     binary.BigEndian.Uint16(tr[8:]),
		NameKind: table.NameKind(binary.BigEndian.Uint16(tr[10:])),
		Filename: cString(tr[trailerFixedSize:]),
	}
	return h, t, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
