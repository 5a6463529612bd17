// Package filename assembles bounded destination filenames.
//
// A name is Pathname + "/" + Basename + sequence token + "." + Extension.
// Count-based tokens are fixed-width zero-padded decimal; time-based tokens
// are the 13 characters YYYYDDDHHMMSS in UTC.
package filename

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowmesh/archiver/internal/table"
)

const (
	// Separator is the path separator used in flight file names
	Separator = '/'
	// TimeTokenLen is the length of a YYYYDDDHHMMSS token
	TimeTokenLen = 13
)

var (
	// ErrEmptyPath is returned when a destination has no working directory
	ErrEmptyPath = errors.New("destination pathname is empty")
	// ErrUnknownNameKind is returned when no sequence token can be produced
	ErrUnknownNameKind = errors.New("unknown filename type")
)

// TooLongError indicates the assembled name does not fit the filename buffer
type TooLongError struct {
	Length int
	Max    int
}

func (e TooLongError) Error() string {
	return fmt.Sprintf("filename length %d exceeds maximum %d", e.Length, e.Max)
}

// Builder builds names within fixed limits
type Builder struct {
	digits int
	maxLen int
}

// NewBuilder creates a builder from the static limits
func NewBuilder(limits table.Limits) *Builder {
	return &Builder{
		digits: limits.SequenceDigits,
		maxLen: limits.MaxFilenameLen,
	}
}

// Build assembles the filename for a destination
func (b *Builder) Build(cfg *table.DestinationConfig, sequence uint32, now time.Time) (string, error) {
	if cfg.Pathname == "" {
		return "", ErrEmptyPath
	}

	token := Token(cfg.NameKind, sequence, now, b.digits)
	if token == "" {
		return "", ErrUnknownNameKind
	}

	var sb strings.Builder
	sb.Grow(b.maxLen + 1)

	sb.WriteString(cfg.Pathname)
	if cfg.Pathname[len(cfg.Pathname)-1] != Separator {
		sb.WriteByte(Separator)
	}
	sb.WriteString(cfg.Basename)
	sb.WriteString(token)

	if cfg.Extension != "" {
		if cfg.Extension[0] != '.' {
			sb.WriteByte('.')
		}
		sb.WriteString(cfg.Extension)
	}

	if sb.Len() > b.maxLen {
		return "", TooLongError{Length: sb.Len(), Max: b.maxLen}
	}

	return sb.String(), nil
}

// Token returns the sequence portion of a filename, or "" for an unknown kind
func Token(kind table.NameKind, sequence uint32, now time.Time, digits int) string {
	switch kind {
	case table.ByCount:
		return countToken(sequence, digits)
	case table.ByTimeName:
		return timeToken(now)
	default:
		return ""
	}
}

// countToken keeps the low-order digits of value, least significant last
func countToken(value uint32, digits int) string {
	buf := make([]byte, digits)
	v := uint64(value)
	for i := digits - 1; i >= 0; i-- {
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf)
}

func timeToken(now time.Time) string {
	t := now.UTC()
	buf := make([]byte, 0, TimeTokenLen)
	buf = appendPadded(buf, t.Year(), 4)
	buf = appendPadded(buf, t.YearDay(), 3)
	buf = appendPadded(buf, t.Hour(), 2)
	buf = appendPadded(buf, t.Minute(), 2)
	buf = appendPadded(buf, t.Second(), 2)
	return string(buf)
}

func appendPadded(buf []byte, v, width int) []byte {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		buf = append(buf, '0')
	}
	return append(buf, s...)
}

// MoveTarget returns the path a closed file is relocated to
func MoveTarget(moveDir, name string, maxLen int) (string, error) {
	file := name
	if i := strings.LastIndexByte(name, Separator); i >= 0 {
		file = name[i+1:]
	}

	var sb strings.Builder
	sb.Grow(maxLen + 1)
	sb.WriteString(moveDir)
	if moveDir != "" && moveDir[len(moveDir)-1] != Separator {
		sb.WriteByte(Separator)
	}
	sb.WriteString(file)

	if sb.Len() > maxLen {
		return "", TooLongError{Length: sb.Len(), Max: maxLen}
	}
	return sb.String(), nil
}
