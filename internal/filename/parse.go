package filename

import (
	"fmt"
	"strings"

	"github.com/flowmesh/archiver/internal/table"
)

// Parts are the components recovered from a built filename
type Parts struct {
	// Path is the directory without its trailing separator
	Path string
	// Base is the basename prefix
	Base string
	// Sequence is the count or time token
	Sequence string
	// Extension excludes the separating dot
	Extension string
}

// Parse splits a filename produced by Build. A dot starts the extension only
// when a complete token sits directly before it, so dotted basenames
// round-trip. Dotted extensions do not.
func Parse(name string, kind table.NameKind, digits int) (Parts, error) {
	var width int
	switch kind {
	case table.ByCount:
		width = digits
	case table.ByTimeName:
		width = TimeTokenLen
	default:
		return Parts{}, ErrUnknownNameKind
	}

	i := strings.LastIndexByte(name, Separator)
	if i < 0 {
		return Parts{}, fmt.Errorf("filename %q has no directory", name)
	}

	p := Parts{Path: name[:i]}
	rest := name[i+1:]

	if dot := strings.LastIndexByte(rest, '.'); dot >= width && isToken(rest[dot-width:dot]) {
		p.Extension = rest[dot+1:]
		rest = rest[:dot]
	}

	if len(rest) < width {
		return Parts{}, fmt.Errorf("filename %q is shorter than its %d character token", name, width)
	}

	p.Base = rest[:len(rest)-width]
	p.Sequence = rest[len(rest)-width:]
	return p, nil
}

// isToken reports whether s could be a count or time token. Both are all digits.
func isToken(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
