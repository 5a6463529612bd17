package filter

import (
	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/table"
)

// Valid reports whether (n, x, o) describe a usable window
func Valid(n, x, o uint16) bool {
	return x != 0 && n != 0 && n <= x && o < x
}

// Value extracts the 16-bit phase value a filter kind works on.
// The second result is false for unknown kinds.
func Value(msg *message.Message, kind table.FilterKind) (uint16, bool) {
	switch kind {
	case table.BySequence:
		return msg.Sequence, true
	case table.ByTime:
		return msg.TimeFilterValue(), true
	default:
		return 0, false
	}
}

// Evaluate applies the pass-N-of-every-X-starting-at-O window to a message.
// It keeps no state between calls; the window position comes from the
// message's own sequence counter or timestamp bits.
func Evaluate(msg *message.Message, kind table.FilterKind, n, x, o uint16) Result {
	if !Valid(n, x, o) {
		return Reject
	}

	value, ok := Value(msg, kind)
	if !ok {
		return Reject
	}

	if value < o {
		return Reject
	}
	if (value-o)%x < n {
		return Pass
	}
	return Reject
}

// EvaluateFilter applies a filter table slot to a message
func EvaluateFilter(msg *message.Message, f table.Filter) Result {
	return Evaluate(msg, f.Kind, f.N, f.X, f.O)
}
