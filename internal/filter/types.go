package filter

// Result is the outcome of applying a filter to one message
type Result bool

const (
	// Reject means the message is not archived for this filter
	Reject Result = false
	// Pass means the message is archived for this filter
	Pass Result = true
)

func (r Result) String() string {
	if r == Pass {
		return "pass"
	}
	return "reject"
}
