package destination

import (
	"github.com/rs/zerolog"

	"github.com/flowmesh/archiver/internal/table"
)

// FileStatus describes one destination for housekeeping
type FileStatus struct {
	Dest     int
	Name     string
	Open     bool
	Enabled  bool
	Age      uint32
	Size     uint64
	Sequence uint32
}

// Notifier receives status reports when a file closes or on request
type Notifier interface {
	Notify(status FileStatus)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(status FileStatus)

// Notify calls f
func (f NotifierFunc) Notify(status FileStatus) {
	f(status)
}

// LogNotifier writes status reports to a logger
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier on log
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the status at info level
func (n *LogNotifier) Notify(status FileStatus) {
	state := table.Disabled
	if status.Enabled {
		state = table.Enabled
	}
	n.log.Info().
		Int("dest", status.Dest).
		Str("file", status.Name).
		Bool("open", status.Open).
		Str("state", state.String()).
		Uint32("age", status.Age).
		Uint64("size", status.Size).
		Uint32("sequence", status.Sequence).
		Msg("Destination file status")
}

type nopNotifier struct{}

func (nopNotifier) Notify(FileStatus) {}
