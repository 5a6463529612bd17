// Package archive routes inbound messages into destination files.
//
// An Engine owns the filter table, the message index and the destination
// manager. Every exported method takes the engine lock, so a single engine
// may be shared between the message loop and the periodic age tick.
package archive

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flowmesh/archiver/internal/destination"
	"github.com/flowmesh/archiver/internal/filter"
	"github.com/flowmesh/archiver/internal/index"
	"github.com/flowmesh/archiver/internal/logger"
	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/metrics"
	"github.com/flowmesh/archiver/internal/recovery"
	"github.com/flowmesh/archiver/internal/table"
)

// Options configure an Engine
type Options struct {
	Limits   table.Limits
	Header   destination.HeaderInfo
	FS       destination.FileSystem
	Clock    destination.Clock
	Notifier destination.Notifier
	Keeper   *recovery.Keeper
	Metrics  *metrics.ArchiveMetrics
	Sync     destination.SyncPolicy
}

// Counters are the packet and file counts reported to housekeeping
type Counters struct {
	Ignored          uint64
	Filtered         uint64
	Passed           uint64
	Disabled         uint64
	FileWrites       uint64
	FileWriteErrors  uint64
	FileUpdates      uint64
	FileUpdateErrors uint64
}

// Engine is one independent archiving instance
type Engine struct {
	mu sync.Mutex

	id      uuid.UUID
	limits  table.Limits
	filters *table.FilterTable
	index   *index.Index
	dests   *destination.Manager
	metrics *metrics.ArchiveMetrics
	log     zerolog.Logger
	enabled bool

	ignored  uint64
	filtered uint64
	passed   uint64
	disabled uint64
}

// New creates an enabled engine with no tables loaded
func New(opts Options) (*Engine, error) {
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	log := logger.WithComponent("archive").With().Str("instance", id.String()).Logger()

	notifier := opts.Notifier
	if notifier == nil {
		notifier = destination.NewLogNotifier(log)
	}

	return &Engine{
		id:      id,
		limits:  opts.Limits,
		index:   index.New(opts.Limits.IndexBuckets),
		metrics: opts.Metrics,
		log:     log,
		enabled: true,
		dests: destination.NewManager(destination.Options{
			Limits:   opts.Limits,
			Header:   opts.Header,
			FS:       opts.FS,
			Clock:    opts.Clock,
			Notifier: notifier,
			Keeper:   opts.Keeper,
			Metrics:  opts.Metrics,
			Sync:     opts.Sync,
			Logger:   &log,
		}),
	}, nil
}

// ID returns the instance identifier stamped on log lines
func (e *Engine) ID() string {
	return e.id.String()
}

// StorePacket archives msg to every destination whose filter passes it.
// Outcomes are only visible through counters and notifications.
func (e *Engine) StorePacket(msg *message.Message) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := e.storePacket(msg)
	e.metrics.RecordPacket(outcome, time.Since(start))
}

func (e *Engine) storePacket(msg *message.Message) string {
	if !e.enabled {
		e.disabled++
		return metrics.OutcomeDisabled
	}
	if e.filters == nil || !e.dests.Loaded() {
		e.ignored++
		return metrics.OutcomeIgnored
	}

	slot, ok := e.index.Lookup(msg.ID)
	if !ok {
		e.ignored++
		return metrics.OutcomeIgnored
	}

	passed := false
	for _, f := range e.filters.Entries[slot].Filters {
		if !f.InUse() {
			continue
		}
		dest := int(f.DestIndex)
		if dest >= e.dests.Count() || !e.dests.Enabled(dest) {
			continue
		}
		if filter.EvaluateFilter(msg, f) == filter.Reject {
			e.metrics.RecordRejection(f.Kind.String())
			continue
		}
		passed = true
		e.dests.SetupWrite(dest, msg)
	}

	if passed {
		e.passed++
		return metrics.OutcomePassed
	}
	e.filtered++
	return metrics.OutcomeFiltered
}

// TestAge ages open files by elapsed seconds and closes expired ones
func (e *Engine) TestAge(elapsed uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dests.TestAge(elapsed)
}

// SetEnabled turns packet processing on or off. Open files are left as they are.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
	e.log.Info().Bool("enabled", enabled).Msg("Archiving state set")
}

// Enabled reports whether packets are processed
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Ready reports whether both tables are loaded
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters != nil && e.dests.Loaded()
}

// Counters returns a snapshot of every counter
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()

	fc := e.dests.Counters()
	return Counters{
		Ignored:          e.ignored,
		Filtered:         e.filtered,
		Passed:           e.passed,
		Disabled:         e.disabled,
		FileWrites:       fc.FileWrites,
		FileWriteErrors:  fc.FileWriteErrors,
		FileUpdates:      fc.FileUpdates,
		FileUpdateErrors: fc.FileUpdateErrors,
	}
}

// ResetCounters zeroes every counter
func (e *Engine) ResetCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignored, e.filtered, e.passed, e.disabled = 0, 0, 0, 0
	e.dests.ResetCounters()
}

// FileInfo returns the status of every destination
func (e *Engine) FileInfo() []destination.FileStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dests.StatusAll()
}

// RequestStatus emits the status of dest to the notifier
func (e *Engine) RequestStatus(dest int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dests.Loaded() {
		return ErrNoDestinationTable
	}
	return e.dests.NotifyStatus(dest)
}

// SampleGrowth returns bytes written per destination since the last sample
func (e *Engine) SampleGrowth() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dests.SampleGrowth()
}
