// Package destination owns the rotating destination files.
//
// Each destination is Closed, Open or Disabled. Files are created on the
// first passing message, rotated by size on write and by age on tick, and
// optionally moved to a second directory once closed. No error leaves this
// package through the packet path: failures are logged, counted and turned
// into state changes.
package destination

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowmesh/archiver/internal/filename"
	"github.com/flowmesh/archiver/internal/logger"
	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/metrics"
	"github.com/flowmesh/archiver/internal/recovery"
	"github.com/flowmesh/archiver/internal/table"
)

// Counters are the monotonic file activity counts
type Counters struct {
	FileWrites       uint64
	FileWriteErrors  uint64
	FileUpdates      uint64
	FileUpdateErrors uint64
}

// Options configure a Manager
type Options struct {
	Limits   table.Limits
	Header   HeaderInfo
	FS       FileSystem
	Clock    Clock
	Notifier Notifier
	Keeper   *recovery.Keeper
	Metrics  *metrics.ArchiveMetrics
	Sync     SyncPolicy
	Logger   *zerolog.Logger
}

// runtime is the mutable state of one destination
type runtime struct {
	file     File
	name     string
	size     uint64
	age      uint32
	growth   uint64
	sequence uint32
	state    table.EnableState
}

func (r *runtime) open() bool {
	return r.file != nil
}

// Manager holds runtime state for every destination
type Manager struct {
	limits   table.Limits
	header   HeaderInfo
	fs       FileSystem
	clock    Clock
	notifier Notifier
	keeper   *recovery.Keeper
	metrics  *metrics.ArchiveMetrics
	sync     SyncPolicy
	builder  *filename.Builder
	log      zerolog.Logger

	table    *table.DestinationTable
	dests    []runtime
	counters Counters
	restored bool
}

// NewManager creates a manager with no destination table loaded
func NewManager(opts Options) *Manager {
	m := &Manager{
		limits:   opts.Limits,
		header:   opts.Header,
		fs:       opts.FS,
		clock:    opts.Clock,
		notifier: opts.Notifier,
		keeper:   opts.Keeper,
		metrics:  opts.Metrics,
		sync:     opts.Sync,
		builder:  filename.NewBuilder(opts.Limits),
	}
	if m.fs == nil {
		m.fs = OSFileSystem{}
	}
	if m.clock == nil {
		m.clock = SystemClock{}
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.keeper == nil {
		m.keeper = recovery.NewKeeper(nil, nil)
	}
	if m.sync == "" {
		m.sync = SyncOnClose
	}
	if opts.Logger != nil {
		m.log = opts.Logger.With().Str("component", "destination").Logger()
	} else {
		m.log = logger.WithComponent("destination")
	}
	return m
}

// Loaded reports whether a destination table is in effect
func (m *Manager) Loaded() bool {
	return m.table != nil
}

// Count returns the number of destination slots
func (m *Manager) Count() int {
	return len(m.dests)
}

// Counters returns a snapshot of the file counters
func (m *Manager) Counters() Counters {
	return m.counters
}

// Configure applies a destination table. Open files are finalised first.
// The first table loaded takes sequence values from recovery where present;
// later tables reset each counter to its SequenceBase and persist it.
// A nil table unloads the destinations.
func (m *Manager) Configure(t *table.DestinationTable) {
	for i := range m.dests {
		if m.dests[i].open() {
			m.UpdateHeader(i)
			m.closeDest(i, metrics.ReasonReload)
		}
	}

	m.table = t
	if t == nil {
		m.dests = nil
		return
	}

	var restored map[int]uint32
	first := !m.restored
	if first {
		restored = m.keeper.Restore()
		m.restored = true
	}

	m.dests = make([]runtime, len(t.Destinations))
	for i := range t.Destinations {
		cfg := &t.Destinations[i]
		r := &m.dests[i]
		r.state = cfg.Enabled
		if !cfg.Configured() {
			r.state = table.Disabled
		}
		if cfg.Configured() && cfg.SequenceBase > m.limits.MaxSequence {
			r.state = table.Disabled
			m.log.Error().Err(SequenceRangeError{Value: cfg.SequenceBase, Max: m.limits.MaxSequence}).
				Int("dest", i).Msg("Sequence base out of range, destination disabled")
		}

		v, ok := restored[i]
		if ok && v > m.limits.MaxSequence {
			m.log.Warn().Int("dest", i).Uint32("sequence", v).Msg("Recovered sequence out of range, using base")
			ok = false
		}
		if ok && first {
			r.sequence = v
		} else {
			r.sequence = cfg.SequenceBase
			if !first && cfg.Configured() && cfg.SequenceBase <= m.limits.MaxSequence {
				m.keeper.Save(i, r.sequence)
			}
		}
		m.metrics.SetEnabled(i, r.state == table.Enabled)
	}

	m.log.Info().Str("table", t.Description).Int("destinations", len(t.Destinations)).Msg("Destination table applied")
}

// Enabled reports whether dest may receive writes
func (m *Manager) Enabled(dest int) bool {
	if dest < 0 || dest >= len(m.dests) {
		return false
	}
	return m.dests[dest].state == table.Enabled
}

func (m *Manager) config(dest int) *table.DestinationConfig {
	return &m.table.Destinations[dest]
}

func (m *Manager) check(dest int) error {
	if dest < 0 || dest >= len(m.dests) {
		return RangeError{Dest: dest, Count: len(m.dests)}
	}
	return nil
}

// SetupWrite routes one passing message to dest, creating or rotating
// the file as needed. The first write to a new file is never size checked.
func (m *Manager) SetupWrite(dest int, msg *message.Message) {
	r := &m.dests[dest]
	cfg := m.config(dest)

	if !r.open() {
		m.CreateDest(dest)
	} else if r.size+uint64(msg.Len()) > uint64(cfg.MaxSize) {
		m.UpdateHeader(dest)
		m.closeDest(dest, metrics.ReasonSize)
		m.CreateDest(dest)
	}

	if r.open() {
		m.WriteData(dest, msg.Data)
	}
}

// CreateDest builds a name, creates the file and writes its headers.
// Count based destinations advance their sequence afterwards.
func (m *Manager) CreateDest(dest int) {
	r := &m.dests[dest]
	cfg := m.config(dest)
	now := m.clock.Now()

	name, err := m.builder.Build(cfg, r.sequence, now)
	if err != nil {
		r.state = table.Disabled
		r.name = ""
		m.metrics.SetEnabled(dest, false)
		m.log.Error().Err(NamingError{Dest: dest, Err: err}).Int("dest", dest).Msg("Destination disabled")
		return
	}

	f, err := m.fs.Create(name)
	if err != nil {
		m.counters.FileWriteErrors++
		m.metrics.RecordWriteError(dest)
		r.state = table.Disabled
		r.name = ""
		m.metrics.SetEnabled(dest, false)
		m.log.Error().Err(CreateError{Dest: dest, Name: name, Err: err}).Int("dest", dest).Str("file", name).Msg("Destination disabled")
		return
	}

	r.file = f
	r.name = name
	r.size = 0
	r.age = 0
	m.metrics.RecordCreate(dest)
	m.log.Debug().Int("dest", dest).Str("file", name).Msg("Destination file created")

	m.writeHeader(dest, now)

	if cfg.NameKind == table.ByCount {
		r.sequence++
		if r.sequence > m.limits.MaxSequence {
			r.sequence = cfg.SequenceBase
		}
		m.keeper.Save(dest, r.sequence)
	}
}

// writeHeader writes the common header then the trailer with a zero close time
func (m *Manager) writeHeader(dest int, now time.Time) {
	r := &m.dests[dest]
	cfg := m.config(dest)

	h := EncodeHeader(FileHeader{
		HeaderInfo:  m.header,
		Subtype:     SubtypeArchive,
		Length:      HeaderSize,
		Created:     message.FromTime(now),
		Description: DefaultDescription,
	})
	if !m.WriteData(dest, h) {
		return
	}

	t := EncodeTrailer(Trailer{
		Dest:     uint16(dest),
		NameKind: cfg.NameKind,
		Filename: r.name,
	}, m.limits.MaxFilenameLen)
	m.WriteData(dest, t)
}

// WriteData appends data to the open file of dest. Any failure closes and
// disables the destination. Writes are never retried.
func (m *Manager) WriteData(dest int, data []byte) bool {
	r := &m.dests[dest]

	n, err := r.file.Write(data)
	if err == nil && n != len(data) {
		err = WriteError{Dest: dest, Name: r.name, Written: n, Expected: len(data)}
	} else if err != nil {
		err = WriteError{Dest: dest, Name: r.name, Written: n, Expected: len(data), Err: err}
	}
	if err == nil && m.sync == SyncAlways {
		if serr := r.file.Sync(); serr != nil {
			err = WriteError{Dest: dest, Name: r.name, Written: n, Expected: len(data), Err: serr}
		}
	}

	if err != nil {
		m.writeError(dest, err)
		return false
	}

	m.counters.FileWrites++
	r.size += uint64(n)
	r.growth += uint64(n)
	m.metrics.RecordWrite(dest, n)
	m.metrics.UpdateDestination(dest, int64(r.size), r.age)
	return true
}

func (m *Manager) writeError(dest int, err error) {
	r := &m.dests[dest]
	m.counters.FileWriteErrors++
	m.metrics.RecordWriteError(dest)
	m.log.Error().Err(err).Int("dest", dest).Str("file", r.name).Msg("Write failed, destination disabled")

	m.closeDest(dest, metrics.ReasonError)
	r.state = table.Disabled
	m.metrics.SetEnabled(dest, false)
}

// UpdateHeader patches the close time into the trailer. Failures are
// counted and never prevent the following close.
func (m *Manager) UpdateHeader(dest int) {
	r := &m.dests[dest]
	if !r.open() {
		return
	}

	buf := encodeCloseTime(message.FromTime(m.clock.Now()))
	n, err := r.file.WriteAt(buf, CloseTimeOffset)
	if err == nil && n != len(buf) {
		err = WriteError{Dest: dest, Name: r.name, Written: n, Expected: len(buf)}
	}
	if err != nil {
		m.counters.FileUpdateErrors++
		m.metrics.RecordHeaderUpdate(dest, false)
		m.log.Warn().Err(HeaderUpdateError{Dest: dest, Name: r.name, Err: err}).Int("dest", dest).Msg("Header update failed")
		return
	}

	m.counters.FileUpdates++
	m.metrics.RecordHeaderUpdate(dest, true)
}

// CloseDest closes the file of dest without patching its header. Closing a
// closed destination does nothing.
func (m *Manager) CloseDest(dest int) {
	m.closeDest(dest, metrics.ReasonCommand)
}

func (m *Manager) closeDest(dest int, reason string) {
	r := &m.dests[dest]
	if !r.open() {
		return
	}
	cfg := m.config(dest)

	if m.sync != SyncNone {
		if err := r.file.Sync(); err != nil {
			m.log.Warn().Err(err).Int("dest", dest).Str("file", r.name).Msg("Sync before close failed")
		}
	}
	if err := r.file.Close(); err != nil {
		m.log.Warn().Err(err).Int("dest", dest).Str("file", r.name).Msg("Close failed")
	}
	r.file = nil

	name := r.name
	if cfg.MoveDir != "" {
		name = m.move(dest, cfg.MoveDir, r.name)
	}

	m.log.Debug().Int("dest", dest).Str("file", name).Str("reason", reason).
		Uint64("size", r.size).Uint32("age", r.age).Msg("Destination file closed")

	status := m.status(dest)
	status.Name = name
	m.notifier.Notify(status)
	m.metrics.RecordClose(dest, reason)

	r.age = 0
	r.size = 0
	r.name = ""
}

// move relocates a closed file and returns where it now lives
func (m *Manager) move(dest int, moveDir, name string) string {
	target, err := filename.MoveTarget(moveDir, name, m.limits.MaxFilenameLen)
	if err == nil {
		err = m.fs.Rename(name, target)
	}
	if err != nil {
		m.metrics.RecordMoveError(dest)
		m.log.Error().Err(MoveError{Dest: dest, From: name, To: target, Err: err}).Int("dest", dest).Msg("Move of closed file failed")
		return name
	}
	return target
}

// TestAge advances the age of every open file and closes those that reach
// their maximum age. Nothing happens without a destination table.
func (m *Manager) TestAge(elapsed uint32) {
	if m.table == nil {
		return
	}
	for i := range m.dests {
		r := &m.dests[i]
		if !r.open() {
			continue
		}
		if r.age > math.MaxUint32-elapsed {
			r.age = math.MaxUint32
		} else {
			r.age += elapsed
		}
		if r.age >= m.config(i).MaxAge {
			m.UpdateHeader(i)
			m.closeDest(i, metrics.ReasonAge)
			continue
		}
		m.metrics.UpdateDestination(i, int64(r.size), r.age)
	}
}

// Close finalises and closes the file of dest if one is open
func (m *Manager) Close(dest int) error {
	if err := m.check(dest); err != nil {
		return err
	}
	if m.dests[dest].open() {
		m.UpdateHeader(dest)
		m.closeDest(dest, metrics.ReasonCommand)
	}
	return nil
}

// CloseAll finalises and closes every open file
func (m *Manager) CloseAll() {
	for i := range m.dests {
		if m.dests[i].open() {
			m.UpdateHeader(i)
			m.closeDest(i, metrics.ReasonCommand)
		}
	}
}

// SetState enables or disables dest. An open file stays open until it
// rotates by age or is closed.
func (m *Manager) SetState(dest int, state table.EnableState) error {
	if err := m.check(dest); err != nil {
		return err
	}
	cfg := m.config(dest)
	if state == table.Enabled && !cfg.Configured() {
		return NotConfiguredError{Dest: dest}
	}
	if state == table.Enabled && cfg.SequenceBase > m.limits.MaxSequence {
		return SequenceRangeError{Value: cfg.SequenceBase, Max: m.limits.MaxSequence}
	}
	m.dests[dest].state = state
	cfg.Enabled = state
	m.metrics.SetEnabled(dest, state == table.Enabled)
	m.log.Info().Int("dest", dest).Str("state", state.String()).Msg("Destination state set")
	return nil
}

// SetSequence sets the next sequence value of dest and persists it. The
// configured SequenceBase stays the wrap target.
func (m *Manager) SetSequence(dest int, value uint32) error {
	if err := m.check(dest); err != nil {
		return err
	}
	if value > m.limits.MaxSequence {
		return SequenceRangeError{Value: value, Max: m.limits.MaxSequence}
	}
	m.dests[dest].sequence = value
	m.keeper.Save(dest, value)
	m.log.Info().Int("dest", dest).Uint32("sequence", value).Msg("Destination sequence set")
	return nil
}

func (m *Manager) status(dest int) FileStatus {
	r := &m.dests[dest]
	return FileStatus{
		Dest:     dest,
		Name:     r.name,
		Open:     r.open(),
		Enabled:  r.state == table.Enabled,
		Age:      r.age,
		Size:     r.size,
		Sequence: r.sequence,
	}
}

// Status returns the state of one destination
func (m *Manager) Status(dest int) (FileStatus, error) {
	if err := m.check(dest); err != nil {
		return FileStatus{}, err
	}
	return m.status(dest), nil
}

// StatusAll returns the state of every destination
func (m *Manager) StatusAll() []FileStatus {
	out := make([]FileStatus, len(m.dests))
	for i := range m.dests {
		out[i] = m.status(i)
	}
	return out
}

// NotifyStatus emits the status of dest to the notifier
func (m *Manager) NotifyStatus(dest int) error {
	s, err := m.Status(dest)
	if err != nil {
		return err
	}
	m.notifier.Notify(s)
	return nil
}

// SampleGrowth returns bytes written per destination since the last sample
func (m *Manager) SampleGrowth() []uint64 {
	out := make([]uint64, len(m.dests))
	for i := range m.dests {
		out[i] = m.dests[i].growth
		m.dests[i].growth = 0
	}
	return out
}

// ResetCounters zeroes the file counters
func (m *Manager) ResetCounters() {
	m.counters = Counters{}
}
