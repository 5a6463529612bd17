package destination

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/recovery"
	"github.com/flowmesh/archiver/internal/table"
	"github.com/flowmesh/archiver/internal/test"
)

var start = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

var headerBytes = uint64(HeaderSize + TrailerSize(table.DefaultLimits().MaxFilenameLen))

type fakeFile struct {
	buf        []byte
	writeErr   error
	shortWrite bool
	writeAtErr error
	syncs      int
	closed     bool
}

func (f *fakeFile) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.shortWrite {
		f.buf = append(f.buf, p[:len(p)-1]...)
		return len(p) - 1, nil
	}
	f.buf = append(f.buf, p...)
	return len(p), nil
}

func (f *fakeFile) WriteAt(p []byte, off int64) (int, error) {
	if f.writeAtErr != nil {
		return 0, f.writeAtErr
	}
	end := int(off) + len(p)
	if end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	copy(f.buf[off:], p)
	return len(p), nil
}

func (f *fakeFile) Sync() error {
	f.syncs++
	return nil
}

func (f *fakeFile) Close() error {
	f.closed = true
	return nil
}

type fakeFS struct {
	files     map[string]*fakeFile
	created   []string
	renames   [][2]string
	createErr error
	renameErr error
	// prepare is applied to each new file
	prepare func(*fakeFile)
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string]*fakeFile)}
}

func (fs *fakeFS) Create(name string) (File, error) {
	if fs.createErr != nil {
		return nil, fs.createErr
	}
	f := &fakeFile{}
	if fs.prepare != nil {
		fs.prepare(f)
	}
	fs.files[name] = f
	fs.created = append(fs.created, name)
	return f, nil
}

func (fs *fakeFS) Rename(from, to string) error {
	if fs.renameErr != nil {
		return fs.renameErr
	}
	fs.renames = append(fs.renames, [2]string{from, to})
	fs.files[to] = fs.files[from]
	delete(fs.files, from)
	return nil
}

type harness struct {
	m        *Manager
	fs       *fakeFS
	store    *recovery.MemoryStore
	clock    *test.Clock
	notified []FileStatus
}

func countConfig(maxSize, maxAge uint32) table.DestinationConfig {
	return table.DestinationConfig{
		Pathname:     "/ram",
		Basename:     "hk",
		Extension:    "dat",
		NameKind:     table.ByCount,
		Enabled:      table.Enabled,
		MaxSize:      maxSize,
		MaxAge:       maxAge,
		SequenceBase: 1,
	}
}

func newHarness(t *testing.T, cfgs ...table.DestinationConfig) *harness {
	t.Helper()
	h := &harness{
		fs:    newFakeFS(),
		store: recovery.NewMemoryStore(),
		clock: test.NewClock(start),
	}
	h.m = NewManager(Options{
		Limits: table.DefaultLimits(),
		Header: HeaderInfo{SpacecraftID: 66, ProcessorID: 1, ApplicationID: 7},
		FS:     h.fs,
		Clock:  h.clock,
		Notifier: NotifierFunc(func(s FileStatus) {
			h.notified = append(h.notified, s)
		}),
		Keeper: recovery.NewKeeper(h.store, nil),
	})

	tbl := &table.DestinationTable{Description: "test", Destinations: cfgs}
	h.m.Configure(tbl)
	return h
}

func (h *harness) file(t *testing.T, name string) *fakeFile {
	t.Helper()
	f, ok := h.fs.files[name]
	require.True(t, ok, "missing file %s", name)
	return f
}

func TestSetupWrite_CreatesFileWithHeader(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60))

	h.m.SetupWrite(0, test.Packet(0x0801, 1, 5))

	f := h.file(t, "/ram/hk00000001.dat")
	assert.Len(t, f.buf, int(headerBytes)+5)

	hdr, tr, err := DecodeHeader(f.buf, table.DefaultLimits().MaxFilenameLen)
	require.NoError(t, err)
	assert.Equal(t, SubtypeArchive, hdr.Subtype)
	assert.Equal(t, uint32(HeaderSize), hdr.Length)
	assert.Equal(t, uint32(66), hdr.SpacecraftID)
	assert.Equal(t, uint32(7), hdr.ApplicationID)
	assert.Equal(t, message.FromTime(start), hdr.Created)
	assert.Equal(t, DefaultDescription, hdr.Description)
	assert.True(t, tr.Closed.IsZero())
	assert.Equal(t, uint16(0), tr.Dest)
	assert.Equal(t, table.ByCount, tr.NameKind)
	assert.Equal(t, "/ram/hk00000001.dat", tr.Filename)

	// Header, trailer and packet
	assert.Equal(t, uint64(3), h.m.Counters().FileWrites)

	s, err := h.m.Status(0)
	require.NoError(t, err)
	assert.True(t, s.Open)
	assert.Equal(t, headerBytes+5, s.Size)
	assert.Equal(t, uint32(2), s.Sequence)

	saved, _ := h.store.Load()
	assert.Equal(t, uint32(2), saved[0])
}

func TestSetupWrite_FirstWriteExemptFromSizeLimit(t *testing.T) {
	h := newHarness(t, countConfig(10, 60))

	h.m.SetupWrite(0, test.Packet(0x0801, 1, 100))

	assert.Len(t, h.fs.created, 1)
	f := h.file(t, "/ram/hk00000001.dat")
	assert.Len(t, f.buf, int(headerBytes)+100)
}

func TestSetupWrite_AppendsWithinLimit(t *testing.T) {
	h := newHarness(t, countConfig(10, 60))
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))
	h.m.dests[0].size = 3

	h.m.SetupWrite(0, test.Packet(0x0801, 2, 5))

	assert.Len(t, h.fs.created, 1)
	assert.Equal(t, uint64(8), h.m.dests[0].size)
	assert.Equal(t, uint64(0), h.m.Counters().FileUpdates)
}

func TestSetupWrite_RotatesWhenOverLimit(t *testing.T) {
	h := newHarness(t, countConfig(5, 60))
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))
	h.m.dests[0].size = 10
	h.m.dests[0].age = 7
	h.clock.Advance(30 * time.Second)

	h.m.SetupWrite(0, test.Packet(0x0801, 2, 1))

	require.Equal(t, []string{"/ram/hk00000001.dat", "/ram/hk00000002.dat"}, h.fs.created)

	first := h.file(t, "/ram/hk00000001.dat")
	assert.True(t, first.closed)
	_, tr, err := DecodeHeader(first.buf, table.DefaultLimits().MaxFilenameLen)
	require.NoError(t, err)
	assert.Equal(t, message.FromTime(start.Add(30*time.Second)), tr.Closed)
	assert.Equal(t, uint64(1), h.m.Counters().FileUpdates)

	require.Len(t, h.notified, 1)
	assert.Equal(t, "/ram/hk00000001.dat", h.notified[0].Name)
	assert.Equal(t, uint64(10), h.notified[0].Size)
	assert.Equal(t, uint32(7), h.notified[0].Age)

	// The new file starts from a reset baseline
	r := h.m.dests[0]
	assert.Equal(t, "/ram/hk00000002.dat", r.name)
	assert.Equal(t, headerBytes+1, r.size)
	assert.Equal(t, uint32(0), r.age)
	assert.Equal(t, uint32(3), r.sequence)
}

func TestCreateDest_SequenceWrapsToBase(t *testing.T) {
	cfg := countConfig(1000, 60)
	cfg.SequenceBase = 5
	h := newHarness(t, cfg)
	h.m.dests[0].sequence = table.DefaultLimits().MaxSequence

	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	h.file(t, "/ram/hk99999999.dat")
	assert.Equal(t, uint32(5), h.m.dests[0].sequence)

	saved, _ := h.store.Load()
	assert.Equal(t, uint32(5), saved[0])
}

func TestCreateDest_TimeNamingKeepsSequence(t *testing.T) {
	cfg := countConfig(1000, 60)
	cfg.NameKind = table.ByTimeName
	h := newHarness(t, cfg)

	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	h.file(t, "/ram/hk2025060120000.dat")
	assert.Equal(t, uint32(1), h.m.dests[0].sequence)
	assert.Equal(t, 0, h.store.Saves())
}

func TestCreateDest_NamingFailureDisables(t *testing.T) {
	cfg := countConfig(1000, 60)
	cfg.Pathname = "/" + strings.Repeat("p", 60)
	h := newHarness(t, cfg)

	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	assert.Empty(t, h.fs.created)
	assert.False(t, h.m.Enabled(0))
	assert.Equal(t, "", h.m.dests[0].name)
	assert.Equal(t, Counters{}, h.m.Counters())
}

func TestCreateDest_CreateFailureDisables(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60))
	h.fs.createErr = errors.New("no space")

	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	assert.False(t, h.m.Enabled(0))
	assert.Equal(t, "", h.m.dests[0].name)
	assert.Equal(t, uint64(1), h.m.Counters().FileWriteErrors)
	assert.Equal(t, uint32(1), h.m.dests[0].sequence)
	assert.Equal(t, 0, h.store.Saves())
}

func TestWriteData_ErrorClosesAndDisables(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60))
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))
	f := h.file(t, "/ram/hk00000001.dat")
	f.writeErr = errors.New("io error")

	h.m.SetupWrite(0, test.Packet(0x0801, 2, 1))

	c := h.m.Counters()
	assert.Equal(t, uint64(1), c.FileWriteErrors)
	assert.Equal(t, uint64(3), c.FileWrites)
	assert.True(t, f.closed)
	assert.False(t, h.m.Enabled(0))
	assert.False(t, h.m.dests[0].open())
	require.Len(t, h.notified, 1)

	// Disabled destinations are skipped by the caller, but re-enabling works
	require.NoError(t, h.m.SetState(0, table.Enabled))
	h.m.SetupWrite(0, test.Packet(0x0801, 3, 1))
	h.file(t, "/ram/hk00000002.dat")
}

func TestWriteData_ShortWriteIsAnError(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60))
	h.fs.prepare = func(f *fakeFile) { f.shortWrite = true }

	h.m.SetupWrite(0, test.Packet(0x0801, 1, 4))

	assert.Equal(t, uint64(1), h.m.Counters().FileWriteErrors)
	assert.Equal(t, uint64(0), h.m.Counters().FileWrites)
	assert.False(t, h.m.Enabled(0))
	// The sequence still advanced since the file was created
	assert.Equal(t, uint32(2), h.m.dests[0].sequence)
}

func TestUpdateHeader_FailureDoesNotBlockClose(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60))
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))
	f := h.file(t, "/ram/hk00000001.dat")
	f.writeAtErr = errors.New("seek failed")

	require.NoError(t, h.m.Close(0))

	c := h.m.Counters()
	assert.Equal(t, uint64(1), c.FileUpdateErrors)
	assert.Equal(t, uint64(0), c.FileUpdates)
	assert.True(t, f.closed)
	assert.True(t, h.m.Enabled(0))
}

func TestCloseDest_Idempotent(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60))
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	h.m.CloseDest(0)
	counters := h.m.Counters()
	require.Len(t, h.notified, 1)

	h.m.CloseDest(0)
	require.NoError(t, h.m.Close(0))
	h.m.CloseAll()

	assert.Len(t, h.notified, 1)
	assert.Equal(t, counters, h.m.Counters())

	s, _ := h.m.Status(0)
	assert.False(t, s.Open)
	assert.Equal(t, "", s.Name)
	assert.Equal(t, uint64(0), s.Size)
	assert.Equal(t, uint32(0), s.Age)
}

func TestCloseDest_MovesFile(t *testing.T) {
	cfg := countConfig(1000, 60)
	cfg.MoveDir = "/dl"
	h := newHarness(t, cfg)
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	require.NoError(t, h.m.Close(0))

	require.Len(t, h.fs.renames, 1)
	assert.Equal(t, [2]string{"/ram/hk00000001.dat", "/dl/hk00000001.dat"}, h.fs.renames[0])
	require.Len(t, h.notified, 1)
	assert.Equal(t, "/dl/hk00000001.dat", h.notified[0].Name)
}

func TestCloseDest_MoveFailureIsNotFatal(t *testing.T) {
	cfg := countConfig(1000, 60)
	cfg.MoveDir = "/dl"
	h := newHarness(t, cfg)
	h.fs.renameErr = errors.New("cross device")
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	require.NoError(t, h.m.Close(0))

	assert.True(t, h.m.Enabled(0))
	require.Len(t, h.notified, 1)
	assert.Equal(t, "/ram/hk00000001.dat", h.notified[0].Name)
	assert.Equal(t, uint64(0), h.m.Counters().FileWriteErrors)
}

func TestTestAge(t *testing.T) {
	h := newHarness(t, countConfig(1000, 10), countConfig(1000, 10))
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))

	h.m.TestAge(4)
	assert.True(t, h.m.dests[0].open())
	assert.Equal(t, uint32(4), h.m.dests[0].age)
	// Closed destinations do not age
	assert.Equal(t, uint32(0), h.m.dests[1].age)

	h.m.TestAge(6)
	assert.False(t, h.m.dests[0].open())
	assert.Equal(t, uint64(1), h.m.Counters().FileUpdates)
	require.Len(t, h.notified, 1)
	assert.Equal(t, uint32(10), h.notified[0].Age)
}

func TestTestAge_NoTable(t *testing.T) {
	m := NewManager(Options{Limits: table.DefaultLimits(), FS: newFakeFS()})
	assert.NotPanics(t, func() { m.TestAge(100) })
	assert.False(t, m.Loaded())
}

func TestConfigure_RestoresThenResets(t *testing.T) {
	store := recovery.NewMemoryStore()
	require.NoError(t, store.Save(0, 42))

	fs := newFakeFS()
	m := NewManager(Options{
		Limits: table.DefaultLimits(),
		FS:     fs,
		Clock:  test.NewClock(start),
		Keeper: recovery.NewKeeper(store, nil),
	})

	cfgs := []table.DestinationConfig{countConfig(1000, 60), countConfig(1000, 60), {}}
	cfgs[1].Enabled = table.Disabled
	m.Configure(&table.DestinationTable{Destinations: cfgs})

	assert.Equal(t, uint32(42), m.dests[0].sequence)
	assert.Equal(t, uint32(1), m.dests[1].sequence)
	assert.True(t, m.Enabled(0))
	assert.False(t, m.Enabled(1))
	assert.False(t, m.Enabled(2))

	m.SetupWrite(0, test.Packet(0x0801, 1, 1))
	require.Contains(t, fs.files, "/ram/hk00000042.dat")

	// A reload finalises the open file and starts again from the base
	reload := []table.DestinationConfig{countConfig(1000, 60)}
	reload[0].SequenceBase = 100
	m.Configure(&table.DestinationTable{Destinations: reload})

	assert.True(t, fs.files["/ram/hk00000042.dat"].closed)
	assert.Equal(t, uint64(1), m.Counters().FileUpdates)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, uint32(100), m.dests[0].sequence)
	saved, _ := store.Load()
	assert.Equal(t, uint32(100), saved[0])

	m.Configure(nil)
	assert.False(t, m.Loaded())
	assert.Equal(t, 0, m.Count())
}

func TestSetStateAndSequence(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60), table.DestinationConfig{})

	assert.IsType(t, RangeError{}, h.m.SetState(5, table.Enabled))
	assert.IsType(t, NotConfiguredError{}, h.m.SetState(1, table.Enabled))
	require.NoError(t, h.m.SetState(0, table.Disabled))
	assert.False(t, h.m.Enabled(0))

	assert.IsType(t, SequenceRangeError{}, h.m.SetSequence(0, table.DefaultLimits().MaxSequence+1))
	assert.IsType(t, RangeError{}, h.m.SetSequence(-1, 1))
	require.NoError(t, h.m.SetSequence(0, 77))
	assert.Equal(t, uint32(77), h.m.dests[0].sequence)
	assert.Equal(t, uint32(1), h.m.config(0).SequenceBase)

	saved, _ := h.store.Load()
	assert.Equal(t, uint32(77), saved[0])
}

func TestStatusAndGrowth(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60), countConfig(1000, 60))
	h.m.SetupWrite(1, test.Packet(0x0801, 1, 10))

	all := h.m.StatusAll()
	require.Len(t, all, 2)
	assert.False(t, all[0].Open)
	assert.True(t, all[1].Open)
	assert.Equal(t, "/ram/hk00000001.dat", all[1].Name)

	_, err := h.m.Status(2)
	assert.Error(t, err)

	require.NoError(t, h.m.NotifyStatus(1))
	require.Len(t, h.notified, 1)
	assert.True(t, h.notified[0].Open)

	assert.Equal(t, []uint64{0, headerBytes + 10}, h.m.SampleGrowth())
	assert.Equal(t, []uint64{0, 0}, h.m.SampleGrowth())
}

func TestSyncPolicy(t *testing.T) {
	h := newHarness(t, countConfig(1000, 60))
	h.m.sync = SyncAlways
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))
	f := h.file(t, "/ram/hk00000001.dat")
	assert.Equal(t, 3, f.syncs)

	h.m.sync = SyncNone
	h.m.CloseDest(0)
	assert.Equal(t, 3, f.syncs)

	policy, ok := ParseSyncPolicy("ALWAYS")
	assert.True(t, ok)
	assert.Equal(t, SyncAlways, policy)
	policy, ok = ParseSyncPolicy("")
	assert.True(t, ok)
	assert.Equal(t, SyncOnClose, policy)
	_, ok = ParseSyncPolicy("sometimes")
	assert.False(t, ok)
}

func TestOSFileSystem(t *testing.T) {
	dir := test.TempDir(t)
	work := filepath.Join(dir, "ram")
	moved := filepath.Join(dir, "dl")

	cfg := countConfig(1000, 60)
	cfg.Pathname = work
	cfg.MoveDir = moved

	limits := table.DefaultLimits()
	limits.MaxFilenameLen = 200
	clock := test.NewClock(start)
	m := NewManager(Options{
		Limits: limits,
		FS:     OSFileSystem{CreateDirs: true},
		Clock:  clock,
	})
	m.Configure(&table.DestinationTable{Destinations: []table.DestinationConfig{cfg}})

	payload := []byte("telemetry")
	m.SetupWrite(0, &message.Message{ID: 0x0801, Data: payload})
	clock.Advance(time.Minute)
	require.NoError(t, m.Close(0))

	name := filepath.Join(moved, "hk00000001.dat")
	test.AssertFileExists(t, name)
	test.AssertFileNotExists(t, filepath.Join(work, "hk00000001.dat"))

	data := test.ReadFile(t, name)
	_, tr, err := DecodeHeader(data, limits.MaxFilenameLen)
	require.NoError(t, err)
	assert.Equal(t, message.FromTime(start.Add(time.Minute)), tr.Closed)
	assert.Equal(t, filepath.Join(work, "hk00000001.dat"), tr.Filename)
	assert.True(t, bytes.HasSuffix(data, payload))

	_, err = OSFileSystem{}.Create(filepath.Join(dir, "missing", "x"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSetupWrite_RotationNeverReusesNames(t *testing.T) {
	limits := table.DefaultLimits()
	limits.MaxSequence = 4
	fs := newFakeFS()
	m := NewManager(Options{Limits: limits, FS: fs, Clock: test.NewClock(start)})
	m.Configure(&table.DestinationTable{Destinations: []table.DestinationConfig{countConfig(1, 60)}})

	for i := 0; i < 4; i++ {
		m.SetupWrite(0, test.Packet(0x0801, uint16(i), 1))
	}

	require.Len(t, fs.created, 4)
	seen := make(map[string]bool)
	for _, name := range fs.created {
		assert.False(t, seen[name], "%s created twice", name)
		seen[name] = true
	}
	assert.Equal(t, uint32(1), m.dests[0].sequence)
}

func TestConfigure_SequenceBaseAboveMaxDisables(t *testing.T) {
	cfg := countConfig(1000, 60)
	cfg.SequenceBase = table.DefaultLimits().MaxSequence + 1
	h := newHarness(t, cfg)

	assert.False(t, h.m.Enabled(0))
	assert.Equal(t, 0, h.store.Saves())
	assert.IsType(t, SequenceRangeError{}, h.m.SetState(0, table.Enabled))
	assert.False(t, h.m.Enabled(0))
}

func TestConfigure_IgnoresRestoredSequenceAboveMax(t *testing.T) {
	store := recovery.NewMemoryStore()
	require.NoError(t, store.Save(0, table.DefaultLimits().MaxSequence+1))

	m := NewManager(Options{
		Limits: table.DefaultLimits(),
		FS:     newFakeFS(),
		Clock:  test.NewClock(start),
		Keeper: recovery.NewKeeper(store, nil),
	})
	m.Configure(&table.DestinationTable{Destinations: []table.DestinationConfig{countConfig(1000, 60)}})

	assert.Equal(t, uint32(1), m.dests[0].sequence)
	assert.True(t, m.Enabled(0))
}

func TestTestAge_SaturatesNearMaxAge(t *testing.T) {
	h := newHarness(t, countConfig(1000, math.MaxUint32-1))
	h.m.SetupWrite(0, test.Packet(0x0801, 1, 1))
	h.m.dests[0].age = math.MaxUint32 - 10

	h.m.TestAge(100)

	assert.False(t, h.m.dests[0].open())
	require.Len(t, h.notified, 1)
	assert.Equal(t, uint32(math.MaxUint32), h.notified[0].Age)
}
