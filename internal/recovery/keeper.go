package recovery

import (
	"github.com/rs/zerolog"

	"github.com/flowmesh/archiver/internal/logger"
	"github.com/flowmesh/archiver/internal/metrics"
)

// Keeper restores and records sequence counters. When the backing store
// could not be opened or loaded the failure is logged once and the keeper
// degrades to a no-op, so archiving continues with default counters.
type Keeper struct {
	store   Store
	metrics *metrics.ArchiveMetrics
	log     zerolog.Logger

	restored   map[int]uint32
	saveErrors uint64
}

// NewKeeper wraps an open store. A nil store yields a no-op keeper.
func NewKeeper(store Store, m *metrics.ArchiveMetrics) *Keeper {
	return &Keeper{
		store:   store,
		metrics: m,
		log:     logger.WithComponent("recovery"),
	}
}

// OpenKeeper opens the named backend. An open failure is logged and a
// no-op keeper is returned.
func OpenKeeper(backend, dir string, m *metrics.ArchiveMetrics) *Keeper {
	k := NewKeeper(nil, m)
	store, err := Open(backend, dir)
	if err != nil {
		k.log.Error().Err(err).Str("backend", backend).Str("dir", dir).
			Msg("Sequence recovery unavailable, counters start from their configured base")
		return k
	}
	k.store = store
	return k
}

// Available reports whether values are being persisted
func (k *Keeper) Available() bool {
	return k.store != nil
}

// Restore loads saved values once. Later calls return the same map.
func (k *Keeper) Restore() map[int]uint32 {
	if k.restored != nil {
		return k.restored
	}
	k.restored = map[int]uint32{}
	if k.store == nil {
		return k.restored
	}

	values, err := k.store.Load()
	if err != nil {
		k.log.Error().Err(err).Msg("Failed to restore sequence counters, persistence disabled")
		k.closeStore()
		return k.restored
	}

	k.restored = values
	k.log.Info().Int("destinations", len(values)).Msg("Restored sequence counters")
	return k.restored
}

// Save records a destination's next sequence value. Failures are counted
// and never interrupt archiving.
func (k *Keeper) Save(dest int, value uint32) {
	if k.store == nil {
		return
	}
	if err := k.store.Save(dest, value); err != nil {
		k.saveErrors++
		k.metrics.RecordRecoverySaveError()
		k.log.Debug().Err(err).Int("dest", dest).Uint32("sequence", value).Msg("Failed to save sequence counter")
	}
}

// SaveErrors returns the number of failed saves
func (k *Keeper) SaveErrors() uint64 {
	return k.saveErrors
}

// Close releases the backing store
func (k *Keeper) Close() error {
	if k.store == nil {
		return nil
	}
	err := k.store.Close()
	k.store = nil
	return err
}

func (k *Keeper) closeStore() {
	if err := k.store.Close(); err != nil {
		k.log.Warn().Err(err).Msg("Failed to close recovery store")
	}
	k.store = nil
}
