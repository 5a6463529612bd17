package archive

import (
	"github.com/flowmesh/archiver/internal/message"
	"github.com/flowmesh/archiver/internal/table"
)

// Any change to the filter table rebuilds the index before the lock is
// released, so no lookup ever sees a stale slot.

// LoadFilterTable replaces the filter table with a copy of t. A nil table
// unloads it and every packet is then ignored.
func (e *Engine) LoadFilterTable(t *table.FilterTable) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t == nil {
		e.filters = nil
		e.index.Clear()
		e.log.Info().Msg("Filter table unloaded")
		return
	}
	e.filters = t.Clone()
	e.index.Rebuild(e.filters)
	e.log.Info().Str("table", t.Description).Int("messages", e.index.Len()).Msg("Filter table loaded")
}

// FilterTable returns a copy of the filter table in effect, or nil
func (e *Engine) FilterTable() *table.FilterTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filters == nil {
		return nil
	}
	return e.filters.Clone()
}

// LoadDestinationTable applies a copy of t, finalising any open files. A nil
// table unloads the destinations. A table outside the limits is rejected and
// the current one stays in effect.
func (e *Engine) LoadDestinationTable(t *table.DestinationTable) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t == nil {
		e.dests.Configure(nil)
		return nil
	}
	if err := t.Validate(e.limits); err != nil {
		return err
	}
	e.dests.Configure(t.Clone())
	return nil
}

// SetFilter replaces one filter of the row holding id
func (e *Engine) SetFilter(id message.MessageID, n int, f table.Filter) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot, err := e.lookup(id)
	if err != nil {
		return err
	}
	row := &e.filters.Entries[slot]
	if n < 0 || n >= len(row.Filters) {
		return IndexRangeError{Field: "filter", Index: n, Max: len(row.Filters)}
	}
	if int(f.DestIndex) >= e.limits.Destinations {
		return IndexRangeError{Field: "destination", Index: int(f.DestIndex), Max: e.limits.Destinations}
	}

	row.Filters[n] = f
	e.index.Rebuild(e.filters)
	e.log.Info().Uint32("msg_id", uint32(id)).Int("filter", n).Uint16("dest", f.DestIndex).
		Str("kind", f.Kind.String()).Uint16("n", f.N).Uint16("x", f.X).Uint16("o", f.O).
		Msg("Filter set")
	return nil
}

// SetFilterEntry replaces a whole filter table row
func (e *Engine) SetFilterEntry(slot int, entry table.FilterEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.filters == nil {
		return ErrNoFilterTable
	}
	if slot < 0 || slot >= len(e.filters.Entries) {
		return IndexRangeError{Field: "slot", Index: slot, Max: len(e.filters.Entries)}
	}
	if len(entry.Filters) > e.limits.FiltersPerEntry {
		return IndexRangeError{Field: "filter", Index: len(entry.Filters) - 1, Max: e.limits.FiltersPerEntry}
	}
	if !entry.Empty() {
		if other := e.filters.Find(entry.MessageID); other >= 0 && other != slot {
			return MessageExistsError{ID: entry.MessageID, Slot: other}
		}
	}

	row := &e.filters.Entries[slot]
	row.Reset()
	row.MessageID = entry.MessageID
	copy(row.Filters, entry.Filters)

	e.index.Rebuild(e.filters)
	return nil
}

// AddMessage claims the first unused row for id with inert filters and
// returns its slot
func (e *Engine) AddMessage(id message.MessageID) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.filters == nil {
		return 0, ErrNoFilterTable
	}
	if id == message.InvalidID {
		return 0, ErrInvalidMessageID
	}
	if slot, ok := e.index.Lookup(id); ok {
		return 0, MessageExistsError{ID: id, Slot: slot}
	}

	slot := e.filters.Find(message.InvalidID)
	if slot < 0 {
		return 0, ErrFilterTableFull
	}
	row := &e.filters.Entries[slot]
	row.Reset()
	row.MessageID = id

	e.index.Rebuild(e.filters)
	e.log.Info().Uint32("msg_id", uint32(id)).Int("slot", slot).Msg("Message added to filter table")
	return slot, nil
}

// RemoveMessage clears the row holding id
func (e *Engine) RemoveMessage(id message.MessageID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot, err := e.lookup(id)
	if err != nil {
		return err
	}
	e.filters.Entries[slot].Reset()

	e.index.Rebuild(e.filters)
	e.log.Info().Uint32("msg_id", uint32(id)).Int("slot", slot).Msg("Message removed from filter table")
	return nil
}

func (e *Engine) lookup(id message.MessageID) (int, error) {
	if e.filters == nil {
		return 0, ErrNoFilterTable
	}
	if id == message.InvalidID {
		return 0, ErrInvalidMessageID
	}
	slot, ok := e.index.Lookup(id)
	if !ok {
		return 0, MessageNotFoundError{ID: id}
	}
	return slot, nil
}

// SetDestinationState enables or disables one destination
func (e *Engine) SetDestinationState(dest int, state table.EnableState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dests.Loaded() {
		return ErrNoDestinationTable
	}
	return e.dests.SetState(dest, state)
}

// SetSequence sets the next filename sequence of one destination
func (e *Engine) SetSequence(dest int, value uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dests.Loaded() {
		return ErrNoDestinationTable
	}
	return e.dests.SetSequence(dest, value)
}

// CloseFile finalises and closes the open file of one destination
func (e *Engine) CloseFile(dest int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dests.Loaded() {
		return ErrNoDestinationTable
	}
	return e.dests.Close(dest)
}

// CloseAll finalises and closes every open file
func (e *Engine) CloseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dests.CloseAll()
}
