// ABOUTME: Per-database transaction context accumulating work to flush at commit
// ABOUTME: Tracks inserted, updated and dirty raw contacts, stale search targets and sync states
package txn

import (
	"sort"
)

// Context collects what the current write transaction touched. It belongs to
// exactly one database and is only used by the goroutine holding that
// database's writer lock, so it needs no locking of its own.
type Context struct {
	forProfile bool

	insertedRawContacts map[int64]int64 // raw contact id -> account id
	updatedRawContacts  map[int64]struct{}
	dirtyRawContacts    map[int64]struct{}
	staleAggregates     map[int64]struct{} // raw contact ids whose contact needs aggregate data refreshed
	syncStates          map[int64][]byte   // account id -> sync state blob

	staleSearchContacts    map[int64]struct{}
	staleSearchRawContacts map[int64]struct{}
}

func New(forProfile bool) *Context {
	c := &Context{forProfile: forProfile}
	c.ClearAll()
	return c
}

func (c *Context) ForProfile() bool { return c.forProfile }

// OnBegin resets the context at the start of a write transaction.
func (c *Context) OnBegin() {
	c.ClearAll()
}

func (c *Context) RawContactInserted(rawContactID, accountID int64) {
	c.insertedRawContacts[rawContactID] = accountID
}

// RawContactUpdated records a change needing a version bump at commit. Raw
// contacts inserted in this transaction are skipped since they start fresh.
func (c *Context) RawContactUpdated(rawContactID int64) {
	if _, ok := c.insertedRawContacts[rawContactID]; ok {
		return
	}
	c.updatedRawContacts[rawContactID] = struct{}{}
}

func (c *Context) MarkRawContactDirty(rawContactID int64) {
	c.dirtyRawContacts[rawContactID] = struct{}{}
}

// MarkAggregateStale asks for the owning contact's aggregate data to be
// recomputed without re-running matching.
func (c *Context) MarkAggregateStale(rawContactID int64) {
	c.staleAggregates[rawContactID] = struct{}{}
}

func (c *Context) SyncStateUpdated(accountID int64, state []byte) {
	c.syncStates[accountID] = state
}

func (c *Context) InvalidateSearchIndexForContact(contactID int64) {
	c.staleSearchContacts[contactID] = struct{}{}
}

func (c *Context) InvalidateSearchIndexForRawContact(rawContactID int64) {
	c.staleSearchRawContacts[rawContactID] = struct{}{}
}

// AccountIDForInsertedRawContact returns the account of a raw contact inserted
// in this transaction.
func (c *Context) AccountIDForInsertedRawContact(rawContactID int64) (int64, bool) {
	id, ok := c.insertedRawContacts[rawContactID]
	return id, ok
}

func (c *Context) IsNewRawContact(rawContactID int64) bool {
	_, ok := c.insertedRawContacts[rawContactID]
	return ok
}

func (c *Context) InsertedRawContactIDs() []int64 { return sortedKeys(c.insertedRawContacts) }

func (c *Context) UpdatedRawContactIDs() []int64 { return sortedKeys(c.updatedRawContacts) }

func (c *Context) DirtyRawContactIDs() []int64 { return sortedKeys(c.dirtyRawContacts) }

func (c *Context) StaleSearchContactIDs() []int64 { return sortedKeys(c.staleSearchContacts) }

func (c *Context) StaleSearchRawContactIDs() []int64 { return sortedKeys(c.staleSearchRawContacts) }

// DrainStaleAggregates returns and forgets the raw contacts whose aggregate
// data is stale.
func (c *Context) DrainStaleAggregates() []int64 {
	ids := sortedKeys(c.staleAggregates)
	c.staleAggregates = make(map[int64]struct{})
	return ids
}

// SyncStates returns pending sync-state writes keyed by account id.
func (c *Context) SyncStates() map[int64][]byte {
	out := make(map[int64][]byte, len(c.syncStates))
	for k, v := range c.syncStates {
		out[k] = v
	}
	return out
}

// HasSearchIndexUpdates reports whether any search targets are pending.
func (c *Context) HasSearchIndexUpdates() bool {
	return len(c.staleSearchContacts) > 0 || len(c.staleSearchRawContacts) > 0
}

func (c *Context) clearPending() {
	c.insertedRawContacts = make(map[int64]int64)
	c.updatedRawContacts = make(map[int64]struct{})
	c.dirtyRawContacts = make(map[int64]struct{})
	c.staleAggregates = make(map[int64]struct{})
	c.syncStates = make(map[int64][]byte)
}

func (c *Context) ClearSearchIndexUpdates() {
	c.staleSearchContacts = make(map[int64]struct{})
	c.staleSearchRawContacts = make(map[int64]struct{})
}

func (c *Context) ClearAll() {
	c.clearPending()
	c.ClearSearchIndexUpdates()
}

func sortedKeys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
