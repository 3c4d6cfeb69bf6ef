// ABOUTME: The aggregation engine: decides which raw contacts form one contact
// ABOUTME: Pending raw contacts are processed at commit time inside the write transaction
package aggregation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/txn"
)

// AlgorithmVersion is stored per database; opening a database stamped with an
// older version triggers a full re-aggregation.
const AlgorithmVersion = 3

// DefaultMaxVisits bounds how often one raw contact is re-decided in a single
// pass when evictions keep requeueing it.
const DefaultMaxVisits = 3

// PhotoResolver picks the winning photo data row among candidates and returns
// its data id, or 0 for none.
type PhotoResolver interface {
	Resolve(candidates []models.PhotoCandidate) int64
}

type Options struct {
	PhotoResolver PhotoResolver
	MaxVisits     int
	Now           func() time.Time
}

type pendingEntry struct {
	mode   models.AggregationMode
	forced bool
}

// Aggregator holds the pending set for one database. The pending set is only
// touched by the goroutine holding that database's writer lock.
type Aggregator struct {
	photos     PhotoResolver
	maxVisits  int
	now        func() time.Time
	exceptions exceptionCache

	pending map[int64]pendingEntry
	touched map[int64]struct{}
}

func New(opts Options) *Aggregator {
	a := &Aggregator{
		photos:    opts.PhotoResolver,
		maxVisits: opts.MaxVisits,
		now:       opts.Now,
	}
	if a.photos == nil {
		a.photos = firstPhoto{}
	}
	if a.maxVisits <= 0 {
		a.maxVisits = DefaultMaxVisits
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	a.ClearPendingAggregations()
	return a
}

// Stats summarizes one aggregation pass.
type Stats struct {
	Processed int
	Joined    int
	Created   int
	Evicted   int
	Deleted   int
	Refreshed int
}

func (s Stats) Empty() bool {
	return s == Stats{}
}

// MarkNewForAggregation queues a raw contact inserted in this transaction.
// Its aggregation_needed flag is already set by the insert.
func (a *Aggregator) MarkNewForAggregation(rawContactID int64, mode models.AggregationMode) {
	a.pending[rawContactID] = pendingEntry{mode: mode}
}

// MarkForAggregation flags an existing raw contact for re-evaluation at
// commit. force makes the pass decide it even when its mode is SUSPENDED.
func (a *Aggregator) MarkForAggregation(ctx context.Context, q db.Querier, rawContactID int64, mode models.AggregationMode, force bool) error {
	if _, err := q.ExecContext(ctx, `UPDATE raw_contacts SET aggregation_needed = 1 WHERE _id = ?`, rawContactID); err != nil {
		return fmt.Errorf("failed to mark raw contact %d for aggregation: %w", rawContactID, err)
	}
	prev := a.pending[rawContactID]
	a.pending[rawContactID] = pendingEntry{mode: mode, forced: force || prev.forced}
	return nil
}

// ContactChanged asks the next pass to refresh (or delete, if now empty) a
// contact whose membership changed outside the engine, such as a raw contact
// delete.
func (a *Aggregator) ContactChanged(contactID int64) {
	if contactID != 0 {
		a.touched[contactID] = struct{}{}
	}
}

// PendingCount is the number of raw contacts waiting for the next pass.
func (a *Aggregator) PendingCount() int {
	return len(a.pending)
}

func (a *Aggregator) ClearPendingAggregations() {
	a.pending = make(map[int64]pendingEntry)
	a.touched = make(map[int64]struct{})
}

func (a *Aggregator) InvalidateAggregationExceptionCache() {
	a.exceptions.invalidate()
}

// AggregateInTransaction runs one pass over everything pending. It must be
// called inside the write transaction, before commit. With nothing pending it
// does nothing.
func (a *Aggregator) AggregateInTransaction(ctx context.Context, tc *txn.Context, q db.Querier) (Stats, error) {
	for _, rawID := range tc.DrainStaleAggregates() {
		contactID, err := contactIDOf(ctx, q, rawID)
		if err != nil {
			return Stats{}, err
		}
		a.ContactChanged(contactID)
	}
	if len(a.pending) == 0 && len(a.touched) == 0 {
		return Stats{}, nil
	}

	p := &pass{
		a:       a,
		tc:      tc,
		q:       q,
		log:     logctx.FromContext(ctx),
		queued:  make(map[int64]bool),
		visits:  make(map[int64]int),
		entries: a.pending,
		touched: a.touched,
	}
	a.pending = make(map[int64]pendingEntry)
	a.touched = make(map[int64]struct{})

	ids := make([]int64, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p.enqueue(id)
	}

	if err := p.run(ctx); err != nil {
		return p.stats, err
	}

	p.log.Debug().
		Int("processed", p.stats.Processed).
		Int("joined", p.stats.Joined).
		Int("created", p.stats.Created).
		Int("evicted", p.stats.Evicted).
		Int("deleted", p.stats.Deleted).
		Msg("aggregation pass complete")
	return p.stats, nil
}

// pass is the state of one aggregation run.
type pass struct {
	a       *Aggregator
	tc      *txn.Context
	q       db.Querier
	log     zerolog.Logger
	queue   []int64
	queued  map[int64]bool
	visits  map[int64]int
	entries map[int64]pendingEntry
	touched map[int64]struct{}
	stats   Stats
}

func (p *pass) enqueue(id int64) {
	if p.queued[id] {
		return
	}
	p.queued[id] = true
	p.queue = append(p.queue, id)
}

func (p *pass) touch(contactID int64) {
	if contactID != 0 {
		p.touched[contactID] = struct{}{}
	}
}

func (p *pass) run(ctx context.Context) error {
	for len(p.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := p.queue[0]
		p.queue = p.queue[1:]
		delete(p.queued, id)
		p.visits[id]++

		if err := p.aggregateOne(ctx, id); err != nil {
			return err
		}
	}

	visited := make([]int64, 0, len(p.visits))
	for id := range p.visits {
		visited = append(visited, id)
	}
	sort.Slice(visited, func(i, j int) bool { return visited[i] < visited[j] })
	p.stats.Processed = len(visited)
	if err := clearAggregationNeeded(ctx, p.q, visited); err != nil {
		return err
	}

	return p.refreshTouched(ctx)
}

func (p *pass) aggregateOne(ctx context.Context, id int64) error {
	rc, err := loadRawState(ctx, p.q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load raw contact %d: %w", id, err)
	}

	if rc.Deleted {
		if rc.ContactID != 0 {
			p.touch(rc.ContactID)
			return setContactID(ctx, p.q, rc.ID, 0)
		}
		return nil
	}

	// A raw contact requeued too often stops moving; it only needs a home.
	if p.visits[id] > p.a.maxVisits {
		p.log.Warn().Int64("raw_contact_id", id).Msg("aggregation did not settle; leaving raw contact where it is")
		if rc.ContactID == 0 {
			return p.newContact(ctx, rc)
		}
		return nil
	}

	if err := p.place(ctx, rc); err != nil {
		return err
	}
	// The raw contact's data changed even if it stayed put.
	p.touch(rc.ContactID)
	return nil
}

func (p *pass) place(ctx context.Context, rc *rawState) error {
	switch rc.Mode {
	case models.AggregationModeDisabled:
		return p.ensureSingleton(ctx, rc)
	case models.AggregationModeSuspended:
		if !p.entries[rc.ID].forced {
			if rc.ContactID == 0 {
				return p.newContact(ctx, rc)
			}
			return nil
		}
	}
	return p.decide(ctx, rc, rc.Mode == models.AggregationModeStrict)
}

func (p *pass) decide(ctx context.Context, rc *rawState, strict bool) error {
	edges, err := p.a.exceptions.forRawContact(ctx, p.q, rc.ID)
	if err != nil {
		return err
	}
	together := make([]int64, 0, len(edges))
	separate := make(map[int64]bool)
	for _, e := range edges {
		switch e.Type {
		case models.ExceptionKeepTogether:
			together = append(together, e.Other)
		case models.ExceptionKeepSeparate:
			separate[e.Other] = true
		}
	}

	if rc.ContactID != 0 {
		if err := p.evict(ctx, rc.ContactID, separate); err != nil {
			return err
		}
	}

	if len(together) > 0 {
		target, stragglers, err := p.togetherTarget(ctx, rc, together)
		if err != nil {
			return err
		}
		if target != 0 {
			if target != rc.ContactID {
				if err := p.join(ctx, rc, target); err != nil {
					return err
				}
			}
			if err := p.evict(ctx, target, separate); err != nil {
				return err
			}
			for _, id := range stragglers {
				p.enqueue(id)
			}
			return nil
		}
	}

	scores, err := scoreContacts(ctx, p.q, rc, strict, separate)
	if err != nil {
		// Matching trouble never fails the write; the raw contact stays alone.
		p.log.Warn().Err(err).Int64("raw_contact_id", rc.ID).Msg("matching failed")
		scores = nil
	}

	best := pickBest(scores)
	if best != 0 {
		if best != rc.ContactID {
			return p.join(ctx, rc, best)
		}
		return nil
	}
	return p.ensureSingleton(ctx, rc)
}

// togetherTarget picks the lowest contact among live KEEP_TOGETHER partners
// and returns partners living elsewhere so they follow.
func (p *pass) togetherTarget(ctx context.Context, rc *rawState, together []int64) (int64, []int64, error) {
	type placed struct{ raw, contact int64 }
	var partners []placed
	for _, other := range together {
		st, err := loadRawState(ctx, p.q, other)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		if st.Deleted || st.Mode == models.AggregationModeDisabled {
			continue
		}
		partners = append(partners, placed{raw: other, contact: st.ContactID})
	}

	if len(partners) == 0 {
		return 0, nil, nil
	}
	// rc's own contact competes with the partners' contacts; lowest id wins.
	target := rc.ContactID
	for _, pl := range partners {
		if pl.contact != 0 && (target == 0 || pl.contact < target) {
			target = pl.contact
		}
	}
	if target == 0 {
		return 0, nil, nil
	}

	var stragglers []int64
	for _, pl := range partners {
		if pl.contact != target {
			stragglers = append(stragglers, pl.raw)
		}
	}
	return target, stragglers, nil
}

// evict detaches members of contactID that are KEEP_SEPARATE from the raw
// contact being decided and queues them for their own decision.
func (p *pass) evict(ctx context.Context, contactID int64, separate map[int64]bool) error {
	if len(separate) == 0 {
		return nil
	}
	members, err := membersOf(ctx, p.q, contactID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if !separate[m.ID] {
			continue
		}
		if err := setContactID(ctx, p.q, m.ID, 0); err != nil {
			return err
		}
		p.touch(contactID)
		p.stats.Evicted++
		p.enqueue(m.ID)
		p.log.Debug().Int64("raw_contact_id", m.ID).Int64("contact_id", contactID).Msg("evicted by keep-separate exception")
	}
	return nil
}

func (p *pass) join(ctx context.Context, rc *rawState, contactID int64) error {
	if err := setContactID(ctx, p.q, rc.ID, contactID); err != nil {
		return err
	}
	p.touch(rc.ContactID)
	p.touch(contactID)
	p.stats.Joined++
	p.log.Debug().Int64("raw_contact_id", rc.ID).Int64("from", rc.ContactID).Int64("to", contactID).Msg("joined contact")
	rc.ContactID = contactID
	return nil
}

// ensureSingleton leaves rc alone when it is already the only member of its
// contact and otherwise gives it a new contact.
func (p *pass) ensureSingleton(ctx context.Context, rc *rawState) error {
	if rc.ContactID != 0 {
		members, err := membersOf(ctx, p.q, rc.ContactID)
		if err != nil {
			return err
		}
		if len(members) == 1 && members[0].ID == rc.ID {
			return nil
		}
	}
	return p.newContact(ctx, rc)
}

func (p *pass) newContact(ctx context.Context, rc *rawState) error {
	contactID, err := insertContact(ctx, p.q, rc.ID, p.a.now())
	if err != nil {
		return err
	}
	p.stats.Created++
	return p.join(ctx, rc, contactID)
}

// refreshTouched recomputes aggregate data for every contact whose membership
// or inputs changed, deleting the ones left empty.
func (p *pass) refreshTouched(ctx context.Context) error {
	ids := make([]int64, 0, len(p.touched))
	for id := range p.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, contactID := range ids {
		members, err := membersOf(ctx, p.q, contactID)
		if err != nil {
			return err
		}
		p.tc.InvalidateSearchIndexForContact(contactID)
		if len(members) == 0 {
			if err := deleteContact(ctx, p.q, contactID, p.a.now()); err != nil {
				return err
			}
			p.stats.Deleted++
			continue
		}
		if err := p.a.updateAggregateData(ctx, p.q, contactID); err != nil {
			return err
		}
		p.stats.Refreshed++
	}
	return nil
}
