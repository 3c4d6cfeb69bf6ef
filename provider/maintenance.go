// ABOUTME: Background maintenance queue and the long-running passes it executes
// ABOUTME: Algorithm upgrades, locale changes and index rebuilds never run inline with a caller
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/datarow"
	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
)

type task struct {
	name string
	run  func(ctx context.Context) error
}

type maintenance struct {
	p *Provider

	mu      sync.Mutex
	queue   []task
	running bool
	idle    chan struct{}

	wake chan struct{}
	done chan struct{}
}

func newMaintenance(p *Provider) *maintenance {
	idle := make(chan struct{})
	close(idle)
	return &maintenance{
		p:    p,
		idle: idle,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (m *maintenance) schedule(name string, run func(ctx context.Context) error) {
	m.mu.Lock()
	m.queue = append(m.queue, task{name: name, run: run})
	select {
	case <-m.idle:
		m.idle = make(chan struct{})
	default:
	}
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *maintenance) busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running || len(m.queue) > 0
}

func (m *maintenance) waitIdle(ctx context.Context) error {
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next pops a task, or marks the queue idle and returns false.
func (m *maintenance) next() (task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	if len(m.queue) == 0 {
		select {
		case <-m.idle:
		default:
			close(m.idle)
		}
		return task{}, false
	}
	t := m.queue[0]
	m.queue = m.queue[1:]
	m.running = true
	return t, true
}

func (m *maintenance) run(ctx context.Context) {
	defer close(m.done)
	select {
	case <-m.p.writeReady:
	case <-ctx.Done():
		return
	}

	log := logctx.FromContext(ctx)
	for {
		t, ok := m.next()
		if !ok {
			select {
			case <-m.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		start := time.Now()
		if err := t.run(ctx); err != nil {
			log.Error().Err(err).Str("task", t.name).Msg("maintenance task failed")
			continue
		}
		log.Info().Str("task", t.name).Dur("took", time.Since(start)).Msg("maintenance task complete")
	}
}

func (m *maintenance) stop() {
	<-m.done
}

// reaggregate re-decides every raw contact of d in chunks, each in its own
// transaction. Progress lives in aggregation_needed so an interrupted run
// resumes where it stopped.
func (p *Provider) reaggregate(ctx context.Context, d *database) (aggregation.Stats, error) {
	var total aggregation.Stats
	err := p.inWriteDB(ctx, d, CallOptions{SyncAdapter: true}, func(w *writeTx) error {
		_, err := d.agg.MarkAllForAggregation(ctx, w.tx)
		return err
	})
	if err != nil {
		return total, err
	}

	for {
		var n int
		err := p.inWriteDB(ctx, d, CallOptions{SyncAdapter: true}, func(w *writeTx) error {
			var err error
			n, err = d.agg.LoadNeeded(ctx, w.tx, reaggregateChunk)
			return err
		})
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total.Processed += n
	}
	return total, nil
}

// upgradeAggregation re-aggregates after an algorithm change. The new version
// is recorded even when the pass fails so a broken pass is not retried on
// every start.
func (p *Provider) upgradeAggregation(ctx context.Context, d *database) error {
	log := logctx.FromContext(ctx)
	stats, err := p.reaggregate(ctx, d)
	if err != nil {
		log.Error().Err(err).Str("db", d.session.Kind().String()).Msg("aggregation upgrade failed; marking done anyway")
	} else {
		log.Info().Int("processed", stats.Processed).Str("db", d.session.Kind().String()).Msg("aggregation upgrade complete")
	}
	return d.session.InTx(ctx, func(tx *db.Tx) error {
		return db.SetIntProperty(ctx, tx, db.PropAggregationAlgorithm, aggregation.AlgorithmVersion)
	})
}

func (p *Provider) rebuildSearch(ctx context.Context, d *database) error {
	return d.session.InTx(ctx, func(tx *db.Tx) error {
		_, err := p.index.Rebuild(ctx, tx)
		return err
	})
}

// ChangeLocale switches collation to locale and schedules the rebuild of
// sort keys, lookups and aggregation that follows.
func (p *Provider) ChangeLocale(ctx context.Context, locale string) error {
	if locale == "" {
		return models.ValidationError("locale is required")
	}
	if err := p.waitWrite(ctx); err != nil {
		return err
	}
	p.maint.schedule("change locale", func(ctx context.Context) error {
		return p.changeLocale(ctx, locale)
	})
	return nil
}

func (p *Provider) changeLocale(ctx context.Context, locale string) error {
	p.collator.SetLocale(locale)
	for _, d := range p.databases() {
		err := p.inWriteDB(ctx, d, CallOptions{SyncAdapter: true}, func(w *writeTx) error {
			if _, err := datarow.RebuildSortKeys(ctx, w.tx, p.collator); err != nil {
				return err
			}
			if _, err := d.rows.RebuildLookups(ctx, w.tx); err != nil {
				return err
			}
			return db.SetProperty(ctx, w.tx, db.PropLocale, p.collator.Locale())
		})
		if err != nil {
			return err
		}
		if _, err := p.reaggregate(ctx, d); err != nil {
			return err
		}
		if err := p.rebuildSearch(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// ReaggregateAll schedules a full re-aggregation of the selected database.
func (p *Provider) ReaggregateAll(ctx context.Context, opts CallOptions) error {
	if err := p.waitWrite(ctx); err != nil {
		return err
	}
	d := p.database(opts.Profile)
	p.maint.schedule("full re-aggregation", func(ctx context.Context) error {
		_, err := p.reaggregate(ctx, d)
		return err
	})
	return nil
}
