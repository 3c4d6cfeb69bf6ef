// ABOUTME: Orchestrates contacts storage, data row handlers and the aggregation engine
// ABOUTME: Owns the contacts and profile databases, readiness gates and the maintenance queue
package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/datarow"
	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/directory"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
	"github.com/harperreed/roster/photos"
	"github.com/harperreed/roster/search"
	"github.com/harperreed/roster/txn"
)

// Status is what external callers can observe about the provider.
type Status int32

const (
	StatusStarting Status = iota
	StatusNormal
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusNormal:
		return "normal"
	case StatusBusy:
		return "busy"
	}
	return "unknown"
}

const (
	DefaultBatchYieldThreshold = 50
	DefaultMaxSuggestions      = 5
	reaggregateChunk           = 500
)

type Options struct {
	ContactsPath string
	ProfilePath  string
	// PhotoDir holds the photo store; empty keeps photos in memory.
	PhotoDir             string
	Locale               string
	PhotoPriority        []string
	ReadOnlyAccountTypes []string
	Scanner              directory.PackageScanner
	BatchYieldThreshold  int
	MaxSuggestions       int
}

// CallOptions select the database and the caller's privileges.
type CallOptions struct {
	// Profile routes the call to the profile database.
	Profile bool
	// SyncAdapter marks the caller as the account's sync adapter: its writes do
	// not set dirty flags, it may write read-only accounts and its deletes are
	// permanent.
	SyncAdapter bool
}

// database is the per-file state. agg and tc are only touched while holding
// the session's writer lock.
type database struct {
	session  *db.Session
	agg      *aggregation.Aggregator
	tc       *txn.Context
	rows     *datarow.Registry
	accounts *directory.AccountRegistry
	groups   *directory.GroupCache
}

// beginWrite opens a write transaction whose in-memory state is cleared
// before the writer lock passes to the next writer.
func (d *database) beginWrite(ctx context.Context) (*db.Tx, error) {
	tx, err := d.session.BeginWrite(ctx)
	if err != nil {
		return nil, err
	}
	d.tc.OnBegin()
	tx.OnRelease(d.release)
	return tx, nil
}

func (d *database) release(committed bool) {
	if committed {
		d.tc.ClearAll()
		return
	}
	d.reset()
}

// reset drops in-memory state after a rollback so nothing from the aborted
// transaction leaks into the next one.
func (d *database) reset() {
	d.agg.ClearPendingAggregations()
	d.agg.InvalidateAggregationExceptionCache()
	d.tc.ClearAll()
	d.accounts.Invalidate()
	d.groups.Invalidate()
}

type Provider struct {
	opts     Options
	collator *namenorm.Collator
	photos   *photos.Store
	index    *search.Index
	dirs     *directory.Registry
	resolver aggregation.PhotoResolver

	pair     *db.Pair
	contacts *database
	profile  *database

	readReady  chan struct{}
	writeReady chan struct{}
	initDone   chan struct{}
	readErr    error
	writeErr   error

	maint  *maintenance
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once
}

// Open starts the provider. Databases open in the background; calls block
// until the relevant gate opens.
func Open(ctx context.Context, opts Options) (*Provider, error) {
	if opts.ContactsPath == "" || opts.ProfilePath == "" {
		return nil, models.ValidationError("contacts and profile database paths are required")
	}
	if opts.BatchYieldThreshold <= 0 {
		opts.BatchYieldThreshold = DefaultBatchYieldThreshold
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = DefaultMaxSuggestions
	}
	if opts.Locale == "" {
		opts.Locale = namenorm.DefaultLocale
	}

	var (
		store *photos.Store
		err   error
	)
	if opts.PhotoDir != "" {
		store, err = photos.Open(opts.PhotoDir)
	} else {
		store, err = photos.OpenInMemory()
	}
	if err != nil {
		return nil, err
	}

	p := construct(opts, store)
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	go p.initialize(bg)
	go p.maint.run(bg)
	return p, nil
}

// construct builds a provider whose gates are all shut.
func construct(opts Options, store *photos.Store) *Provider {
	p := &Provider{
		opts:       opts,
		collator:   namenorm.NewCollator(opts.Locale),
		photos:     store,
		index:      search.New(),
		dirs:       directory.NewRegistry(opts.Scanner),
		resolver:   photos.AccountTypePriority(opts.PhotoPriority),
		readReady:  make(chan struct{}),
		writeReady: make(chan struct{}),
		initDone:   make(chan struct{}),
	}
	p.maint = newMaintenance(p)
	return p
}

func (p *Provider) newDatabase(s *db.Session) *database {
	agg := aggregation.New(aggregation.Options{PhotoResolver: p.resolver})
	groups := directory.NewGroupCache()
	return &database{
		session: s,
		agg:     agg,
		tc:      txn.New(s.IsProfile()),
		rows: datarow.NewRegistry(datarow.Env{
			Aggregation: agg,
			Collator:    p.collator,
			Photos:      p.photos,
			Groups:      groups,
		}),
		accounts: directory.NewAccountRegistry(p.opts.ReadOnlyAccountTypes),
		groups:   groups,
	}
}

func (p *Provider) initialize(ctx context.Context) {
	defer close(p.initDone)
	log := logctx.FromContext(ctx)

	pair, err := db.OpenPair(ctx, p.opts.ContactsPath, p.opts.ProfilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open databases")
		p.readErr, p.writeErr = err, err
		close(p.readReady)
		close(p.writeReady)
		return
	}
	p.pair = pair
	p.contacts = p.newDatabase(pair.Contacts)
	p.profile = p.newDatabase(pair.Profile)
	close(p.readReady)

	if err := p.prepare(ctx); err != nil {
		log.Error().Err(err).Msg("failed to prepare databases")
		p.writeErr = err
	}
	close(p.writeReady)
	log.Info().Str("contacts", p.opts.ContactsPath).Str("profile", p.opts.ProfilePath).Msg("provider ready")
}

// prepare runs the startup checks that must finish before writes are
// accepted and queues the slow ones.
func (p *Provider) prepare(ctx context.Context) error {
	q := p.contacts.session.DB()

	stored, err := db.GetProperty(ctx, q, db.PropLocale, "")
	if err != nil {
		return err
	}
	switch {
	case stored == "":
		for _, d := range p.databases() {
			if err := db.SetProperty(ctx, d.session.DB(), db.PropLocale, p.opts.Locale); err != nil {
				return err
			}
		}
	case stored != p.opts.Locale:
		p.collator.SetLocale(stored)
		p.maint.schedule("change locale", func(ctx context.Context) error {
			return p.changeLocale(ctx, p.opts.Locale)
		})
	}

	done, err := directory.ScanComplete(ctx, q)
	if err != nil {
		return err
	}
	if !done {
		err := p.contacts.session.InTx(ctx, func(tx *db.Tx) error {
			_, err := p.dirs.Rescan(ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
	}

	p.maint.schedule("photo cleanup", func(ctx context.Context) error {
		_, err := p.CleanupPhotos(ctx)
		return err
	})

	for _, d := range p.databases() {
		version, err := db.GetIntProperty(ctx, d.session.DB(), db.PropAggregationAlgorithm, 0)
		if err != nil {
			return err
		}
		if version < aggregation.AlgorithmVersion {
			p.maint.schedule("aggregation upgrade", func(ctx context.Context) error {
				return p.upgradeAggregation(ctx, d)
			})
		}
		stale, err := search.NeedsRebuild(ctx, d.session.DB())
		if err != nil {
			return err
		}
		if stale {
			p.maint.schedule("search index rebuild", func(ctx context.Context) error {
				return p.rebuildSearch(ctx, d)
			})
		}
	}
	return nil
}

func (p *Provider) databases() []*database {
	return []*database{p.contacts, p.profile}
}

func (p *Provider) database(profile bool) *database {
	if profile {
		return p.profile
	}
	return p.contacts
}

// Status reports STARTING until writes are accepted, then BUSY while
// maintenance runs and NORMAL otherwise.
func (p *Provider) Status() Status {
	select {
	case <-p.writeReady:
	default:
		return StatusStarting
	}
	if p.maint.busy() {
		return StatusBusy
	}
	return StatusNormal
}

// WaitIdle blocks until the maintenance queue is empty.
func (p *Provider) WaitIdle(ctx context.Context) error {
	return p.maint.waitIdle(ctx)
}

func (p *Provider) waitRead(ctx context.Context) error {
	if p.closed.Load() {
		return models.ErrClosed
	}
	select {
	case <-p.readReady:
		return p.readErr
	case <-ctx.Done():
		return errors.Join(models.ErrNotReady, ctx.Err())
	}
}

func (p *Provider) waitWrite(ctx context.Context) error {
	if p.closed.Load() {
		return models.ErrClosed
	}
	select {
	case <-p.writeReady:
		return p.writeErr
	case <-ctx.Done():
		return errors.Join(models.ErrNotReady, ctx.Err())
	}
}

// Close stops maintenance and closes the databases and photo store.
func (p *Provider) Close() error {
	var err error
	p.once.Do(func() {
		p.closed.Store(true)
		p.cancel()
		<-p.initDone
		p.maint.stop()
		var errs []error
		if p.pair != nil {
			errs = append(errs, p.pair.Close())
		}
		errs = append(errs, p.photos.Close())
		err = errors.Join(errs...)
	})
	return err
}
