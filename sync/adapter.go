// ABOUTME: Google contacts sync adapter writing raw contacts through the provider
// ABOUTME: Runs full and incremental syncs keyed by People API resource names and etags
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/people/v1"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// Store is the part of the provider the adapter writes through.
type Store interface {
	GetSyncState(ctx context.Context, opts provider.CallOptions, acct models.Account) ([]byte, error)
	SetSyncState(ctx context.Context, opts provider.CallOptions, acct models.Account, state []byte) error
	RawContactsByAccount(ctx context.Context, opts provider.CallOptions, acct models.Account) ([]provider.RawContactView, error)
	ApplyBatch(ctx context.Context, opts provider.CallOptions, ops []provider.BatchOp) ([]provider.BatchResult, error)
	RecordSyncRun(ctx context.Context, opts provider.CallOptions, acct models.Account, run db.SyncRun) error
}

// State is the sync adapter's blob in sync_state.
type State struct {
	SyncToken string            `json:"sync_token,omitempty"`
	Etags     map[string]string `json:"etags,omitempty"`
}

// Result counts what one Sync call did.
type Result struct {
	Fetched   int  `json:"fetched"`
	Inserted  int  `json:"inserted"`
	Updated   int  `json:"updated"`
	Deleted   int  `json:"deleted"`
	Unchanged int  `json:"unchanged"`
	Full      bool `json:"full"`
}

type Adapter struct {
	store   Store
	source  PeopleSource
	account models.Account
	opts    provider.CallOptions
}

// NewAdapter syncs the Google account accountName into store.
func NewAdapter(store Store, source PeopleSource, accountName string) *Adapter {
	return &Adapter{
		store:   store,
		source:  source,
		account: models.Account{Name: accountName, Type: AccountType},
		opts:    provider.CallOptions{SyncAdapter: true},
	}
}

func (a *Adapter) Account() models.Account { return a.account }

func (a *Adapter) loadState(ctx context.Context) (State, error) {
	blob, err := a.store.GetSyncState(ctx, a.opts, a.account)
	if err != nil {
		return State{}, err
	}
	var st State
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &st); err != nil {
			logger := logctx.FromContext(ctx)
			logger.Warn().Err(err).Msg("discarding unreadable sync state")
			st = State{}
		}
	}
	if st.Etags == nil {
		st.Etags = make(map[string]string)
	}
	return st, nil
}

// Sync runs an incremental sync when a token is stored, a full one otherwise.
// An expired token falls back to a full sync. Every run is recorded in the
// account's sync history.
func (a *Adapter) Sync(ctx context.Context) (Result, error) {
	ctx = logctx.WithStr(ctx, "account", a.account.String())
	started := time.Now()
	res, err := a.sync(ctx)
	a.record(ctx, started, res, err)
	return res, err
}

func (a *Adapter) sync(ctx context.Context) (Result, error) {
	log := logctx.FromContext(ctx)

	st, err := a.loadState(ctx)
	if err != nil {
		return Result{}, err
	}
	res, err := a.run(ctx, st)
	if errors.Is(err, ErrSyncTokenExpired) {
		log.Info().Msg("sync token expired, running full sync")
		st.SyncToken = ""
		res, err = a.run(ctx, st)
	}
	if err != nil {
		log.Error().Err(err).Msg("google sync failed")
		return Result{}, err
	}
	log.Info().
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("deleted", res.Deleted).
		Bool("full", res.Full).
		Msg("google sync finished")
	return res, nil
}

func (a *Adapter) record(ctx context.Context, started time.Time, res Result, syncErr error) {
	run := db.SyncRun{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     db.SyncStatusOK,
		Full:       res.Full,
		Fetched:    res.Fetched,
		Inserted:   res.Inserted,
		Updated:    res.Updated,
		Deleted:    res.Deleted,
	}
	if syncErr != nil {
		run.Status = db.SyncStatusError
		run.Error = syncErr.Error()
	}
	if err := a.store.RecordSyncRun(context.WithoutCancel(ctx), a.opts, a.account, run); err != nil {
		logger := logctx.FromContext(ctx)
		logger.Warn().Err(err).Msg("failed to record sync run")
	}
}

func (a *Adapter) run(ctx context.Context, st State) (Result, error) {
	res := Result{Full: st.SyncToken == ""}

	existing, err := a.store.RawContactsByAccount(ctx, a.opts, a.account)
	if err != nil {
		return Result{}, err
	}
	bySource := make(map[string]provider.RawContactView, len(existing))
	for _, r := range existing {
		if r.SourceID != "" {
			bySource[r.SourceID] = r
		}
	}

	etags := st.Etags
	if res.Full {
		etags = make(map[string]string)
	}
	seenSources := make(map[string]bool)

	pageToken, nextSync := "", ""
	for {
		page, err := a.source.ListConnections(ctx, pageToken, st.SyncToken)
		if err != nil {
			return Result{}, err
		}
		res.Fetched += len(page.People)

		var ops []provider.BatchOp
		for _, person := range page.People {
			seenSources[person.ResourceName] = true
			ops = append(ops, a.opsFor(person, bySource, st.Etags, etags, &res)...)
		}
		if len(ops) > 0 {
			if _, err := a.store.ApplyBatch(ctx, a.opts, ops); err != nil {
				return Result{}, err
			}
		}

		if page.NextSyncToken != "" {
			nextSync = page.NextSyncToken
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	// A full listing is authoritative: anything not returned is gone.
	if res.Full {
		var ops []provider.BatchOp
		for source, r := range bySource {
			if !seenSources[source] {
				ops = append(ops, provider.BatchOp{Kind: provider.OpDeleteRawContact, ID: r.ID, YieldAllowed: true})
				res.Deleted++
			}
		}
		if len(ops) > 0 {
			if _, err := a.store.ApplyBatch(ctx, a.opts, ops); err != nil {
				return Result{}, err
			}
		}
	}

	blob, err := json.Marshal(State{SyncToken: nextSync, Etags: etags})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode sync state: %w", err)
	}
	if err := a.store.SetSyncState(ctx, a.opts, a.account, blob); err != nil {
		return Result{}, err
	}
	return res, nil
}

// opsFor returns the batch ops that bring the local copy of person up to
// date. prev holds the etags of the last sync, next collects this one's.
func (a *Adapter) opsFor(person *people.Person, bySource map[string]provider.RawContactView, prev, next map[string]string, res *Result) []provider.BatchOp {
	source := person.ResourceName
	local, exists := bySource[source]

	if isDeleted(person) {
		delete(next, source)
		if !exists {
			return nil
		}
		res.Deleted++
		return []provider.BatchOp{{Kind: provider.OpDeleteRawContact, ID: local.ID, YieldAllowed: true}}
	}

	unchanged := exists && person.Etag != "" && prev[source] == person.Etag
	next[source] = person.Etag
	if unchanged {
		res.Unchanged++
		return nil
	}

	rows := convertPerson(person)
	if !exists {
		res.Inserted++
		return []provider.BatchOp{{
			Kind:         provider.OpInsertRawContact,
			RawContact:   provider.NewRawContact{Account: a.account, SourceID: source, Data: rows},
			YieldAllowed: true,
		}}
	}

	res.Updated++
	ops := make([]provider.BatchOp, 0, len(local.Data)+len(rows))
	for i, row := range local.Data {
		ops = append(ops, provider.BatchOp{Kind: provider.OpDeleteData, ID: row.ID, YieldAllowed: i == 0})
	}
	for _, row := range rows {
		row.RawContactID = local.ID
		ops = append(ops, provider.BatchOp{Kind: provider.OpInsertData, Data: row, YieldAllowed: len(local.Data) == 0 && len(ops) == 0})
	}
	return ops
}
