// ABOUTME: Batched writes in one transaction with back references between ops
// ABOUTME: Ops marked YieldAllowed may commit and reopen once the yield threshold is reached
package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
)

type OpKind int

const (
	OpInsertRawContact OpKind = iota
	OpUpdateRawContact
	OpDeleteRawContact
	OpInsertData
	OpUpdateData
	OpDeleteData
	OpSetException
)

func (k OpKind) String() string {
	switch k {
	case OpInsertRawContact:
		return "insert_raw_contact"
	case OpUpdateRawContact:
		return "update_raw_contact"
	case OpDeleteRawContact:
		return "delete_raw_contact"
	case OpInsertData:
		return "insert_data"
	case OpUpdateData:
		return "update_data"
	case OpDeleteData:
		return "delete_data"
	case OpSetException:
		return "set_exception"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// ExceptionOp carries the arguments of an OpSetException. Ref1 and Ref2,
// when set, replace the ids with the results of earlier ops.
type ExceptionOp struct {
	Type          models.ExceptionType
	RawContactID1 int64
	RawContactID2 int64
	Ref1          *int
	Ref2          *int
}

// BatchOp is one operation of a batch. ID names the row for updates and
// deletes. BackRef replaces ID for update and delete ops, and the raw
// contact id of an OpInsertData, with the result of an earlier op.
type BatchOp struct {
	Kind         OpKind
	ID           int64
	BackRef      *int
	RawContact   NewRawContact
	Patch        RawContactPatch
	Data         models.DataRow
	DataPatch    DataPatch
	Exception    ExceptionOp
	YieldAllowed bool
}

// Ref returns a back reference to the op at index i.
func Ref(i int) *int { return &i }

// BatchResult is the outcome of one op: the new id for inserts, the
// affected count otherwise.
type BatchResult struct {
	ID    int64 `json:"id,omitempty"`
	Count int   `json:"count"`
}

type batchRun struct {
	w       *writeTx
	results []BatchResult
}

func (b *batchRun) resolve(i int, ref *int, id int64) (int64, error) {
	if ref == nil {
		return id, nil
	}
	if *ref < 0 || *ref >= i {
		return 0, models.ValidationErrorf("op %d: back reference %d does not name an earlier op", i, *ref)
	}
	res := b.results[*ref]
	if res.ID == 0 {
		return 0, models.ValidationErrorf("op %d: op %d produced no id", i, *ref)
	}
	return res.ID, nil
}

func (b *batchRun) apply(ctx context.Context, i int, op BatchOp) (BatchResult, error) {
	w := b.w
	switch op.Kind {
	case OpInsertRawContact:
		id, err := w.insertRawContact(ctx, op.RawContact)
		return BatchResult{ID: id, Count: 1}, err
	case OpUpdateRawContact:
		id, err := b.resolve(i, op.BackRef, op.ID)
		if err != nil {
			return BatchResult{}, err
		}
		n, err := w.updateRawContact(ctx, id, op.Patch)
		return BatchResult{Count: n}, err
	case OpDeleteRawContact:
		id, err := b.resolve(i, op.BackRef, op.ID)
		if err != nil {
			return BatchResult{}, err
		}
		n, err := w.deleteRawContact(ctx, id)
		return BatchResult{Count: n}, err
	case OpInsertData:
		row := op.Data
		rawID, err := b.resolve(i, op.BackRef, row.RawContactID)
		if err != nil {
			return BatchResult{}, err
		}
		row.RawContactID = rawID
		id, err := w.insertData(ctx, row)
		return BatchResult{ID: id, Count: 1}, err
	case OpUpdateData:
		id, err := b.resolve(i, op.BackRef, op.ID)
		if err != nil {
			return BatchResult{}, err
		}
		n, err := w.updateData(ctx, id, op.DataPatch)
		return BatchResult{Count: n}, err
	case OpDeleteData:
		id, err := b.resolve(i, op.BackRef, op.ID)
		if err != nil {
			return BatchResult{}, err
		}
		n, err := w.deleteData(ctx, id)
		return BatchResult{Count: n}, err
	case OpSetException:
		e := op.Exception
		id1, err := b.resolve(i, e.Ref1, e.RawContactID1)
		if err != nil {
			return BatchResult{}, err
		}
		id2, err := b.resolve(i, e.Ref2, e.RawContactID2)
		if err != nil {
			return BatchResult{}, err
		}
		if err := w.setException(ctx, e.Type, id1, id2); err != nil {
			return BatchResult{}, err
		}
		return BatchResult{Count: 1}, nil
	}
	return BatchResult{}, models.ValidationErrorf("op %d: unknown op kind %d", i, op.Kind)
}

// ApplyBatch runs ops in order in one write transaction. When an op is
// YieldAllowed and BatchYieldThreshold ops ran since the last commit, the
// work so far is committed first; a later failure only rolls back what
// followed the last yield.
func (p *Provider) ApplyBatch(ctx context.Context, opts CallOptions, ops []BatchOp) ([]BatchResult, error) {
	ctx = logctx.WithStr(ctx, "batch_id", uuid.NewString())
	log := logctx.FromContext(ctx)

	b := &batchRun{results: make([]BatchResult, len(ops))}
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		b.w = w
		sinceYield := 0
		for i, op := range ops {
			if op.YieldAllowed && sinceYield >= p.opts.BatchYieldThreshold {
				if err := w.yield(ctx); err != nil {
					return err
				}
				sinceYield = 0
			}
			res, err := b.apply(ctx, i, op)
			if err != nil {
				return fmt.Errorf("batch op %d (%s): %w", i, op.Kind, err)
			}
			b.results[i] = res
			sinceYield++
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Int("ops", len(ops)).Msg("batch failed")
		return nil, err
	}
	log.Debug().Int("ops", len(ops)).Msg("batch applied")
	return b.results, nil
}
