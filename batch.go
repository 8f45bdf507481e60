package memcore

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/record"
)

type BatchKind string

const (
	BatchCreate BatchKind = "create"
	BatchUpdate BatchKind = "update"
	BatchDelete BatchKind = "delete"
)

// BatchOp is one operation in a batch. Draft applies to creates; ID to
// updates and deletes; Patch to updates.
type BatchOp struct {
	Kind  BatchKind
	Draft record.Draft
	ID    string
	Patch record.Patch
}

// BatchResult pairs an operation with its outcome. Record is set for
// successful creates and updates.
type BatchResult struct {
	Op     BatchOp
	Record record.Record
	Err    error
}

// Batch runs operations in order. Each operation is atomic on its own;
// there is no batch-wide transaction, so a failure is recorded and the
// remaining operations still run. Only context cancellation aborts the
// batch early.
func (e *Engine) Batch(ctx context.Context, ops []BatchOp) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(ops))
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := BatchResult{Op: op}
		switch op.Kind {
		case BatchCreate:
			res.Record, res.Err = e.Create(ctx, op.Draft)
		case BatchUpdate:
			res.Record, res.Err = e.Update(ctx, op.ID, op.Patch)
		case BatchDelete:
			res.Err = e.Delete(ctx, op.ID)
		default:
			res.Err = goerr.Wrap(record.ErrValidation, "unknown batch operation",
				goerr.Value("kind", string(op.Kind)))
		}
		results = append(results, res)
	}
	return results, nil
}

// AddTags attaches tags to each of the given records. Per-record outcomes
// are reported like any other batch.
func (e *Engine) AddTags(ctx context.Context, ids []string, tags ...string) ([]BatchResult, error) {
	return e.retag(ctx, ids, func(current []string) []string {
		out := append([]string(nil), current...)
		for _, tag := range tags {
			found := false
			for _, have := range out {
				if have == tag {
					found = true
					break
				}
			}
			if !found {
				out = append(out, tag)
			}
		}
		return out
	})
}

// RemoveTags strips tags from each of the given records.
func (e *Engine) RemoveTags(ctx context.Context, ids []string, tags ...string) ([]BatchResult, error) {
	drop := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		drop[tag] = struct{}{}
	}
	return e.retag(ctx, ids, func(current []string) []string {
		out := make([]string, 0, len(current))
		for _, have := range current {
			if _, ok := drop[have]; !ok {
				out = append(out, have)
			}
		}
		return out
	})
}

// SetImportance bulk-updates importance across records. Values clamp to
// [0, 1] like any other importance write.
func (e *Engine) SetImportance(ctx context.Context, ids []string, importance float64) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		imp := importance
		op := BatchOp{Kind: BatchUpdate, ID: id, Patch: record.Patch{Importance: &imp}}
		res := BatchResult{Op: op}
		res.Record, res.Err = e.Update(ctx, id, op.Patch)
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) retag(ctx context.Context, ids []string, rewrite func([]string) []string) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		op := BatchOp{Kind: BatchUpdate, ID: id}
		res := BatchResult{Op: op}
		rec, err := e.Get(ctx, id)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}

		tags := rewrite(rec.Tags)
		if tags == nil {
			tags = []string{}
		}
		op.Patch = record.Patch{Tags: tags}
		res.Op = op
		res.Record, res.Err = e.Update(ctx, id, op.Patch)
		results = append(results, res)
	}
	return results, nil
}
