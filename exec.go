package memcore

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/memql"
	"github.com/4thel00z/memcore/record"
)

// ExecResult reports what a mutating MemQL statement changed.
type ExecResult struct {
	Created []record.Record
	Updated []record.Record
	Deleted []string
}

// Exec runs a mutating MemQL statement: CREATE MEM, UPDATE SET or DELETE.
// SELECT statements belong on Query and are rejected here. Each affected
// record commits individually; a failure partway leaves earlier commits in
// place and reports the error.
func (e *Engine) Exec(ctx context.Context, query string) (ExecResult, error) {
	stmt, err := memql.Parse(query)
	if err != nil {
		return ExecResult{}, err
	}

	switch st := stmt.(type) {
	case *memql.Create:
		return e.execCreate(ctx, st)
	case *memql.Update:
		return e.execUpdate(ctx, st)
	case *memql.Delete:
		return e.execDelete(ctx, st)
	default:
		return ExecResult{}, goerr.Wrap(record.ErrSyntax,
			"read-only statement, use Query", goerr.Value("statement", stmt.String()))
	}
}

func (e *Engine) execCreate(ctx context.Context, st *memql.Create) (ExecResult, error) {
	draft, err := st.Draft()
	if err != nil {
		return ExecResult{}, err
	}
	rec, err := e.Create(ctx, draft)
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{Created: []record.Record{rec}}, nil
}

func (e *Engine) execUpdate(ctx context.Context, st *memql.Update) (ExecResult, error) {
	patch, err := st.Patch()
	if err != nil {
		return ExecResult{}, err
	}
	targets, err := e.selectTargets(ctx, st.Where)
	if err != nil {
		return ExecResult{}, err
	}

	var res ExecResult
	for _, target := range targets {
		updated, err := e.Update(ctx, target.ID, patch)
		if err != nil {
			return res, err
		}
		res.Updated = append(res.Updated, updated)
	}
	return res, nil
}

func (e *Engine) execDelete(ctx context.Context, st *memql.Delete) (ExecResult, error) {
	var where memql.Expr
	if !st.All {
		where = st.Where
	}
	targets, err := e.selectTargets(ctx, where)
	if err != nil {
		return ExecResult{}, err
	}

	var res ExecResult
	for _, target := range targets {
		if err := e.Delete(ctx, target.ID); err != nil {
			return res, err
		}
		res.Deleted = append(res.Deleted, target.ID)
	}
	return res, nil
}

// selectTargets resolves the live records a WHERE clause addresses. A nil
// clause addresses every live record.
func (e *Engine) selectTargets(ctx context.Context, where memql.Expr) ([]record.Record, error) {
	recs, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if where == nil {
		return recs, nil
	}

	out := recs[:0]
	for _, rec := range recs {
		if memql.Eval(where, rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
