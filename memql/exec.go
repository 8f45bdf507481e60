package memql

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/embedding"
	"github.com/4thel00z/memcore/index"
	"github.com/4thel00z/memcore/record"
)

// Catalog is the slice of the record store the executor reads from. It only
// ever sees live (non-deleted) records with content already decrypted.
type Catalog interface {
	List(ctx context.Context) ([]record.Record, error)
	Get(ctx context.Context, id string) (record.Record, error)
}

// Searcher answers similarity queries; *index.Index satisfies it.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int, filter map[string]struct{}) ([]index.Result, error)
}

// Match is a query result. Scored is set when the statement had a
// SIMILAR TO clause.
type Match struct {
	Record record.Record
	Score  float64
	Scored bool
}

// Executor runs read-only SELECT statements. Execution never mutates state,
// so a cancelled context leaves nothing behind.
type Executor struct {
	catalog  Catalog
	searcher Searcher
	embedder embedding.Gateway
}

func NewExecutor(catalog Catalog, searcher Searcher, embedder embedding.Gateway) *Executor {
	return &Executor{catalog: catalog, searcher: searcher, embedder: embedder}
}

func (e *Executor) Execute(ctx context.Context, sel *Select) ([]Match, error) {
	var matches []Match

	if sel.Similar != nil {
		if e.embedder == nil || e.searcher == nil {
			return nil, goerr.Wrap(record.ErrProvider, "no embedding gateway configured for SIMILAR TO")
		}
		vec, err := e.embedder.Embed(ctx, sel.Similar.Text)
		if err != nil {
			return nil, err
		}
		hits, err := e.searcher.Search(ctx, vec, 0, nil)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			rec, err := e.catalog.Get(ctx, hit.ID)
			if errors.Is(err, record.ErrNotFound) {
				// Stale index entry or soft-deleted record.
				continue
			}
			if err != nil {
				return nil, err
			}
			if sel.Where != nil && !Eval(sel.Where, rec) {
				continue
			}
			matches = append(matches, Match{Record: rec, Score: hit.Score, Scored: true})
		}
	} else {
		recs, err := e.catalog.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if sel.Where == nil || Eval(sel.Where, rec) {
				matches = append(matches, Match{Record: rec})
			}
		}
	}

	// With SIMILAR TO and no explicit ORDER BY the search order (score desc,
	// ties ascending id) already applies.
	if sel.Order != nil {
		sortMatches(matches, sel.Order)
	} else if sel.Similar == nil {
		sort.Slice(matches, func(a, b int) bool {
			am, bm := matches[a].Record, matches[b].Record
			if !am.CreatedAt.Equal(bm.CreatedAt) {
				return am.CreatedAt.Before(bm.CreatedAt)
			}
			return am.ID < bm.ID
		})
	}

	if sel.Limit >= 0 && len(matches) > sel.Limit {
		matches = matches[:sel.Limit]
	}
	return matches, nil
}

func sortMatches(matches []Match, order *Order) {
	field := strings.ToLower(order.Field)
	if strings.HasPrefix(field, "metadata.") {
		// Metadata keys are case-sensitive.
		field = "metadata." + order.Field[len("metadata."):]
	}
	sort.Slice(matches, func(a, b int) bool {
		less, eq := matchLess(matches[a], matches[b], field)
		if eq {
			return matches[a].Record.ID < matches[b].Record.ID
		}
		if order.Desc {
			return !less
		}
		return less
	})
}

func matchLess(a, b Match, field string) (less, eq bool) {
	ar, br := a.Record, b.Record
	switch field {
	case "score":
		return a.Score < b.Score, a.Score == b.Score
	case "importance":
		return ar.Importance < br.Importance, ar.Importance == br.Importance
	case "version":
		return ar.Version < br.Version, ar.Version == br.Version
	case "created_at":
		return ar.CreatedAt.Before(br.CreatedAt), ar.CreatedAt.Equal(br.CreatedAt)
	case "updated_at":
		return ar.UpdatedAt.Before(br.UpdatedAt), ar.UpdatedAt.Equal(br.UpdatedAt)
	case "content":
		return ar.Content < br.Content, ar.Content == br.Content
	case "source":
		return ar.Source < br.Source, ar.Source == br.Source
	case "id":
		return ar.ID < br.ID, ar.ID == br.ID
	default:
		if key, ok := strings.CutPrefix(field, "metadata."); ok {
			return metaLess(ar, br, key)
		}
		return false, true
	}
}

func metaLess(a, b record.Record, key string) (less, eq bool) {
	av, aok := numericMeta(a, key)
	bv, bok := numericMeta(b, key)
	if aok && bok {
		return av < bv, av == bv
	}
	as, aok := stringMeta(a, key)
	bs, bok := stringMeta(b, key)
	if aok && bok {
		return as < bs, as == bs
	}
	// Records missing the key sort last regardless of direction.
	return false, true
}

func numericMeta(r record.Record, key string) (float64, bool) {
	switch v := r.Metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringMeta(r record.Record, key string) (string, bool) {
	s, ok := r.Metadata[key].(string)
	return s, ok
}

// Draft converts a CREATE MEM statement into a validated record draft.
func (c *Create) Draft() (record.Draft, error) {
	var d record.Draft
	for _, a := range c.Fields {
		switch {
		case a.Name == "content":
			if a.Value.Kind != ValString {
				return record.Draft{}, assignTypeErr(a, "string")
			}
			d.Content = a.Value.Str
		case a.Name == "tags":
			if a.Value.Kind != ValString {
				return record.Draft{}, assignTypeErr(a, "string")
			}
			d.Tags = SplitTags(a.Value.Str)
		case a.Name == "importance":
			if a.Value.Kind != ValNumber {
				return record.Draft{}, assignTypeErr(a, "number")
			}
			d.Importance = a.Value.Num
		case a.Name == "source":
			if a.Value.Kind != ValString {
				return record.Draft{}, assignTypeErr(a, "string")
			}
			d.Source = a.Value.Str
		case strings.HasPrefix(a.Name, "metadata."):
			if d.Metadata == nil {
				d.Metadata = make(map[string]any)
			}
			d.Metadata[a.Name[len("metadata."):]] = a.Value.native()
		}
	}
	return d, nil
}

// Patch converts an UPDATE SET clause into a partial record update.
func (u *Update) Patch() (record.Patch, error) {
	var p record.Patch
	for _, a := range u.Set {
		switch {
		case a.Name == "content":
			if a.Value.Kind != ValString {
				return record.Patch{}, assignTypeErr(a, "string")
			}
			s := a.Value.Str
			p.Content = &s
		case a.Name == "tags":
			if a.Value.Kind != ValString {
				return record.Patch{}, assignTypeErr(a, "string")
			}
			p.Tags = SplitTags(a.Value.Str)
		case a.Name == "importance":
			if a.Value.Kind != ValNumber {
				return record.Patch{}, assignTypeErr(a, "number")
			}
			n := a.Value.Num
			p.Importance = &n
		case a.Name == "source":
			if a.Value.Kind != ValString {
				return record.Patch{}, assignTypeErr(a, "string")
			}
			s := a.Value.Str
			p.Source = &s
		case strings.HasPrefix(a.Name, "metadata."):
			if p.Metadata == nil {
				p.Metadata = make(map[string]any)
			}
			p.Metadata[a.Name[len("metadata."):]] = a.Value.native()
		}
	}
	return p, nil
}

func (v Value) native() any {
	switch v.Kind {
	case ValNumber:
		return v.Num
	case ValBool:
		return v.Bool
	default:
		return v.Str
	}
}

// SplitTags splits a comma- or whitespace-separated tag list.
func SplitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func assignTypeErr(a Assign, want string) error {
	return goerr.Wrap(record.ErrValidation, "wrong value type for field",
		goerr.Value("field", a.Name), goerr.Value("want", want))
}
