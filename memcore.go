// Package memcore is a persistent memory engine: records with content,
// tags, metadata and embeddings, queried through MemQL and cosine
// similarity search, with full per-record change history.
package memcore

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/annotate"
	"github.com/4thel00z/memcore/embedding"
	"github.com/4thel00z/memcore/index"
	"github.com/4thel00z/memcore/logging"
	"github.com/4thel00z/memcore/memql"
	"github.com/4thel00z/memcore/record"
	"github.com/4thel00z/memcore/snapshot"
	"github.com/4thel00z/memcore/store"
	"github.com/4thel00z/memcore/watch"
)

// Engine ties the store, the vector index, the embedding gateway and the
// MemQL executor together behind one API.
type Engine struct {
	store     *store.Store
	gateway   embedding.Gateway
	annotator *annotate.Service
	snaps     *snapshot.Repository
	log       *slog.Logger
	path      string
}

// Open creates or loads an engine rooted at an OS directory.
func Open(path string, opts ...Option) (*Engine, error) {
	return open(osfs.New(path), path, opts...)
}

// OpenFS is Open over an arbitrary filesystem, typically memfs in tests.
// Snapshots and watching require an OS path and are unavailable here.
func OpenFS(fs billy.Filesystem, opts ...Option) (*Engine, error) {
	return open(fs, "", opts...)
}

func open(fs billy.Filesystem, path string, opts ...Option) (*Engine, error) {
	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Default()
	}

	storeOpts := append([]store.Option{store.WithLogger(cfg.logger)}, cfg.storeOpts...)
	st, err := store.Open(fs, storeOpts...)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:     st,
		gateway:   cfg.gateway,
		annotator: cfg.annotator,
		log:       cfg.logger,
		path:      path,
	}

	if cfg.snapshots {
		if path == "" {
			return nil, goerr.New("snapshots require an OS path")
		}
		e.snaps, err = snapshot.Init(path)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) Store() *store.Store { return e.store }

// Create stores a new record. When a gateway is configured and the draft
// carries no embedding, the content is embedded first.
func (e *Engine) Create(ctx context.Context, d record.Draft) (record.Record, error) {
	if e.gateway != nil && len(d.Embedding) == 0 {
		vec, err := e.gateway.Embed(ctx, d.Content)
		if err != nil {
			return record.Record{}, err
		}
		d.Embedding = vec
	}
	return e.store.Create(ctx, d)
}

func (e *Engine) Get(ctx context.Context, id string) (record.Record, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context) ([]record.Record, error) {
	return e.store.List(ctx)
}

// Update applies a partial update. A content change without an explicit
// embedding triggers re-embedding so the index stays consistent with the
// stored text.
func (e *Engine) Update(ctx context.Context, id string, p record.Patch) (record.Record, error) {
	if e.gateway != nil && p.Content != nil && p.Embedding == nil {
		vec, err := e.gateway.Embed(ctx, *p.Content)
		if err != nil {
			return record.Record{}, err
		}
		p.Embedding = vec
	}
	return e.store.Update(ctx, id, p)
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

// Purge hard-deletes a record regardless of the store's soft-delete
// setting, including a record that was soft-deleted earlier.
func (e *Engine) Purge(ctx context.Context, id string) error {
	return e.store.Purge(ctx, id)
}

func (e *Engine) Restore(ctx context.Context, id string) (record.Record, error) {
	return e.store.Restore(ctx, id)
}

func (e *Engine) History(ctx context.Context, id string) ([]record.HistoryEntry, error) {
	return e.store.History(ctx, id)
}

// Diff renders a content patch between two versions of a record.
func (e *Engine) Diff(ctx context.Context, id string, fromVersion, toVersion int) (string, error) {
	return e.store.Diff(ctx, id, fromVersion, toVersion)
}

// Query runs a read-only MemQL statement. Mutating statements are
// rejected; use Exec for those.
func (e *Engine) Query(ctx context.Context, query string) ([]memql.Match, error) {
	sel, err := memql.ParseSelect(query)
	if err != nil {
		return nil, err
	}
	return e.executor().Execute(ctx, sel)
}

// Search is similarity search without the query language: the text is
// embedded and the k nearest live records are returned, best first.
func (e *Engine) Search(ctx context.Context, text string, k int) ([]memql.Match, error) {
	if e.gateway == nil {
		return nil, goerr.Wrap(record.ErrProvider, "no embedding gateway configured")
	}
	vec, err := e.gateway.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := e.store.Index().Search(ctx, vec, k, nil)
	if err != nil {
		return nil, err
	}

	matches := make([]memql.Match, 0, len(hits))
	for _, hit := range hits {
		rec, err := e.store.Get(ctx, hit.ID)
		if errors.Is(err, record.ErrNotFound) {
			// Stale index entry.
			continue
		}
		if err != nil {
			return nil, err
		}
		matches = append(matches, memql.Match{Record: rec, Score: hit.Score, Scored: true})
	}
	return matches, nil
}

// Reindex rebuilds the vector index from the stored records and persists
// a fresh dump.
func (e *Engine) Reindex(ctx context.Context) error {
	if err := e.store.RebuildIndex(ctx); err != nil {
		return err
	}
	return e.store.SaveIndex(ctx)
}

// Close persists the index dump so the next Open warm-starts instead of
// rebuilding. The store itself needs no teardown; every mutation is
// already durable.
func (e *Engine) Close(ctx context.Context) error {
	return e.store.SaveIndex(ctx)
}

// Index exposes the derived vector index.
func (e *Engine) Index() *index.Index {
	return e.store.Index()
}

func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	return e.store.Export(ctx, w)
}

func (e *Engine) Import(ctx context.Context, r io.Reader) (int, error) {
	return e.store.Import(ctx, r)
}

// Summarize condenses the current live records into a structured summary.
// Requires WithAnnotator.
func (e *Engine) Summarize(ctx context.Context) (*annotate.Summary, error) {
	if e.annotator == nil {
		return nil, goerr.Wrap(annotate.ErrNoProvider, "summarize")
	}
	recs, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return e.annotator.Summarize(ctx, recs)
}

// SuggestTags proposes tags for one record. Requires WithAnnotator.
func (e *Engine) SuggestTags(ctx context.Context, id string) (*annotate.TagSuggestion, error) {
	if e.annotator == nil {
		return nil, goerr.Wrap(annotate.ErrNoProvider, "suggest tags")
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.annotator.SuggestTags(ctx, rec)
}

// Snapshot commits the current store state. Requires WithSnapshots.
func (e *Engine) Snapshot(ctx context.Context, message string) (*snapshot.Snapshot, error) {
	if e.snaps == nil {
		return nil, goerr.Wrap(snapshot.ErrNoRepository, "snapshot")
	}
	return e.snaps.Commit(ctx, message)
}

// Snapshots lists store snapshots, newest first.
func (e *Engine) Snapshots(ctx context.Context, limit int) ([]*snapshot.Snapshot, error) {
	if e.snaps == nil {
		return nil, goerr.Wrap(snapshot.ErrNoRepository, "snapshots")
	}
	return e.snaps.Log(ctx, limit)
}

// RestoreSnapshot rolls the store directory back to a snapshot and
// reloads the in-memory state.
func (e *Engine) RestoreSnapshot(ctx context.Context, ref string) error {
	if e.snaps == nil {
		return goerr.Wrap(snapshot.ErrNoRepository, "restore snapshot")
	}
	if err := e.snaps.Restore(ctx, ref); err != nil {
		return err
	}
	return e.store.Reload(ctx)
}

// Watch blocks, reloading the store whenever another process changes its
// files. Requires an OS path.
func (e *Engine) Watch(ctx context.Context, opts ...watch.Option) error {
	if e.path == "" {
		return goerr.New("watching requires an OS path")
	}
	opts = append([]watch.Option{watch.WithLogger(e.log)}, opts...)
	return watch.New(e.path, e.store, opts...).Run(ctx)
}

func (e *Engine) executor() *memql.Executor {
	return memql.NewExecutor(e.store, e.store.Index(), e.gateway)
}
