package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/index"
	"github.com/4thel00z/memcore/record"
)

const (
	recordsDir = "records"
	historyDir = "history"
	indexFile  = "index.json"
)

// Store keeps every record as its own JSON file under records/ with an
// append-only change log under history/. The full record set is mirrored in
// memory; reads never touch the filesystem. The vector index is derived
// state and can always be rebuilt from the files.
type Store struct {
	fs  billy.Filesystem
	cfg Config
	box *cipherBox
	idx *index.Index
	log *slog.Logger

	mu    sync.RWMutex
	table map[string]record.Record
}

type Option func(*options)

type options struct {
	passphrase string
	dimension  int
	softDelete *bool
	logger     *slog.Logger
}

// WithPassphrase enables content encryption. Opening an encrypted store
// without the passphrase it was created with fails.
func WithPassphrase(passphrase string) Option {
	return func(o *options) { o.passphrase = passphrase }
}

// WithDimension fixes the embedding dimension up front instead of learning
// it from the first indexed record.
func WithDimension(d int) Option {
	return func(o *options) { o.dimension = d }
}

// WithSoftDelete controls whether Delete tombstones records (the default)
// or removes them outright.
func WithSoftDelete(enabled bool) Option {
	return func(o *options) { o.softDelete = &enabled }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// Open loads (or initializes) a store rooted at fs. Use osfs for a durable
// store and memfs for an ephemeral one.
func Open(fs billy.Filesystem, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, existed, err := loadConfig(fs)
	if err != nil {
		return nil, err
	}
	if !existed {
		if o.dimension > 0 {
			cfg.Dimension = o.dimension
		}
		if o.softDelete != nil {
			cfg.SoftDelete = *o.softDelete
		}
		cfg.Encrypted = o.passphrase != ""
	}

	var box *cipherBox
	if cfg.Encrypted {
		if o.passphrase == "" {
			return nil, goerr.Wrap(ErrCipher, "store is encrypted, passphrase required")
		}
		box, err = newCipherBox(o.passphrase)
		if err != nil {
			return nil, err
		}
	}

	for _, dir := range []string{recordsDir, historyDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "create store layout", goerr.Value("dir", dir))
		}
	}
	if !existed {
		if err := saveConfig(fs, cfg); err != nil {
			return nil, err
		}
	}

	log := o.logger
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		fs:    fs,
		cfg:   cfg,
		box:   box,
		idx:   index.New(cfg.Dimension),
		log:   log,
		table: make(map[string]record.Record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads every record file into the table and derives the index. A
// persisted index dump is only a warm-start cache; the record files stay
// authoritative and overwrite whatever the dump claims.
func (s *Store) load() error {
	entries, err := s.fs.ReadDir(recordsDir)
	if err != nil {
		return goerr.Wrap(err, "scan records")
	}

	idx := index.New(s.cfg.Dimension)
	if data, err := util.ReadFile(s.fs, indexFile); err == nil {
		if err := idx.Load(data); err != nil {
			s.log.Warn("stale index dump ignored", "error", err)
			idx = index.New(s.cfg.Dimension)
		} else if s.cfg.Dimension != 0 && idx.Dimension() != s.cfg.Dimension {
			s.log.Warn("index dump dimension mismatch, rebuilding",
				"want", s.cfg.Dimension, "got", idx.Dimension())
			idx = index.New(s.cfg.Dimension)
		}
	}

	table := make(map[string]record.Record, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.readRecordFile(s.fs.Join(recordsDir, entry.Name()))
		if err != nil {
			return err
		}
		table[rec.ID] = rec
		if !rec.Deleted && len(rec.Embedding) > 0 {
			if err := idx.Upsert(rec.ID, rec.Embedding); err != nil {
				return err
			}
		} else {
			idx.Remove(rec.ID)
		}
	}

	// Dump entries with no backing record file are leftovers of a hard
	// delete after the last SaveIndex.
	for _, id := range idx.IDs() {
		if _, ok := table[id]; !ok {
			idx.Remove(id)
		}
	}

	s.mu.Lock()
	s.table = table
	s.idx = idx
	s.mu.Unlock()
	return nil
}

// SaveIndex persists the current index as a warm-start dump next to the
// records. Losing or skipping the dump costs a rebuild, nothing else.
func (s *Store) SaveIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	data, err := s.idx.Dump()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := indexFile + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return goerr.Wrap(err, "write index dump")
	}
	if err := s.fs.Rename(tmp, indexFile); err != nil {
		return goerr.Wrap(err, "rename index dump")
	}
	return nil
}

// Reload re-reads the store from the filesystem. The watcher calls this
// when record files change underneath a running process.
func (s *Store) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.load()
}

func (s *Store) Config() Config { return s.cfg }

// Index exposes the derived vector index for similarity search.
func (s *Store) Index() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// Create persists a new record. The id, version and timestamps are
// assigned here; the draft's embedding, if any, must match the store
// dimension.
func (s *Store) Create(ctx context.Context, d record.Draft) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	rec, err := record.New(d)
	if err != nil {
		return record.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDimension(rec.Embedding); err != nil {
		return record.Record{}, err
	}

	now := time.Now().UTC()
	rec.ID = record.NewID()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Version = 1

	entry := record.HistoryEntry{
		RecordID: rec.ID,
		Version:  rec.Version,
		Op:       record.OpCreate,
		At:       now,
		State:    rec,
	}
	if err := s.commit(rec, entry); err != nil {
		return record.Record{}, err
	}

	s.table[rec.ID] = rec
	s.indexUpsert(rec)
	return rec.Clone(), nil
}

// Get returns a live record. Soft-deleted records are invisible here; use
// Restore to bring one back.
func (s *Store) Get(ctx context.Context, id string) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.table[id]
	if !ok || rec.Deleted {
		return record.Record{}, goerr.Wrap(record.ErrNotFound, "get", goerr.Value("id", id))
	}
	return rec.Clone(), nil
}

// List returns all live records ordered by id.
func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Record, 0, len(s.table))
	for _, rec := range s.table {
		if rec.Deleted {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update applies a partial update, bumps the version and logs the
// pre-update state to history. A zero patch is a no-op and does not bump
// the version.
func (s *Store) Update(ctx context.Context, id string, p record.Patch) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDimension(p.Embedding); err != nil {
		return record.Record{}, err
	}

	rec, ok := s.table[id]
	if !ok || rec.Deleted {
		return record.Record{}, goerr.Wrap(record.ErrNotFound, "update", goerr.Value("id", id))
	}
	if p.IsZero() {
		return rec.Clone(), nil
	}

	prev := rec.Clone()
	next := rec.Clone()
	applyPatch(&next, p)
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	entry := record.HistoryEntry{
		RecordID: id,
		Version:  prev.Version,
		Op:       record.OpUpdate,
		At:       next.UpdatedAt,
		State:    prev,
	}
	if err := s.commit(next, entry); err != nil {
		return record.Record{}, err
	}

	s.table[id] = next
	s.indexUpsert(next)
	return next.Clone(), nil
}

// Delete removes a record. With soft delete (the default) the record is
// tombstoned and drops out of reads, queries and the index; a hard delete
// removes the record file while the history log keeps the tombstone entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table[id]
	if !ok || rec.Deleted {
		return goerr.Wrap(record.ErrNotFound, "delete", goerr.Value("id", id))
	}
	if !s.cfg.SoftDelete {
		return s.purge(rec)
	}

	next := rec.Clone()
	next.Deleted = true
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	entry := record.HistoryEntry{
		RecordID: id,
		Version:  next.Version,
		Op:       record.OpDelete,
		At:       next.UpdatedAt,
		State:    next,
	}
	if err := s.commit(next, entry); err != nil {
		return err
	}
	s.table[id] = next
	s.idx.Remove(id)
	return nil
}

// Purge removes a record outright regardless of the soft-delete default.
// It also escalates an existing tombstone, so a soft-deleted record can
// still be hard-deleted later. The history log keeps its entries.
func (s *Store) Purge(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table[id]
	if !ok {
		return goerr.Wrap(record.ErrNotFound, "purge", goerr.Value("id", id))
	}
	return s.purge(rec)
}

// purge hard-deletes a record. A live record gets its tombstone history
// entry first; a soft-deleted one already has it. Caller holds s.mu.
func (s *Store) purge(rec record.Record) error {
	if !rec.Deleted {
		next := rec.Clone()
		next.Deleted = true
		next.Version++
		next.UpdatedAt = time.Now().UTC()

		entry := record.HistoryEntry{
			RecordID: rec.ID,
			Version:  next.Version,
			Op:       record.OpDelete,
			At:       next.UpdatedAt,
			State:    next,
		}
		undo, err := s.appendHistory(entry)
		if err != nil {
			return err
		}
		if err := s.fs.Remove(s.recordPath(rec.ID)); err != nil && !os.IsNotExist(err) {
			undo()
			return goerr.Wrap(err, "remove record file", goerr.Value("id", rec.ID))
		}
	} else if err := s.fs.Remove(s.recordPath(rec.ID)); err != nil && !os.IsNotExist(err) {
		return goerr.Wrap(err, "remove record file", goerr.Value("id", rec.ID))
	}

	delete(s.table, rec.ID)
	s.idx.Remove(rec.ID)
	return nil
}

// Restore re-admits a soft-deleted record. It reappears in reads, queries
// and the index with a bumped version.
func (s *Store) Restore(ctx context.Context, id string) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table[id]
	if !ok || !rec.Deleted {
		return record.Record{}, goerr.Wrap(record.ErrNotFound, "restore", goerr.Value("id", id))
	}

	prev := rec.Clone()
	next := rec.Clone()
	next.Deleted = false
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	entry := record.HistoryEntry{
		RecordID: id,
		Version:  prev.Version,
		Op:       record.OpUpdate,
		At:       next.UpdatedAt,
		State:    prev,
	}
	if err := s.commit(next, entry); err != nil {
		return record.Record{}, err
	}

	s.table[id] = next
	s.indexUpsert(next)
	return next.Clone(), nil
}

// RebuildIndex drops the vector index and re-derives it from the live
// records.
func (s *Store) RebuildIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := index.New(s.cfg.Dimension)
	for _, rec := range s.table {
		if rec.Deleted || len(rec.Embedding) == 0 {
			continue
		}
		if err := idx.Upsert(rec.ID, rec.Embedding); err != nil {
			return err
		}
	}
	s.idx = idx
	return nil
}

// commit makes a mutation durable. The history line goes first so no
// record state can exist without a log entry; if the record write fails the
// appended line is rolled back.
func (s *Store) commit(rec record.Record, entry record.HistoryEntry) error {
	undo, err := s.appendHistory(entry)
	if err != nil {
		return err
	}
	if err := s.writeRecordFile(rec); err != nil {
		undo()
		return err
	}
	return nil
}

func (s *Store) indexUpsert(rec record.Record) {
	if len(rec.Embedding) == 0 {
		s.idx.Remove(rec.ID)
		return
	}
	if err := s.idx.Upsert(rec.ID, rec.Embedding); err != nil {
		// The index is derived state; the durable write already succeeded.
		s.log.Warn("index upsert failed, index is stale until rebuild",
			"id", rec.ID, "error", err)
	}
}

// checkDimension validates an embedding before it is committed. Without a
// configured dimension, the first indexed embedding fixes it for the store's
// lifetime. Callers hold s.mu.
func (s *Store) checkDimension(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	want := s.cfg.Dimension
	if want == 0 {
		want = s.idx.Dimension()
	}
	if want != 0 && len(vec) != want {
		return goerr.Wrap(record.ErrDimensionMismatch, "embedding rejected",
			goerr.Value("want", want), goerr.Value("got", len(vec)))
	}
	return nil
}

func applyPatch(rec *record.Record, p record.Patch) {
	if p.Content != nil {
		rec.Content = *p.Content
	}
	if p.Tags != nil {
		rec.Tags = append([]string(nil), p.Tags...)
	}
	if p.Metadata != nil {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			rec.Metadata[k] = v
		}
	}
	if p.Importance != nil {
		rec.Importance = record.ClampImportance(*p.Importance)
	}
	if p.Source != nil {
		rec.Source = *p.Source
	}
	if p.Embedding != nil {
		rec.Embedding = append([]float32(nil), p.Embedding...)
	}
}

func (s *Store) recordPath(id string) string {
	return s.fs.Join(recordsDir, id+".json")
}

// writeRecordFile persists a record with write-to-temp-then-rename so a
// crash never leaves a half-written record behind.
func (s *Store) writeRecordFile(rec record.Record) error {
	stored := rec.Clone()
	if s.box != nil {
		sealed, err := s.box.Seal(stored.Content)
		if err != nil {
			return err
		}
		stored.Content = sealed
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "marshal record", goerr.Value("id", rec.ID))
	}

	final := s.recordPath(rec.ID)
	tmp := final + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return goerr.Wrap(err, "write record file", goerr.Value("id", rec.ID))
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		return goerr.Wrap(err, "rename record file", goerr.Value("id", rec.ID))
	}
	return nil
}

func (s *Store) readRecordFile(path string) (record.Record, error) {
	data, err := util.ReadFile(s.fs, path)
	if err != nil {
		return record.Record{}, goerr.Wrap(err, "read record file", goerr.Value("path", path))
	}
	var rec record.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record.Record{}, goerr.Wrap(err, "parse record file", goerr.Value("path", path))
	}
	if s.box != nil {
		plain, err := s.box.Open(rec.Content)
		if err != nil {
			return record.Record{}, goerr.Wrap(err, "decrypt record", goerr.Value("id", rec.ID))
		}
		rec.Content = plain
	}
	return rec, nil
}
