package store

import (
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/record"
)

// exportDoc is the interchange format. Content is always plaintext in an
// export regardless of the store's encryption setting.
type exportDoc struct {
	Records []record.Record `json:"records"`
}

// Export writes every record, tombstones included, as a single JSON
// document.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	recs := make([]record.Record, 0, len(s.table))
	for _, rec := range s.table {
		recs = append(recs, rec.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exportDoc{Records: recs}); err != nil {
		return goerr.Wrap(err, "encode export")
	}
	return nil
}

// Import loads records from an Export document, preserving ids, versions
// and timestamps. Records whose id already exists are skipped. Returns the
// number of records imported.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var doc exportDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, goerr.Wrap(err, "decode import")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	for _, rec := range doc.Records {
		if rec.ID == "" || rec.Content == "" {
			return imported, goerr.Wrap(record.ErrValidation, "import record missing id or content")
		}
		if _, exists := s.table[rec.ID]; exists {
			continue
		}
		if err := s.checkDimension(rec.Embedding); err != nil {
			return imported, err
		}

		entry := record.HistoryEntry{
			RecordID: rec.ID,
			Version:  rec.Version,
			Op:       record.OpCreate,
			At:       rec.UpdatedAt,
			State:    rec,
		}
		if err := s.commit(rec, entry); err != nil {
			return imported, err
		}
		s.table[rec.ID] = rec
		if !rec.Deleted {
			s.indexUpsert(rec)
		}
		imported++
	}
	return imported, nil
}
