package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/4thel00z/memcore/record"
)

func (s *Store) historyPath(id string) string {
	return s.fs.Join(historyDir, id+".jsonl")
}

// appendHistory writes one log line and returns an undo that truncates the
// file back to its previous size. The log is the first write of every
// mutation; undo runs only when the record write that follows fails.
func (s *Store) appendHistory(entry record.HistoryEntry) (undo func(), err error) {
	path := s.historyPath(entry.RecordID)

	var prevSize int64
	if info, err := s.fs.Stat(path); err == nil {
		prevSize = info.Size()
	} else if !os.IsNotExist(err) {
		return nil, goerr.Wrap(err, "stat history log", goerr.Value("id", entry.RecordID))
	}

	if s.box != nil {
		sealed, err := s.box.Seal(entry.State.Content)
		if err != nil {
			return nil, err
		}
		entry.State.Content = sealed
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, goerr.Wrap(err, "marshal history entry", goerr.Value("id", entry.RecordID))
	}
	line = append(line, '\n')

	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "open history log", goerr.Value("id", entry.RecordID))
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return nil, goerr.Wrap(err, "append history entry", goerr.Value("id", entry.RecordID))
	}
	if err := f.Close(); err != nil {
		return nil, goerr.Wrap(err, "close history log", goerr.Value("id", entry.RecordID))
	}

	undo = func() {
		f, err := s.fs.OpenFile(path, os.O_WRONLY, 0o644)
		if err != nil {
			s.log.Warn("history rollback failed", "id", entry.RecordID, "error", err)
			return
		}
		defer f.Close()
		if err := f.Truncate(prevSize); err != nil {
			s.log.Warn("history rollback failed", "id", entry.RecordID, "error", err)
		}
	}
	return undo, nil
}

// History returns the change log of a record, oldest first. The log
// survives hard deletion of the record itself.
func (s *Store) History(ctx context.Context, id string) ([]record.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	_, known := s.table[id]
	s.mu.RUnlock()

	f, err := s.fs.Open(s.historyPath(id))
	if os.IsNotExist(err) {
		if !known {
			return nil, goerr.Wrap(record.ErrNotFound, "history", goerr.Value("id", id))
		}
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "open history log", goerr.Value("id", id))
	}
	defer f.Close()

	var entries []record.HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry record.HistoryEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, goerr.Wrap(err, "parse history entry", goerr.Value("id", id))
		}
		if s.box != nil {
			plain, err := s.box.Open(entry.State.Content)
			if err != nil {
				return nil, goerr.Wrap(err, "decrypt history entry", goerr.Value("id", id))
			}
			entry.State.Content = plain
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "read history log", goerr.Value("id", id))
	}
	return entries, nil
}

// Diff renders a textual patch of the record content between two versions.
// Either version may be the live one.
func (s *Store) Diff(ctx context.Context, id string, fromVersion, toVersion int) (string, error) {
	from, err := s.contentAt(ctx, id, fromVersion)
	if err != nil {
		return "", err
	}
	to, err := s.contentAt(ctx, id, toVersion)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(from, to)
	return dmp.PatchToText(patches), nil
}

func (s *Store) contentAt(ctx context.Context, id string, version int) (string, error) {
	s.mu.RLock()
	rec, ok := s.table[id]
	s.mu.RUnlock()
	if ok && rec.Version == version {
		return rec.Content, nil
	}

	entries, err := s.History(ctx, id)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.State.Version == version {
			return entry.State.Content, nil
		}
	}
	return "", goerr.Wrap(record.ErrNotFound, "no such version",
		goerr.Value("id", id), goerr.Value("version", version))
}
