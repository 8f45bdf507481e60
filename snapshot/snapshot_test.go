package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCommitLogRestore(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	repo, err := Init(root)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	writeFile(t, root, "records/r1.json", `{"id":"r1","content":"v1"}`)
	first, err := repo.Commit(ctx, "first snapshot")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if first.Hash == "" || first.Message != "first snapshot" {
		t.Errorf("snapshot = %+v", first)
	}

	writeFile(t, root, "records/r1.json", `{"id":"r1","content":"v2"}`)
	second, err := repo.Commit(ctx, "second snapshot")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if second.Hash == first.Hash {
		t.Fatal("distinct states must produce distinct snapshots")
	}

	snaps, err := repo.Log(ctx, 0)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Hash != second.Hash || snaps[1].Hash != first.Hash {
		t.Fatalf("log = %+v", snaps)
	}

	if err := repo.Restore(ctx, first.Hash); err != nil {
		t.Fatalf("restore: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "records/r1.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"id":"r1","content":"v1"}` {
		t.Errorf("restored content = %s", data)
	}
}

func TestCommitCleanTreeReturnsPrevious(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	repo, err := Init(root)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	writeFile(t, root, "config.yaml", "dimension: 8\n")

	first, err := repo.Commit(ctx, "initial")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	again, err := repo.Commit(ctx, "nothing changed")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if again.Hash != first.Hash {
		t.Errorf("clean commit created %s, want %s", again.Hash, first.Hash)
	}
}

func TestLogLimit(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	repo, err := Init(root)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	for i, content := range []string{"a", "b", "c"} {
		writeFile(t, root, "records/r.json", content)
		if _, err := repo.Commit(ctx, "snap"); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	snaps, err := repo.Log(ctx, 2)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(snaps) != 2 {
		t.Errorf("len = %d, want 2", len(snaps))
	}
}

func TestOpenUninitialized(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, ErrNoRepository) {
		t.Fatalf("expected ErrNoRepository, got %v", err)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := Init(root); err != nil {
		t.Fatalf("second init: %v", err)
	}
}
