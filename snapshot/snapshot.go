// Package snapshot versions a store directory with an embedded git
// repository. Every snapshot captures the record files, history logs and
// config as one commit, so a store can be rolled back as a unit.
package snapshot

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/m-mizutani/goerr/v2"
)

const (
	gitDir        = ".snapshots"
	defaultBranch = "main"
	defaultAuthor = "memcore"
	defaultEmail  = "memcore@local"
)

var ErrNoRepository = goerr.New("snapshot repository not initialized")

type Snapshot struct {
	Hash    string
	Message string
	At      time.Time
}

// Repository wraps a bare git store whose worktree is the memory store
// directory.
type Repository struct {
	repo     *git.Repository
	worktree *git.Worktree
	rootPath string
}

// Init creates the snapshot repository for a store directory. Safe to call
// on an already-initialized directory.
func Init(rootPath string) (*Repository, error) {
	gitPath := rootPath + "/" + gitDir
	if _, err := os.Stat(gitPath); err == nil {
		return Open(rootPath)
	}

	if err := os.MkdirAll(gitPath, 0o755); err != nil {
		return nil, goerr.Wrap(err, "create snapshot directory")
	}

	storage := filesystem.NewStorage(osfs.New(gitPath), cache.NewObjectLRUDefault())
	repo, err := git.Init(storage, osfs.New(rootPath))
	if err != nil {
		return nil, goerr.Wrap(err, "init snapshot repository")
	}

	cfg, err := repo.Config()
	if err != nil {
		return nil, goerr.Wrap(err, "read snapshot config")
	}
	cfg.Init.DefaultBranch = defaultBranch
	if err := repo.SetConfig(cfg); err != nil {
		return nil, goerr.Wrap(err, "set snapshot config")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, goerr.Wrap(err, "get snapshot worktree")
	}

	// The repository storage lives inside its own worktree; keep it out of
	// the snapshots.
	ignore := []byte(gitDir + "/\n*.tmp\n")
	if err := os.WriteFile(rootPath+"/.gitignore", ignore, 0o644); err != nil {
		return nil, goerr.Wrap(err, "write snapshot ignore file")
	}

	return &Repository{repo: repo, worktree: worktree, rootPath: rootPath}, nil
}

// Open attaches to an existing snapshot repository.
func Open(rootPath string) (*Repository, error) {
	gitPath := rootPath + "/" + gitDir
	if _, err := os.Stat(gitPath); os.IsNotExist(err) {
		return nil, goerr.Wrap(ErrNoRepository, "open", goerr.Value("path", rootPath))
	}

	storage := filesystem.NewStorage(osfs.New(gitPath), cache.NewObjectLRUDefault())
	repo, err := git.Open(storage, osfs.New(rootPath))
	if err != nil {
		return nil, goerr.Wrap(err, "open snapshot repository")
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, goerr.Wrap(err, "get snapshot worktree")
	}
	return &Repository{repo: repo, worktree: worktree, rootPath: rootPath}, nil
}

// Commit stages everything under the store directory and records a
// snapshot. Committing an unchanged store is not an error; the previous
// snapshot is returned.
func (r *Repository) Commit(ctx context.Context, message string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, goerr.Wrap(err, "stage store files")
	}

	status, err := r.worktree.Status()
	if err != nil {
		return nil, goerr.Wrap(err, "snapshot status")
	}
	if status.IsClean() {
		if head, err := r.repo.Head(); err == nil {
			return r.lookup(head.Hash())
		}
	}

	hash, err := r.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  defaultAuthor,
			Email: defaultEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "commit snapshot")
	}
	return r.lookup(hash)
}

// Log lists snapshots newest first. A non-positive limit returns all.
func (r *Repository) Log(ctx context.Context, limit int) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iter, err := r.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, goerr.Wrap(err, "read snapshot log")
	}
	defer iter.Close()

	var snaps []*Snapshot
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(snaps) >= limit {
			return io.EOF
		}
		snaps = append(snaps, toSnapshot(c))
		return nil
	})
	if err != nil && err != io.EOF {
		return nil, goerr.Wrap(err, "iterate snapshot log")
	}
	return snaps, nil
}

// Restore hard-resets the store directory to the given snapshot. The
// caller must reload the store afterwards.
func (r *Repository) Restore(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return goerr.Wrap(err, "resolve snapshot ref", goerr.Value("ref", ref))
	}
	if err := r.worktree.Reset(&git.ResetOptions{
		Commit: *resolved,
		Mode:   git.HardReset,
	}); err != nil {
		return goerr.Wrap(err, "reset to snapshot", goerr.Value("ref", ref))
	}
	return nil
}

func (r *Repository) lookup(hash plumbing.Hash) (*Snapshot, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, goerr.Wrap(err, "lookup snapshot", goerr.Value("hash", hash.String()))
	}
	return toSnapshot(commit), nil
}

func toSnapshot(c *object.Commit) *Snapshot {
	return &Snapshot{
		Hash:    c.Hash.String(),
		Message: strings.TrimSpace(c.Message),
		At:      c.Author.When,
	}
}
