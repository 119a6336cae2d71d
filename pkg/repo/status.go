package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// FileStatus is the state of a path in one comparison.
type FileStatus int

const (
	StatusClean     FileStatus = iota // both sides match
	StatusNew                         // staged, absent from HEAD
	StatusModified                    // staged content differs from HEAD, or disk differs from index
	StatusDeleted                     // absent from the newer side
	StatusUntracked                   // on disk, not staged
)

func (s FileStatus) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusNew:
		return "new"
	case StatusModified:
		return "modified"
	case StatusDeleted:
		return "deleted"
	case StatusUntracked:
		return "untracked"
	default:
		return fmt.Sprintf("FileStatus(%d)", int(s))
	}
}

// StatusEntry records the status of a single path.
type StatusEntry struct {
	Path        string     // repo-relative path
	IndexStatus FileStatus // index vs HEAD tree
	WorkStatus  FileStatus // working tree vs index
}

// Status compares the HEAD tree, the index and the working tree and returns
// every path that is not clean on both sides, sorted by path.
func (r *Repo) Status() ([]StatusEntry, error) {
	if r.Bare {
		return nil, fmt.Errorf("status: %w", ErrBare)
	}
	ix, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	headIx, err := r.headIndex()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	ic, err := LoadIgnoreChecker(r.RootDir)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	workFiles := make(map[string]bool)
	err = filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.IsIgnored(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			workFiles[rel] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status: walk: %w", err)
	}

	result := make(map[string]*StatusEntry)
	entry := func(p string) *StatusEntry {
		if e, ok := result[p]; ok {
			return e
		}
		e := &StatusEntry{Path: p}
		result[p] = e
		return e
	}

	for _, p := range ix.Paths() {
		staged, _ := ix.Get(p)
		head, inHead := headIx.Get(p)
		switch {
		case !inHead:
			entry(p).IndexStatus = StatusNew
		case head.Hash != staged.Hash:
			entry(p).IndexStatus = StatusModified
		}

		if !workFiles[p] {
			entry(p).WorkStatus = StatusDeleted
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		if object.HashObject(object.TypeBlob, data) != staged.Hash {
			entry(p).WorkStatus = StatusModified
		}
	}
	for _, p := range headIx.Paths() {
		if !ix.Contains(p) {
			entry(p).IndexStatus = StatusDeleted
		}
	}
	for p := range workFiles {
		if !ix.Contains(p) {
			entry(p).WorkStatus = StatusUntracked
		}
	}

	out := make([]StatusEntry, 0, len(result))
	for _, e := range result {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// headIndex returns the index form of the HEAD commit's tree, or an empty
// index when the current branch has no commits yet.
func (r *Repo) headIndex() (*Index, error) {
	tree, err := r.headTree()
	if err != nil {
		return nil, err
	}
	if tree.IsZero() {
		return NewIndex(), nil
	}
	return IndexFromTree(r.Store, tree)
}

// headTree returns the tree of the HEAD commit, or "" for an unborn branch.
func (r *Repo) headTree() (object.Hash, error) {
	h, err := r.ResolveRef("HEAD")
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return "", err
	}
	return c.TreeHash, nil
}

// ensureClean fails with ErrDirty when the index differs from HEAD or a
// staged file differs on disk. Untracked files do not count.
func (r *Repo) ensureClean() error {
	entries, err := r.Status()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IndexStatus != StatusClean || (e.WorkStatus != StatusClean && e.WorkStatus != StatusUntracked) {
			return fmt.Errorf("%w (%s)", ErrDirty, e.Path)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, object.ErrNotFound)
}

func isUnderRoot(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
