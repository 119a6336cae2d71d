package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// Checkout switches the working tree to target, a branch name or a commit
// id. A branch target makes HEAD symbolic; a commit id detaches it.
//
//  1. Refuse if the index or tracked files differ from HEAD.
//  2. Remove tracked files absent from the target tree.
//  3. Materialize the target tree.
//  4. Rewrite the index from the target tree.
//  5. Point HEAD at the target.
func (r *Repo) Checkout(target string) error {
	if r.Bare {
		return fmt.Errorf("checkout: %w", ErrBare)
	}
	if err := r.ensureClean(); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	branchRef := ""
	targetHash, err := r.ReadRef(headsPrefix + strings.TrimPrefix(target, headsPrefix))
	switch {
	case err == nil:
		branchRef = headsPrefix + strings.TrimPrefix(target, headsPrefix)
	case isNotFound(err):
		targetHash, err = r.ResolveRef(target)
		if err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	default:
		return fmt.Errorf("checkout: %w", err)
	}

	commit, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if err := r.switchTree(commit.TreeHash); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	if branchRef != "" {
		err = r.SetHead(branchRef)
	} else {
		err = r.SetHeadDetached(targetHash)
	}
	if err != nil {
		return fmt.Errorf("checkout: update HEAD: %w", err)
	}
	return nil
}

// FastForward moves the current branch to target, which must descend from
// the branch tip, and updates the working tree and index to match. An
// unborn branch is simply created at target.
func (r *Repo) FastForward(target object.Hash) error {
	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	if !strings.HasPrefix(head, "refs/") {
		return fmt.Errorf("fast-forward: HEAD is detached")
	}

	tip, err := r.ReadRef(head)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("fast-forward: %w", err)
	}
	if tip == target {
		return nil
	}
	if !tip.IsZero() {
		ok, err := object.IsAncestor(r.Store, tip, target)
		if err != nil {
			return fmt.Errorf("fast-forward: %w", err)
		}
		if !ok {
			return fmt.Errorf("fast-forward: %s is not an ancestor of %s", tip.Short(), target.Short())
		}
	}

	if !r.Bare {
		if err := r.ensureClean(); err != nil {
			return fmt.Errorf("fast-forward: %w", err)
		}
		commit, err := r.Store.ReadCommit(target)
		if err != nil {
			return fmt.Errorf("fast-forward: %w", err)
		}
		if err := r.switchTree(commit.TreeHash); err != nil {
			return fmt.Errorf("fast-forward: %w", err)
		}
	}
	if err := r.UpdateRef(head, tip, target); err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	return nil
}

// switchTree replaces the tracked working-tree files with the contents of
// tree and rewrites the index to match.
func (r *Repo) switchTree(tree object.Hash) error {
	next, err := IndexFromTree(r.Store, tree)
	if err != nil {
		return err
	}

	tracked, err := r.ReadIndex()
	if err != nil {
		return err
	}
	headIx, err := r.headIndex()
	if err != nil {
		return err
	}
	for _, p := range append(tracked.Paths(), headIx.Paths()...) {
		if next.Contains(p) {
			continue
		}
		abs := filepath.Join(r.RootDir, filepath.FromSlash(p))
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %q: %w", p, err)
		}
		r.removeEmptyParents(filepath.Dir(abs))
	}

	if err := Materialize(r.Store, tree, r.RootDir); err != nil {
		return err
	}
	return r.WriteIndex(next)
}

// removeEmptyParents removes empty directories up to, but not including,
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for isUnderRoot(r.RootDir, dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
