package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// CreateBranch creates refs/heads/<name> at target. It fails if the branch
// already exists.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	if !r.Store.Has(target) {
		return fmt.Errorf("create branch %q: %s: %w", name, target, object.ErrNotFound)
	}
	if err := r.UpdateRef(headsPrefix+name, object.ZeroHash, target); err != nil {
		if errors.Is(err, ErrStaleRef) {
			return fmt.Errorf("create branch: branch %q already exists", name)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes refs/heads/<name>. The current branch cannot be
// deleted.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: cannot delete current branch %q", name)
	}
	if err := r.DeleteRef(headsPrefix+name, object.ZeroHash); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return nil
}

// ListBranches returns the short names of all local branches, sorted.
func (r *Repo) ListBranches() ([]string, error) {
	refs, err := r.ListRefs()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	var names []string
	for _, ref := range refs {
		if name, ok := strings.CutPrefix(ref.Name, headsPrefix); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
