package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// CreateTag creates or, with force, moves the lightweight tag
// refs/tags/<name>.
func (r *Repo) CreateTag(name string, target object.Hash, force bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("create tag: tag name is required")
	}
	if !r.Store.Has(target) {
		return fmt.Errorf("create tag %q: %s: %w", name, target, object.ErrNotFound)
	}
	refName := tagsPrefix + name
	if force {
		err := r.SetRef(refName, target)
		if err != nil {
			return fmt.Errorf("create tag: %w", err)
		}
		return nil
	}
	if err := r.UpdateRef(refName, object.ZeroHash, target); err != nil {
		return fmt.Errorf("create tag %q: %w", name, err)
	}
	return nil
}

// DeleteTag removes refs/tags/<name>.
func (r *Repo) DeleteTag(name string) error {
	if err := r.DeleteRef(tagsPrefix+strings.TrimSpace(name), object.ZeroHash); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ListTags returns tag name -> id, where the id is the tag object for
// annotated tags and the commit for lightweight ones.
func (r *Repo) ListTags() (map[string]object.Hash, error) {
	refs, err := r.ListRefs()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make(map[string]object.Hash)
	for _, ref := range refs {
		if name, ok := strings.CutPrefix(ref.Name, tagsPrefix); ok {
			out[name] = ref.Hash
		}
	}
	return out, nil
}
