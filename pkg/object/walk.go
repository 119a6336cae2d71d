package object

import (
	"fmt"
	"sort"
	"strings"
)

// ReachableSet returns all object hashes reachable from roots by following
// object references. Roots and references absent from r are skipped.
func ReachableSet(r ObjectReader, roots []Hash) (map[Hash]struct{}, error) {
	roots = uniqueNormalizedHashes(roots)
	out := make(map[Hash]struct{}, len(roots))

	stack := make([]Hash, 0, len(roots))
	stack = append(stack, roots...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h.IsZero() {
			continue
		}
		if _, ok := out[h]; ok {
			continue
		}
		if !r.Has(h) {
			continue
		}
		out[h] = struct{}{}

		objType, data, err := r.Read(h)
		if err != nil {
			return nil, fmt.Errorf("reachable set read %s: %w", h, err)
		}
		refs, err := ReferencedHashes(objType, data)
		if err != nil {
			return nil, fmt.Errorf("reachable set parse %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}
	return out, nil
}

// MissingFrom returns every object reachable from wants that is not
// reachable from haves, sorted by id. Haves unknown to r are ignored, and
// the walk never descends below an object the have side already covers.
// An object reachable from wants but absent from r is ErrNotFound.
func MissingFrom(r ObjectReader, wants, haves []Hash) ([]Hash, error) {
	present, err := ReachableSet(r, haves)
	if err != nil {
		return nil, fmt.Errorf("missing from: %w", err)
	}

	seen := make(map[Hash]struct{})
	stack := uniqueNormalizedHashes(wants)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h.IsZero() {
			continue
		}
		if _, ok := present[h]; ok {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		objType, data, err := r.Read(h)
		if err != nil {
			return nil, fmt.Errorf("missing from read %s: %w", h, err)
		}
		seen[h] = struct{}{}
		refs, err := ReferencedHashes(objType, data)
		if err != nil {
			return nil, fmt.Errorf("missing from parse %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}

	out := make([]Hash, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ReferencedHashes lists the ids an object points at: a commit's tree and
// parents, a tree's entries, a tag's target.
func ReferencedHashes(objType ObjectType, data []byte) ([]Hash, error) {
	switch objType {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		tag, err := UnmarshalTag(data)
		if err != nil {
			return nil, err
		}
		return []Hash{tag.TargetHash}, nil
	case TypeCommit:
		commit, err := UnmarshalCommit(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, 1+len(commit.Parents))
		refs = append(refs, commit.TreeHash)
		refs = append(refs, commit.Parents...)
		return refs, nil
	case TypeTree:
		tree, err := UnmarshalTree(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			refs = append(refs, e.Hash)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object type %q", objType)
	}
}

// Parents returns the parent ids of commit h in declaration order.
func Parents(r ObjectReader, h Hash) ([]Hash, error) {
	c, err := ReadCommit(r, h)
	if err != nil {
		return nil, err
	}
	return c.Parents, nil
}

// FirstParent returns the first parent of commit h, or "" for a root commit.
func FirstParent(r ObjectReader, h Hash) (Hash, error) {
	parents, err := Parents(r, h)
	if err != nil {
		return "", err
	}
	if len(parents) == 0 {
		return "", nil
	}
	return parents[0], nil
}

// IsAncestor reports whether ancestor is reachable from h through parent
// links. A commit is its own ancestor.
func IsAncestor(r ObjectReader, ancestor, h Hash) (bool, error) {
	seen := make(map[Hash]struct{})
	queue := []Hash{h}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == ancestor {
			return true, nil
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		parents, err := Parents(r, cur)
		if err != nil {
			return false, err
		}
		queue = append(queue, parents...)
	}
	return false, nil
}

func uniqueNormalizedHashes(in []Hash) []Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		h = Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
