package repo

import (
	"fmt"
	"sort"
	"strings"
)

// Reset unstages paths by restoring their index entries to the HEAD tree.
// A path absent from HEAD is dropped from the index; a directory resets
// everything below it; no paths resets the whole index. The working tree is
// not touched.
func (r *Repo) Reset(paths []string) error {
	ix, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	head, err := r.headIndex()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	targets, err := r.resolveResetTargets(paths, ix, head)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	for _, p := range targets {
		if e, ok := head.Get(p); ok {
			ix.entries[p] = e
			continue
		}
		delete(ix.entries, p)
	}
	return r.WriteIndex(ix)
}

func (r *Repo) resolveResetTargets(paths []string, ix, head *Index) ([]string, error) {
	all := make(map[string]struct{}, ix.Len()+head.Len())
	for _, p := range ix.Paths() {
		all[p] = struct{}{}
	}
	for _, p := range head.Paths() {
		all[p] = struct{}{}
	}
	if len(paths) == 0 {
		return sortedPathSet(all), nil
	}

	targets := make(map[string]struct{})
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return nil, err
		}
		if rel == "" {
			return sortedPathSet(all), nil
		}
		matched := false
		for p := range all {
			if p == rel || strings.HasPrefix(p, rel+"/") {
				targets[p] = struct{}{}
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("path %q did not match staged or HEAD entries", raw)
		}
	}
	return sortedPathSet(targets), nil
}

func sortedPathSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
