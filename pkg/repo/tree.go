package repo

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// TreeFileEntry is a single file in a flattened tree.
type TreeFileEntry struct {
	Path string
	Hash object.Hash
	Mode string
}

// BuildTree folds the index into nested tree objects, writes them and
// returns the root tree id. Equal indexes always produce equal ids.
func BuildTree(w object.ObjectWriter, ix *Index) (object.Hash, error) {
	return buildTreeDir(w, ix.Paths(), ix, "")
}

// buildTreeDir writes the tree for the directory prefix. paths holds the
// sorted index paths below prefix.
func buildTreeDir(w object.ObjectWriter, paths []string, ix *Index, prefix string) (object.Hash, error) {
	files := make(map[string]IndexEntry)
	subdirs := make(map[string][]string)

	for _, p := range paths {
		rel := p
		if prefix != "" {
			rel = p[len(prefix)+1:]
		}
		name, rest, nested := strings.Cut(rel, "/")
		if nested && rest != "" {
			subdirs[name] = append(subdirs[name], p)
			continue
		}
		e, _ := ix.Get(p)
		files[name] = e
	}

	names := make([]string, 0, len(files)+len(subdirs))
	for name := range files {
		if _, clash := subdirs[name]; clash {
			return "", fmt.Errorf("build tree: %q is both a file and a directory", path.Join(prefix, name))
		}
		names = append(names, name)
	}
	for name := range subdirs {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]object.TreeEntry, 0, len(names))
	for _, name := range names {
		if e, isFile := files[name]; isFile {
			mode := e.Mode
			if mode == "" {
				mode = object.TreeModeFile
			}
			entries = append(entries, object.TreeEntry{Mode: mode, Name: name, Hash: e.Hash})
			continue
		}
		childPrefix := path.Join(prefix, name)
		sub, err := buildTreeDir(w, subdirs[name], ix, childPrefix)
		if err != nil {
			return "", err
		}
		entries = append(entries, object.TreeEntry{Mode: object.TreeModeDir, Name: name, Hash: sub})
	}

	data, err := object.MarshalTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("build tree %q: %w", prefix, err)
	}
	h, err := w.Write(object.TypeTree, data)
	if err != nil {
		return "", fmt.Errorf("write tree %q: %w", prefix, err)
	}
	return h, nil
}

// FlattenTree walks a tree recursively and returns its files with full
// forward-slash paths, in tree order.
func FlattenTree(r object.ObjectReader, h object.Hash) ([]TreeFileEntry, error) {
	return flattenTreeRec(r, h, "")
}

func flattenTreeRec(r object.ObjectReader, h object.Hash, prefix string) ([]TreeFileEntry, error) {
	tr, err := object.ReadTree(r, h)
	if err != nil {
		return nil, fmt.Errorf("flatten tree: %w", err)
	}

	var result []TreeFileEntry
	for _, e := range tr.Entries {
		full := path.Join(prefix, e.Name)
		if e.IsDir() {
			sub, err := flattenTreeRec(r, e.Hash, full)
			if err != nil {
				return nil, err
			}
			result = append(result, sub...)
			continue
		}
		result = append(result, TreeFileEntry{Path: full, Hash: e.Hash, Mode: e.Mode})
	}
	return result, nil
}

// IndexFromTree rebuilds the index a tree was built from.
func IndexFromTree(r object.ObjectReader, h object.Hash) (*Index, error) {
	files, err := FlattenTree(r, h)
	if err != nil {
		return nil, err
	}
	ix := NewIndex()
	for _, f := range files {
		if err := checkIndexPath(f.Path); err != nil {
			return nil, fmt.Errorf("index from tree: %w", err)
		}
		ix.Set(f.Path, f.Hash)
	}
	return ix, nil
}

// Materialize writes every file of the tree under dir, creating
// directories as needed and overwriting existing files.
func Materialize(r object.ObjectReader, h object.Hash, dir string) error {
	files, err := FlattenTree(r, h)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := checkIndexPath(f.Path); err != nil {
			return fmt.Errorf("materialize: %w", err)
		}
		blob, err := readBlob(r, f.Hash)
		if err != nil {
			return fmt.Errorf("materialize %q: %w", f.Path, err)
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("materialize %q: %w", f.Path, err)
		}
		perm := os.FileMode(0o644)
		if f.Mode == object.TreeModeExecutable {
			perm = 0o755
		}
		if err := os.WriteFile(target, blob, perm); err != nil {
			return fmt.Errorf("materialize %q: %w", f.Path, err)
		}
	}
	return nil
}

func readBlob(r object.ObjectReader, h object.Hash) ([]byte, error) {
	objType, data, err := r.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != object.TypeBlob {
		return nil, fmt.Errorf("object %s: %w: is a %s, not a blob", h, object.ErrCorrupt, objType)
	}
	return data, nil
}

// LookupPath finds the entry at a slash-separated path inside a tree.
func LookupPath(r object.ObjectReader, tree object.Hash, relPath string) (object.TreeEntry, error) {
	parts := splitComponents(relPath)
	if len(parts) == 0 {
		return object.TreeEntry{Mode: object.TreeModeDir, Hash: tree}, nil
	}
	current := tree
	for i, part := range parts {
		tr, err := object.ReadTree(r, current)
		if err != nil {
			return object.TreeEntry{}, err
		}
		idx := slices.IndexFunc(tr.Entries, func(e object.TreeEntry) bool { return e.Name == part })
		if idx < 0 {
			return object.TreeEntry{}, fmt.Errorf("path %q: %w", relPath, object.ErrNotFound)
		}
		e := tr.Entries[idx]
		if i == len(parts)-1 {
			return e, nil
		}
		if !e.IsDir() {
			return object.TreeEntry{}, fmt.Errorf("path %q: %w", relPath, object.ErrNotFound)
		}
		current = e.Hash
	}
	return object.TreeEntry{}, fmt.Errorf("path %q: %w", relPath, object.ErrNotFound)
}
