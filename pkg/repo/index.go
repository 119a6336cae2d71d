package repo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// IndexEntry is the staged state of one path.
type IndexEntry struct {
	Hash object.Hash
	Mode string
}

// Index maps repository-relative, forward-slash paths to staged blob ids.
// It is not safe for concurrent use.
type Index struct {
	entries map[string]IndexEntry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]IndexEntry)}
}

// LoadIndex reads an index file of "<id> <path>\n" lines.
func LoadIndex(file string) (*Index, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	ix, err := ParseIndex(data)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", file, err)
	}
	return ix, nil
}

// ParseIndex decodes the on-disk index format.
func ParseIndex(data []byte) (*Index, error) {
	ix := NewIndex()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		hexID, p, ok := strings.Cut(line, " ")
		if !ok || p == "" {
			return nil, fmt.Errorf("%w: index line %d: missing path", object.ErrCorrupt, lineNo)
		}
		h, err := object.ParseHash(hexID)
		if err != nil {
			return nil, fmt.Errorf("%w: index line %d: %v", object.ErrCorrupt, lineNo, err)
		}
		if err := checkIndexPath(p); err != nil {
			return nil, fmt.Errorf("%w: index line %d: %v", object.ErrCorrupt, lineNo, err)
		}
		ix.Set(p, h)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Marshal encodes the index, one line per entry sorted by path.
func (ix *Index) Marshal() []byte {
	var buf bytes.Buffer
	for _, p := range ix.Paths() {
		buf.WriteString(string(ix.entries[p].Hash))
		buf.WriteByte(' ')
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Save atomically writes the index to file.
func (ix *Index) Save(file string) error {
	if err := writeFileAtomic(filepath.Dir(file), file, ix.Marshal()); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// Set inserts or replaces the mapping for p.
func (ix *Index) Set(p string, h object.Hash) {
	ix.entries[p] = IndexEntry{Hash: h, Mode: object.TreeModeFile}
}

// Get returns the entry for p.
func (ix *Index) Get(p string) (IndexEntry, bool) {
	e, ok := ix.entries[p]
	return e, ok
}

// Contains reports whether p is staged.
func (ix *Index) Contains(p string) bool {
	_, ok := ix.entries[p]
	return ok
}

// Remove drops the mapping for p. It fails with object.ErrNotFound when p
// is not staged.
func (ix *Index) Remove(p string) error {
	if _, ok := ix.entries[p]; !ok {
		return fmt.Errorf("index: %q: %w", p, object.ErrNotFound)
	}
	delete(ix.entries, p)
	return nil
}

// removeUnder drops p and every path below the directory p. It reports how
// many entries were removed.
func (ix *Index) removeUnder(p string) int {
	n := 0
	prefix := p + "/"
	for k := range ix.entries {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(ix.entries, k)
			n++
		}
	}
	return n
}

// Paths returns the staged paths in sorted order.
func (ix *Index) Paths() []string {
	out := make([]string, 0, len(ix.entries))
	for p := range ix.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of staged paths.
func (ix *Index) Len() int { return len(ix.entries) }

// Equal reports whether both indexes hold the same mappings.
func (ix *Index) Equal(other *Index) bool {
	if ix.Len() != other.Len() {
		return false
	}
	for p, e := range ix.entries {
		if o, ok := other.entries[p]; !ok || o != e {
			return false
		}
	}
	return true
}

// checkIndexPath rejects paths the index cannot hold: absolute, empty or
// metadata components, and line breaks, which would split an index line.
func checkIndexPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.ContainsAny(p, "\x00\n\r") {
		return fmt.Errorf("invalid path %q", p)
	}
	for _, c := range strings.Split(p, "/") {
		if err := object.ValidateEntryName(c); err != nil {
			return fmt.Errorf("invalid path %q: %w", p, err)
		}
	}
	return nil
}

func (r *Repo) indexPath() string {
	return r.gitPath("index")
}

// ReadIndex loads the repository index. A missing file yields an empty
// index.
func (r *Repo) ReadIndex() (*Index, error) {
	ix, err := LoadIndex(r.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return NewIndex(), nil
	}
	return ix, err
}

// WriteIndex atomically saves the repository index.
func (r *Repo) WriteIndex(ix *Index) error {
	return ix.Save(r.indexPath())
}

// AddPath stages p into ix.
//
//   - An ignored path fails with ErrIgnored.
//   - A directory is walked; ignored children are skipped.
//   - A regular file is stored as a blob and mapped.
//   - A missing path drops its mapping, or every mapping under it when it
//     was a directory, failing with object.ErrNotFound if nothing was staged.
func (r *Repo) AddPath(ix *Index, p string) error {
	if r.Bare {
		return fmt.Errorf("add %q: %w", p, ErrBare)
	}
	rel, err := r.repoRelPath(p)
	if err != nil {
		return fmt.Errorf("add %q: %w", p, err)
	}
	ic, err := LoadIgnoreChecker(r.RootDir)
	if err != nil {
		return fmt.Errorf("add %q: %w", p, err)
	}
	if rel != "" && ic.IsIgnored(rel) {
		return fmt.Errorf("add %q: %w", rel, ErrIgnored)
	}

	abs := filepath.Join(r.RootDir, filepath.FromSlash(rel))
	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		if ix.removeUnder(rel) == 0 {
			return fmt.Errorf("add %q: %w", rel, object.ErrNotFound)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("add %q: %w", rel, err)
	}
	if info.IsDir() {
		return r.addDir(ix, ic, rel)
	}
	return r.addFile(ix, rel, info)
}

func (r *Repo) addDir(ix *Index, ic *IgnoreChecker, rel string) error {
	dir := filepath.Join(r.RootDir, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("add %q: %w", rel, err)
	}
	for _, de := range entries {
		child := path.Join(rel, de.Name())
		if ic.IsIgnored(child) || strings.EqualFold(de.Name(), MetaDir) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return fmt.Errorf("add %q: %w", child, err)
		}
		if info.IsDir() {
			if err := r.addDir(ix, ic, child); err != nil {
				return err
			}
			continue
		}
		if err := r.addFile(ix, child, info); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) addFile(ix *Index, rel string, info fs.FileInfo) error {
	if !info.Mode().IsRegular() {
		return nil
	}
	if err := checkIndexPath(rel); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("add %q: %w", rel, err)
	}
	h, err := r.Store.WriteBlob(&object.Blob{Data: data})
	if err != nil {
		return fmt.Errorf("add %q: write blob: %w", rel, err)
	}
	ix.Set(rel, h)
	return nil
}

// Add stages each path and saves the index.
func (r *Repo) Add(paths []string) error {
	ix, err := r.ReadIndex()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := r.AddPath(ix, p); err != nil {
			return err
		}
	}
	return r.WriteIndex(ix)
}

// Remove unstages each path and saves the index. Working-tree files are
// left in place.
func (r *Repo) Remove(paths []string) error {
	ix, err := r.ReadIndex()
	if err != nil {
		return err
	}
	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("remove %q: %w", p, err)
		}
		if err := ix.Remove(rel); err != nil {
			return err
		}
	}
	return r.WriteIndex(ix)
}

// repoRelPath converts a path (absolute, or relative to the working
// directory) into a clean forward-slash path relative to the repository
// root. A relative path outside the working directory's view of the
// repository is taken to be repository-relative already. Paths that escape
// the root are rejected. The root itself maps to "".
func (r *Repo) repoRelPath(p string) (string, error) {
	var rel string
	if filepath.IsAbs(p) {
		var err error
		rel, err = filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
	} else {
		rel = filepath.Clean(p)
		if cwd, err := os.Getwd(); err == nil {
			if fromCwd, err := filepath.Rel(r.RootDir, filepath.Join(cwd, p)); err == nil && !escapes(fromCwd) {
				rel = fromCwd
			}
		}
	}
	rel = filepath.ToSlash(rel)
	if escapes(rel) {
		return "", fmt.Errorf("path %q is outside the repository", p)
	}
	if rel == "." {
		rel = ""
	}
	return rel, nil
}

func escapes(rel string) bool {
	rel = filepath.ToSlash(rel)
	return rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel)
}
