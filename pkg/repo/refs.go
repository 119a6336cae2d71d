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

const (
	headsPrefix   = "refs/heads/"
	tagsPrefix    = "refs/tags/"
	remotesPrefix = "refs/remotes/"
	symrefPrefix  = "ref: "

	maxSymrefDepth = 5
)

// ErrAtomicRejected is reported for ref updates of a batch that were valid
// but not applied because another update in the same batch failed.
var ErrAtomicRejected = errors.New("atomic push failed")

// Ref is a named pointer to an object id.
type Ref struct {
	Name string
	Hash object.Hash
}

// RefUpdate describes one compare-and-set change. A zero Old means the ref
// must not exist; a zero New deletes it.
type RefUpdate struct {
	Name string
	Old  object.Hash
	New  object.Hash
}

// CheckRefName validates a full ref name such as refs/heads/main.
func CheckRefName(name string) error {
	if !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("invalid ref name %q: must start with refs/", name)
	}
	for _, part := range strings.Split(name, "/") {
		switch {
		case part == "":
			return fmt.Errorf("invalid ref name %q: empty component", name)
		case strings.HasPrefix(part, "."):
			return fmt.Errorf("invalid ref name %q: component starts with '.'", name)
		case strings.HasSuffix(part, ".lock"):
			return fmt.Errorf("invalid ref name %q: component ends with .lock", name)
		}
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, " ~^:?*[\\\x00\x7f") {
		return fmt.Errorf("invalid ref name %q: forbidden character", name)
	}
	for _, c := range name {
		if c < 0x20 {
			return fmt.Errorf("invalid ref name %q: control character", name)
		}
	}
	return nil
}

// readRefValue reads the trimmed contents of a ref file under a shared lock.
// A missing or empty file reports ok=false.
func readRefValue(path string) (value string, ok bool, err error) {
	l, err := lockRef(path, false)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	defer l.unlock()
	return readLockedValue(path)
}

func readLockedValue(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	value := strings.TrimSpace(string(data))
	return value, value != "", nil
}

func parseRefHash(name, value string) (object.Hash, error) {
	h, err := object.ParseHash(value)
	if err != nil {
		return "", fmt.Errorf("ref %q: %w: %v", name, object.ErrCorrupt, err)
	}
	return h, nil
}

// Head returns the target of HEAD: a ref name such as refs/heads/main when
// HEAD is symbolic, otherwise the detached commit id.
func (r *Repo) Head() (string, error) {
	value, ok, err := readRefValue(r.gitPath("HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("head: %w", object.ErrNotFound)
	}
	return strings.TrimPrefix(value, symrefPrefix), nil
}

// CurrentBranch returns the short branch name HEAD points at, or "" when
// HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if !strings.HasPrefix(head, headsPrefix) {
		return "", nil
	}
	return strings.TrimPrefix(head, headsPrefix), nil
}

// SetHead points HEAD at the given branch ref. A short name is taken to be
// a branch under refs/heads/.
func (r *Repo) SetHead(ref string) error {
	if !strings.HasPrefix(ref, "refs/") {
		ref = headsPrefix + ref
	}
	if err := CheckRefName(ref); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return r.writeLockedFile("HEAD", symrefPrefix+ref+"\n", nil)
}

// SetHeadDetached points HEAD directly at a commit id.
func (r *Repo) SetHeadDetached(h object.Hash) error {
	if _, err := object.ParseHash(string(h)); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return r.writeLockedFile("HEAD", string(h)+"\n", nil)
}

// ReadRef returns the id stored in the full ref name. Symbolic refs are
// followed. A missing ref wraps object.ErrNotFound.
func (r *Repo) ReadRef(name string) (object.Hash, error) {
	for i := 0; i < maxSymrefDepth; i++ {
		value, ok, err := readRefValue(r.gitPath(filepath.FromSlash(name)))
		if err != nil {
			return "", fmt.Errorf("read ref %q: %w", name, err)
		}
		if !ok {
			return "", fmt.Errorf("read ref %q: %w", name, object.ErrNotFound)
		}
		if !strings.HasPrefix(value, symrefPrefix) {
			return parseRefHash(name, value)
		}
		name = strings.TrimPrefix(value, symrefPrefix)
	}
	return "", fmt.Errorf("read ref %q: symbolic ref chain too deep", name)
}

// ResolveRef resolves a user-supplied name to an object id.
//
// Resolution order:
//  1. "HEAD", following the symbolic target.
//  2. A 40-hex object id.
//  3. A full name starting with "refs/".
//  4. refs/heads/<name>, refs/tags/<name>, refs/remotes/<name>.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ReadRef(head)
		}
		return parseRefHash("HEAD", head)
	}
	if h, err := object.ParseHash(name); err == nil {
		return h, nil
	}
	if strings.HasPrefix(name, "refs/") {
		return r.ReadRef(name)
	}
	for _, prefix := range []string{headsPrefix, tagsPrefix, remotesPrefix} {
		h, err := r.ReadRef(prefix + name)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, object.ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("resolve ref %q: %w", name, object.ErrNotFound)
}

// ListRefs returns every direct ref under refs/, sorted by name. Lock files,
// temporaries and empty files are skipped.
func (r *Repo) ListRefs() ([]Ref, error) {
	root := r.gitPath("refs")
	var refs []Ref
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(r.GitDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		value, ok, err := readRefValue(path)
		if err != nil {
			return err
		}
		if !ok || strings.HasPrefix(value, symrefPrefix) {
			return nil
		}
		h, err := parseRefHash(name, value)
		if err != nil {
			return err
		}
		refs = append(refs, Ref{Name: name, Hash: h})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// UpdateRef moves name from old to new under an exclusive lock. The ref's
// current value must equal old (zero meaning absent) or ErrStaleRef is
// returned and the ref is left unchanged. A zero new deletes the ref.
func (r *Repo) UpdateRef(name string, old, new object.Hash) error {
	if err := CheckRefName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	return r.writeRef(name, new, ReasonUpdate, func(cur object.Hash) error {
		if !sameHash(cur, old) {
			return fmt.Errorf("update ref %q: %w (expected %s, found %s)",
				name, ErrStaleRef, displayHash(old), displayHash(cur))
		}
		return nil
	})
}

// SetRef writes name unconditionally. It is used for remote-tracking refs.
func (r *Repo) SetRef(name string, h object.Hash) error {
	if err := CheckRefName(name); err != nil {
		return fmt.Errorf("set ref: %w", err)
	}
	return r.writeRef(name, h, ReasonSet, nil)
}

// DeleteRef removes name if its current value equals old. A zero old skips
// the check.
func (r *Repo) DeleteRef(name string, old object.Hash) error {
	if err := CheckRefName(name); err != nil {
		return fmt.Errorf("delete ref: %w", err)
	}
	return r.writeRef(name, object.ZeroHash, ReasonUpdate, func(cur object.Hash) error {
		if cur.IsZero() {
			return fmt.Errorf("delete ref %q: %w", name, object.ErrNotFound)
		}
		if !old.IsZero() && cur != old {
			return fmt.Errorf("delete ref %q: %w (expected %s, found %s)",
				name, ErrStaleRef, old, cur)
		}
		return nil
	})
}

// sameHash compares ids treating "" and the all-zeros id as equal.
func sameHash(a, b object.Hash) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	return a == b
}

func displayHash(h object.Hash) string {
	if h.IsZero() {
		return "<none>"
	}
	return string(h)
}

// writeRef replaces name with h under its lock. The reflog line is
// written while the lock is held, before the ref itself moves.
func (r *Repo) writeRef(name string, h object.Hash, reason string, check func(cur object.Hash) error) error {
	if !h.IsZero() {
		if _, err := object.ParseHash(string(h)); err != nil {
			return fmt.Errorf("update ref %q: %w", name, err)
		}
	}
	rel := filepath.FromSlash(name)
	if err := os.MkdirAll(filepath.Dir(r.gitPath(rel)), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}
	content := ""
	if !h.IsZero() {
		content = string(h) + "\n"
	}
	return r.writeLockedFile(rel, content, func(value string) error {
		cur := object.ZeroHash
		if value != "" {
			parsed, err := parseRefHash(name, value)
			if err != nil {
				return err
			}
			cur = parsed
		}
		if check != nil {
			if err := check(cur); err != nil {
				return err
			}
		}
		return r.appendReflog(name, cur, h, reason)
	})
}

// writeLockedFile replaces the file at rel (relative to GitDir) with
// content while holding its exclusive lock. Empty content removes the file.
// check sees the current trimmed value and may veto the write.
func (r *Repo) writeLockedFile(rel, content string, check func(value string) error) error {
	path := r.gitPath(rel)
	l, err := lockRef(path, true)
	if err != nil {
		return fmt.Errorf("lock %s: %w", rel, err)
	}
	defer l.unlock()

	if check != nil {
		value, _, err := readLockedValue(path)
		if err != nil {
			return err
		}
		if err := check(value); err != nil {
			return err
		}
	}
	return commitLocked(l, content)
}

// commitLocked writes content over the locked path by rename, or removes it
// when content is empty.
func commitLocked(l *refLock, content string) error {
	if content == "" {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		l.committed = true
		return nil
	}
	if err := writeFileAtomic(filepath.Dir(l.path), l.path, []byte(content)); err != nil {
		return err
	}
	l.committed = true
	return nil
}

// ApplyRefUpdates applies a batch of compare-and-set updates atomically:
// every ref is locked and validated before any is written. The returned
// slice holds one error per update (nil on success). If any update is
// invalid, nothing is written and the valid updates report
// ErrAtomicRejected. The second result reports failures outside any single
// update.
//
// Updating the ref HEAD points at in a repository with a working tree is
// refused with ErrBusyBranch. New ids must name objects in the store.
func (r *Repo) ApplyRefUpdates(updates []RefUpdate) ([]error, error) {
	results := make([]error, len(updates))
	if len(updates) == 0 {
		return results, nil
	}

	headTarget := ""
	if !r.Bare {
		if head, err := r.Head(); err == nil {
			headTarget = head
		}
	}

	order := make([]int, len(updates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return updates[order[a]].Name < updates[order[b]].Name })

	locks := make(map[string]*refLock, len(updates))
	defer func() {
		for _, l := range locks {
			l.unlock()
		}
	}()

	failed := false
	for _, i := range order {
		u := updates[i]
		if err := r.validateUpdate(u, headTarget, locks); err != nil {
			results[i] = err
			failed = true
		}
	}
	if failed {
		for i := range results {
			if results[i] == nil {
				results[i] = ErrAtomicRejected
			}
		}
		return results, nil
	}

	for _, i := range order {
		u := updates[i]
		if err := r.appendReflog(u.Name, u.Old, u.New, ReasonBatch); err != nil {
			return results, err
		}
	}
	for _, i := range order {
		u := updates[i]
		content := ""
		if !u.New.IsZero() {
			content = string(u.New) + "\n"
		}
		if err := commitLocked(locks[u.Name], content); err != nil {
			return results, fmt.Errorf("update ref %q: %w", u.Name, err)
		}
	}
	return results, nil
}

func (r *Repo) validateUpdate(u RefUpdate, headTarget string, locks map[string]*refLock) error {
	if err := CheckRefName(u.Name); err != nil {
		return err
	}
	if _, dup := locks[u.Name]; dup {
		return fmt.Errorf("duplicate update for %s", u.Name)
	}
	if u.Name == headTarget {
		return ErrBusyBranch
	}
	if !u.New.IsZero() {
		if _, err := object.ParseHash(string(u.New)); err != nil {
			return err
		}
		if !r.Store.Has(u.New) {
			return fmt.Errorf("missing object %s: %w", u.New, object.ErrNotFound)
		}
	}

	path := r.gitPath(filepath.FromSlash(u.Name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	l, err := lockRef(path, true)
	if err != nil {
		return err
	}
	locks[u.Name] = l

	value, _, err := readLockedValue(path)
	if err != nil {
		return err
	}
	cur := object.ZeroHash
	if value != "" {
		if cur, err = parseRefHash(u.Name, value); err != nil {
			return err
		}
	}
	if !sameHash(cur, u.Old) {
		return ErrStaleRef
	}
	return nil
}
