package repo

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
)

// Reasons recorded in the reflog for each kind of ref write.
const (
	ReasonUpdate = "update"
	ReasonSet    = "set"
	ReasonBatch  = "batch update"
)

// ReflogEntry is one recorded movement of a ref.
type ReflogEntry struct {
	Old    object.Hash
	New    object.Hash
	When   int64 // unix seconds
	Reason string
}

func (r *Repo) reflogPath(name string) string {
	return r.gitPath("logs", filepath.FromSlash(name))
}

// appendReflog records old -> new for name. A zero new drops the log with
// the ref so the name can later become a directory.
func (r *Repo) appendReflog(name string, old, new object.Hash, reason string) error {
	path := r.reflogPath(name)
	if new.IsZero() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reflog %s: %w", name, err)
		}
		return nil
	}
	if old.IsZero() {
		old = object.ZeroHash
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog %s: mkdir: %w", name, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog %s: %w", name, err)
	}
	_, err = fmt.Fprintf(f, "%s %s %d\t%s\n", old, new, time.Now().Unix(), reason)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("reflog %s: %w", name, err)
	}
	return nil
}

// ReadReflog returns the recorded movements of a ref, newest first. "HEAD"
// reads the log of the branch HEAD points at and a short name is taken as
// a branch. A limit of zero or less returns every entry. A ref that was
// never written has an empty log.
func (r *Repo) ReadReflog(name string, limit int) ([]ReflogEntry, error) {
	full, err := r.reflogRefName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(r.reflogPath(full))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog %s: %w", full, err)
	}
	defer f.Close()

	var entries []ReflogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		e, ok := parseReflogLine(sc.Text())
		if ok {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read reflog %s: %w", full, err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func parseReflogLine(line string) (ReflogEntry, bool) {
	head, reason, _ := strings.Cut(line, "\t")
	fields := strings.Fields(head)
	if len(fields) != 3 {
		return ReflogEntry{}, false
	}
	old, err := object.ParseHash(fields[0])
	if err != nil {
		return ReflogEntry{}, false
	}
	new, err := object.ParseHash(fields[1])
	if err != nil {
		return ReflogEntry{}, false
	}
	when, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ReflogEntry{}, false
	}
	return ReflogEntry{Old: old, New: new, When: when, Reason: reason}, true
}

func (r *Repo) reflogRefName(name string) (string, error) {
	switch {
	case name == "" || name == "HEAD":
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if !strings.HasPrefix(head, "refs/") {
			return "", fmt.Errorf("read reflog: HEAD is detached")
		}
		return head, nil
	case strings.HasPrefix(name, "refs/"):
		return name, nil
	default:
		return headsPrefix + name, nil
	}
}
