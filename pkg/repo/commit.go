package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
)

const (
	fallbackUserName  = "gitcore"
	fallbackUserEmail = "gitcore@localhost"
)

// NewIdent returns a commit signature stamped with t.
func NewIdent(name, email string, t time.Time) object.Ident {
	return object.Ident{
		Name:     name,
		Email:    email,
		When:     t.Unix(),
		Timezone: t.Format("-0700"),
	}
}

// DefaultIdent builds a signature from the [user] section of the config,
// stamped with the current time.
func (r *Repo) DefaultIdent() (object.Ident, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return object.Ident{}, err
	}
	name, email := cfg.User.Name, cfg.User.Email
	if name == "" {
		name = fallbackUserName
	}
	if email == "" {
		email = fallbackUserEmail
	}
	return NewIdent(name, email, time.Now()), nil
}

// CreateCommit writes a commit object for the given tree and parents.
func CreateCommit(w object.ObjectWriter, tree object.Hash, parents []object.Hash, author, committer object.Ident, message string) (object.Hash, error) {
	c := &object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   message,
	}
	h, err := w.Write(object.TypeCommit, object.MarshalCommit(c))
	if err != nil {
		return "", fmt.Errorf("write commit: %w", err)
	}
	return h, nil
}

// CommitIndex records the saved index as a new commit on the current
// branch.
//
//  1. Build the tree from the index.
//  2. Use the branch tip, if any, as the parent.
//  3. Write the commit.
//  4. Move the branch from the old tip to the new commit with
//     compare-and-set, so a concurrent commit yields ErrStaleRef.
func (r *Repo) CommitIndex(message string, author, committer object.Ident) (object.Hash, error) {
	ix, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if ix.Len() == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}

	tree, err := BuildTree(r.Store, ix)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	detached := !strings.HasPrefix(head, "refs/")

	var parent object.Hash
	if detached {
		parent = object.Hash(head)
	} else if tip, err := r.ReadRef(head); err == nil {
		parent = tip
	} else if !isNotFound(err) {
		return "", fmt.Errorf("commit: %w", err)
	}

	var parents []object.Hash
	if !parent.IsZero() {
		parents = append(parents, parent)
	}
	h, err := CreateCommit(r.Store, tree, parents, author, committer, message)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if detached {
		err = r.SetHeadDetached(h)
	} else {
		err = r.UpdateRef(head, parent, h)
	}
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return h, nil
}

// LogEntry is one commit in a history listing.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log walks first parents from start, returning at most limit commits
// newest first. A non-positive limit means no limit.
func (r *Repo) Log(start object.Hash, limit int) ([]LogEntry, error) {
	var out []LogEntry
	current := start
	for !current.IsZero() && (limit <= 0 || len(out) < limit) {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		out = append(out, LogEntry{Hash: current, Commit: c})
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return out, nil
}
