package repo

import (
	"errors"
)

var (
	// ErrStaleRef reports a ref update whose claimed old id does not match
	// the ref's current value. The ref is left unchanged.
	ErrStaleRef = errors.New("stale ref")

	// ErrBusyBranch reports an update to the checked-out branch of a
	// repository that has a working tree.
	ErrBusyBranch = errors.New("branch is currently checked out")

	// ErrIgnored reports a path excluded by the ignore file.
	ErrIgnored = errors.New("path is ignored")

	// ErrNotRepository reports that no repository was found.
	ErrNotRepository = errors.New("not a repository")

	// ErrBare reports a working-tree operation on a bare repository.
	ErrBare = errors.New("operation requires a working tree")

	// ErrDirty reports uncommitted changes that an operation would discard.
	ErrDirty = errors.New("working tree has uncommitted changes")
)
