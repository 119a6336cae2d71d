package repo

import (
	"path/filepath"

	"github.com/odvcencio/gitcore/pkg/object"
)

const (
	// MetaDir is the name of the metadata directory inside a working tree.
	MetaDir = ".git"

	// DefaultBranchEnv names the environment variable consulted by Init when
	// no default branch is given.
	DefaultBranchEnv = "GITCORE_DEFAULT_BRANCH"

	fallbackBranch = "main"
)

// Repo represents an opened repository.
type Repo struct {
	RootDir string        // working directory root; empty for bare repositories
	GitDir  string        // metadata directory
	Bare    bool          // no working tree
	Store   *object.Store // content-addressed object store
}

func (r *Repo) gitPath(elem ...string) string {
	return filepath.Join(append([]string{r.GitDir}, elem...)...)
}
