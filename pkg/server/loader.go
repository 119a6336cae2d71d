package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcore/pkg/repo"
)

// ErrRepositoryNotFound is returned by a Loader for unknown names.
var ErrRepositoryNotFound = errors.New("repository not found")

// Loader resolves the repository named in a client request.
type Loader interface {
	Load(name string) (*repo.Repo, error)
}

// DirLoader serves repositories stored below Root. A name may refer to a
// bare repository directory or to a working tree containing .git. Names
// that would leave Root are rejected.
type DirLoader struct {
	Root string
}

// Load opens Root/name.
func (l DirLoader) Load(name string) (*repo.Repo, error) {
	clean, err := cleanRepoName(name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(l.Root, filepath.FromSlash(clean))
	if info, err := os.Stat(filepath.Join(dir, repo.MetaDir)); err == nil && info.IsDir() {
		dir = filepath.Join(dir, repo.MetaDir)
	}
	r, err := repo.OpenGitDir(dir)
	if err != nil {
		if errors.Is(err, repo.ErrNotRepository) {
			return nil, fmt.Errorf("%s: %w", clean, ErrRepositoryNotFound)
		}
		return nil, err
	}
	return r, nil
}

func cleanRepoName(name string) (string, error) {
	name = strings.Trim(name, "/")
	if name == "" {
		return "", fmt.Errorf("empty repository name: %w", ErrRepositoryNotFound)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." || strings.ContainsRune(part, '\\') {
			return "", fmt.Errorf("invalid repository name %q: %w", name, ErrRepositoryNotFound)
		}
	}
	return name, nil
}

// MapLoader serves a fixed set of repositories.
type MapLoader map[string]*repo.Repo

// Load returns the repository registered under name.
func (l MapLoader) Load(name string) (*repo.Repo, error) {
	r, ok := l[strings.Trim(name, "/")]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrRepositoryNotFound)
	}
	return r, nil
}
