package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// InitOptions controls repository creation.
type InitOptions struct {
	// Bare creates a repository without a working tree; the given path
	// becomes the metadata directory itself.
	Bare bool
	// DefaultBranch names the branch HEAD points at. When empty the
	// GITCORE_DEFAULT_BRANCH environment variable is used, then "main".
	DefaultBranch string
}

// Init creates a new repository at path: HEAD, objects/, refs/heads/,
// refs/tags/ and config.toml. It fails if a repository already exists there.
func Init(path string, opts InitOptions) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	gitDir := abs
	rootDir := ""
	if !opts.Bare {
		rootDir = abs
		gitDir = filepath.Join(abs, MetaDir)
	}

	if _, err := os.Stat(filepath.Join(gitDir, "HEAD")); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", gitDir)
	}

	branch := defaultBranch(opts.DefaultBranch)
	if err := CheckRefName("refs/heads/" + branch); err != nil {
		return nil, fmt.Errorf("init: default branch: %w", err)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(gitDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/"+branch+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	r := &Repo{
		RootDir: rootDir,
		GitDir:  gitDir,
		Bare:    opts.Bare,
		Store:   object.NewStore(gitDir),
	}
	cfg := &Config{Core: CoreConfig{Bare: opts.Bare, DefaultBranch: branch}}
	if err := r.WriteConfig(cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return r, nil
}

func defaultBranch(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if env := strings.TrimSpace(os.Getenv(DefaultBranchEnv)); env != "" {
		return env
	}
	return fallbackBranch
}

// Open searches upward from path for a .git directory and opens the
// repository. A path that is itself a bare repository opens as bare.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		gitDir := filepath.Join(cur, MetaDir)
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return OpenGitDir(gitDir)
		}
		if isGitDir(cur) {
			return OpenGitDir(cur)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open %s: %w (or any parent up to /)", abs, ErrNotRepository)
		}
		cur = parent
	}
}

// OpenGitDir opens the repository whose metadata lives in gitDir. The
// repository is bare when its config says so, or when gitDir is not named
// .git and has no config.
func OpenGitDir(gitDir string) (*Repo, error) {
	abs, err := filepath.Abs(gitDir)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}
	if !isGitDir(abs) {
		return nil, fmt.Errorf("open %s: %w", abs, ErrNotRepository)
	}

	r := &Repo{GitDir: abs, Store: object.NewStore(abs)}
	cfg, err := r.readConfigFile()
	switch {
	case err == nil:
		r.Bare = cfg.Core.Bare
	case errors.Is(err, fs.ErrNotExist):
		r.Bare = filepath.Base(abs) != MetaDir
	default:
		return nil, fmt.Errorf("open: %w", err)
	}
	if !r.Bare {
		r.RootDir = filepath.Dir(abs)
	}
	return r, nil
}

// isGitDir reports whether dir has the HEAD file and objects/ and refs/
// directories of a repository.
func isGitDir(dir string) bool {
	if info, err := os.Stat(filepath.Join(dir, "HEAD")); err != nil || info.IsDir() {
		return false
	}
	for _, sub := range []string{"objects", "refs"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}
