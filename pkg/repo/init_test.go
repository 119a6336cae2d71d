package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestInit_CreatesLayout(t *testing.T) {
	r, dir := initRepo(t)

	if r.RootDir != dir {
		t.Errorf("RootDir = %q, want %q", r.RootDir, dir)
	}
	if want := filepath.Join(dir, ".git"); r.GitDir != want {
		t.Errorf("GitDir = %q, want %q", r.GitDir, want)
	}
	for _, sub := range []string{"objects", "refs/heads", "refs/tags"} {
		info, err := os.Stat(filepath.Join(r.GitDir, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("%s missing: %v", sub, err)
		}
	}
	head, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(head) != "ref: refs/heads/main\n" {
		t.Errorf("HEAD = %q", head)
	}
}

func TestInit_FailsWhenRepositoryExists(t *testing.T) {
	_, dir := initRepo(t)
	if _, err := Init(dir, InitOptions{}); err == nil {
		t.Fatal("second Init succeeded, want error")
	}
}

func TestInit_DefaultBranchFromEnvironment(t *testing.T) {
	t.Setenv(DefaultBranchEnv, "trunk")
	r, err := Init(t.TempDir(), InitOptions{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "trunk" {
		t.Fatalf("CurrentBranch = %q, want trunk", branch)
	}
}

func TestInit_FallbackBranch(t *testing.T) {
	t.Setenv(DefaultBranchEnv, "")
	r, err := Init(t.TempDir(), InitOptions{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if branch, _ := r.CurrentBranch(); branch != "main" {
		t.Fatalf("CurrentBranch = %q, want main", branch)
	}
}

func TestInit_Bare(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project.git")
	r, err := Init(dir, InitOptions{Bare: true, DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if r.GitDir != dir || r.RootDir != "" || !r.Bare {
		t.Fatalf("bare repo = %+v", r)
	}

	opened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !opened.Bare || opened.GitDir != dir {
		t.Fatalf("opened = %+v, want bare at %s", opened, dir)
	}
	if err := opened.Checkout("main"); !errors.Is(err, ErrBare) {
		t.Fatalf("Checkout on bare = %v, want ErrBare", err)
	}
}

func TestOpen_SearchesUpward(t *testing.T) {
	r, dir := initRepo(t)
	nested := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	opened, err := Open(nested)
	if err != nil {
		t.Fatalf("Open(%q): %v", nested, err)
	}
	if opened.RootDir != r.RootDir || opened.GitDir != r.GitDir || opened.Bare {
		t.Fatalf("opened = %+v, want %+v", opened, r)
	}
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, ErrNotRepository) {
		t.Fatalf("Open = %v, want ErrNotRepository", err)
	}
}
