package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/gitcore/pkg/object"
)

// S5: ignore file lists build/.
func TestAddPath_IgnoreScenario(t *testing.T) {
	r, dir := initRepo(t)
	writeFile(t, dir, IgnoreFile, "build/\n")
	writeFile(t, dir, "build/out.bin", "\x00\x01")
	writeFile(t, dir, "src/main", "package main\n")

	ix := NewIndex()
	if err := r.AddPath(ix, filepath.Join(dir, "build", "out.bin")); !errors.Is(err, ErrIgnored) {
		t.Fatalf("AddPath(build/out.bin) = %v, want ErrIgnored", err)
	}
	if err := r.AddPath(ix, filepath.Join(dir, "src", "main")); err != nil {
		t.Fatalf("AddPath(src/main): %v", err)
	}

	file := filepath.Join(t.TempDir(), "index")
	if err := ix.Save(file); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadIndex(file)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if diff := cmp.Diff([]string{"src/main"}, loaded.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	e, _ := loaded.Get("src/main")
	if want := object.HashObject(object.TypeBlob, []byte("package main\n")); e.Hash != want {
		t.Fatalf("src/main = %s, want %s", e.Hash, want)
	}
}

func TestAddPath_DirectorySkipsIgnoredChildren(t *testing.T) {
	r, dir := initRepo(t)
	writeFile(t, dir, IgnoreFile, "pkg/gen\n")
	writeFile(t, dir, "pkg/a.go", "a")
	writeFile(t, dir, "pkg/sub/b.go", "b")
	writeFile(t, dir, "pkg/gen/c.go", "c")

	ix := NewIndex()
	if err := r.AddPath(ix, dir); err != nil {
		t.Fatalf("AddPath(root): %v", err)
	}
	want := []string{IgnoreFile, "pkg/a.go", "pkg/sub/b.go"}
	if diff := cmp.Diff(want, ix.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	for _, p := range ix.Paths() {
		e, _ := ix.Get(p)
		if !r.Store.Has(e.Hash) {
			t.Errorf("blob for %s not stored", p)
		}
	}
}

func TestAddPath_MissingPathRemovesMapping(t *testing.T) {
	r, dir := initRepo(t)
	file := writeFile(t, dir, "docs/readme.md", "hi")
	writeFile(t, dir, "docs/guide.md", "guide")

	ix := NewIndex()
	if err := r.AddPath(ix, filepath.Join(dir, "docs")); err != nil {
		t.Fatalf("AddPath: %v", err)
	}
	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPath(ix, file); err != nil {
		t.Fatalf("AddPath(deleted file): %v", err)
	}
	if ix.Contains("docs/readme.md") || !ix.Contains("docs/guide.md") {
		t.Fatalf("paths after removal = %v", ix.Paths())
	}

	if err := os.RemoveAll(filepath.Join(dir, "docs")); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPath(ix, filepath.Join(dir, "docs")); err != nil {
		t.Fatalf("AddPath(deleted dir): %v", err)
	}
	if ix.Len() != 0 {
		t.Fatalf("paths after dir removal = %v", ix.Paths())
	}

	if err := r.AddPath(ix, filepath.Join(dir, "never")); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("AddPath(never staged) = %v, want ErrNotFound", err)
	}
}

func TestAddPath_OutsideRepository(t *testing.T) {
	r, _ := initRepo(t)
	outside := writeFile(t, t.TempDir(), "x.txt", "x")
	if err := r.AddPath(NewIndex(), outside); err == nil {
		t.Fatal("AddPath outside the repository succeeded")
	}
}

func TestIndex_RemoveMissing(t *testing.T) {
	ix := NewIndex()
	ix.Set("a", fakeHash(1))
	if err := ix.Remove("a"); err != nil {
		t.Fatalf("Remove(a): %v", err)
	}
	if err := ix.Remove("a"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("second Remove(a) = %v, want ErrNotFound", err)
	}
}

func TestParseIndex(t *testing.T) {
	h := fakeHash(1)
	ix, err := ParseIndex([]byte(string(h) + " dir/with space.txt\n\n" + string(fakeHash(2)) + " a\n"))
	if err != nil {
		t.Fatalf("ParseIndex: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "dir/with space.txt"}, ix.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if e, _ := ix.Get("dir/with space.txt"); e.Hash != h || e.Mode != object.TreeModeFile {
		t.Fatalf("entry = %+v", e)
	}

	for _, bad := range []string{
		"nothex a\n",
		string(h) + "\n",
		string(h) + " ../escape\n",
		string(h) + " /abs\n",
	} {
		if _, err := ParseIndex([]byte(bad)); !errors.Is(err, object.ErrCorrupt) {
			t.Errorf("ParseIndex(%q) = %v, want ErrCorrupt", bad, err)
		}
	}
}

func TestRepoAddRemove(t *testing.T) {
	r, dir := initRepo(t)
	a := writeFile(t, dir, "a.txt", "a")
	b := writeFile(t, dir, "b.txt", "b")
	if err := r.Add([]string{a, b}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Remove([]string{a}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ix, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if diff := cmp.Diff([]string{"b.txt"}, ix.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(a); err != nil {
		t.Fatalf("Remove deleted the working file: %v", err)
	}
}

func TestAdd_RefusesLineBreakInName(t *testing.T) {
	r, dir := initRepo(t)
	writeFile(t, dir, "ok.txt", "ok\n")
	if err := r.Add([]string{filepath.Join(dir, "ok.txt")}); err != nil {
		t.Fatalf("Add(ok.txt): %v", err)
	}

	for _, name := range []string{"a\nb", "a\rb"} {
		p := writeFile(t, dir, name, "x\n")
		if err := r.Add([]string{p}); err == nil {
			t.Fatalf("Add(%q) succeeded", name)
		}
		ix, err := r.ReadIndex()
		if err != nil {
			t.Fatalf("ReadIndex after rejected add of %q: %v", name, err)
		}
		if diff := cmp.Diff([]string{"ok.txt"}, ix.Paths()); diff != "" {
			t.Fatalf("index paths mismatch (-want +got):\n%s", diff)
		}
		if err := os.Remove(p); err != nil {
			t.Fatal(err)
		}
	}
}
