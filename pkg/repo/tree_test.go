package repo

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/gitcore/pkg/object"
)

func sampleIndex(t *testing.T, s *object.Store) *Index {
	t.Helper()
	ix := NewIndex()
	for p, content := range map[string]string{
		"README.md":         "# readme\n",
		"cmd/tool/main.go":  "package main\n",
		"pkg/a/a.go":        "package a\n",
		"pkg/a/a_test.go":   "package a\n",
		"pkg/b.go":          "package pkg\n",
		"pkg/a-b/shared.go": "package ab\n",
	} {
		h, err := s.WriteBlob(&object.Blob{Data: []byte(content)})
		if err != nil {
			t.Fatal(err)
		}
		ix.Set(p, h)
	}
	return ix
}

func TestBuildTree_RoundTrip(t *testing.T) {
	s := object.NewStore(t.TempDir())
	ix := sampleIndex(t, s)

	root, err := BuildTree(s, ix)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	back, err := IndexFromTree(s, root)
	if err != nil {
		t.Fatalf("IndexFromTree: %v", err)
	}
	if diff := cmp.Diff(ix.Paths(), back.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if !ix.Equal(back) {
		t.Fatal("IndexFromTree(BuildTree(ix)) != ix")
	}
}

func TestBuildTree_Deterministic(t *testing.T) {
	s1 := object.NewStore(t.TempDir())
	s2 := object.NewStore(t.TempDir())

	h1, err := BuildTree(s1, sampleIndex(t, s1))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := BuildTree(s2, sampleIndex(t, s2))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("tree ids differ: %s vs %s", h1, h2)
	}
}

func TestBuildTree_NestedLayout(t *testing.T) {
	s := object.NewStore(t.TempDir())
	root, err := BuildTree(s, sampleIndex(t, s))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := s.ReadTree(root)
	if err != nil {
		t.Fatal(err)
	}
	var names, modes []string
	for _, e := range tr.Entries {
		names = append(names, e.Name)
		modes = append(modes, e.Mode)
	}
	if diff := cmp.Diff([]string{"README.md", "cmd", "pkg"}, names); diff != "" {
		t.Fatalf("root names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"100644", "40000", "40000"}, modes); diff != "" {
		t.Fatalf("root modes (-want +got):\n%s", diff)
	}

	e, err := LookupPath(s, root, "pkg/a-b/shared.go")
	if err != nil {
		t.Fatalf("LookupPath: %v", err)
	}
	if want := object.HashObject(object.TypeBlob, []byte("package ab\n")); e.Hash != want {
		t.Fatalf("LookupPath hash = %s, want %s", e.Hash, want)
	}
	if _, err := LookupPath(s, root, "pkg/missing"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("LookupPath(missing) = %v, want ErrNotFound", err)
	}
}

func TestBuildTree_FileDirectoryClash(t *testing.T) {
	s := object.NewStore(t.TempDir())
	ix := NewIndex()
	ix.Set("a", fakeHash(1))
	ix.Set("a/b", fakeHash(2))
	if _, err := BuildTree(s, ix); err == nil {
		t.Fatal("BuildTree accepted a path that is both a file and a directory")
	}
}

func TestBuildTree_Empty(t *testing.T) {
	s := object.NewStore(t.TempDir())
	h, err := BuildTree(s, NewIndex())
	if err != nil {
		t.Fatal(err)
	}
	if h != "4b825dc642cb6eb9a060e54bf8d69288fbee4904" {
		t.Fatalf("empty tree = %s", h)
	}
}

func TestMaterialize(t *testing.T) {
	s := object.NewStore(t.TempDir())
	root, err := BuildTree(s, sampleIndex(t, s))
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	writeFile(t, dir, "pkg/b.go", "stale contents")
	if err := Materialize(s, root, dir); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got := readFile(t, dir, "pkg/b.go"); got != "package pkg\n" {
		t.Fatalf("pkg/b.go = %q, want overwritten", got)
	}
	if got := readFile(t, dir, "cmd/tool/main.go"); got != "package main\n" {
		t.Fatalf("cmd/tool/main.go = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "pkg", "a", "a_test.go")); err != nil {
		t.Fatal(err)
	}
}

// writeRawTree stores a tree without going through MarshalTree, so names
// the encoder refuses can still reach the store the way a peer's pack would
// deliver them.
func writeRawTree(t *testing.T, s *object.Store, entries ...object.TreeEntry) object.Hash {
	t.Helper()
	var data []byte
	for _, e := range entries {
		raw, err := hex.DecodeString(string(e.Hash))
		if err != nil {
			t.Fatalf("decode %s: %v", e.Hash, err)
		}
		data = append(data, e.Mode+" "+e.Name+"\x00"...)
		data = append(data, raw...)
	}
	h, err := s.Write(object.TypeTree, data)
	if err != nil {
		t.Fatalf("write tree: %v", err)
	}
	return h
}

func TestTreeWithMetadataDirIsRefused(t *testing.T) {
	r, dir := initRepo(t)
	commitFiles(t, r, map[string]string{"a.txt": "a\n"}, "first")
	headBefore := readFile(t, dir, ".git/HEAD")

	for _, name := range []string{".git", ".GIT", ".Git"} {
		blob, err := r.Store.WriteBlob(&object.Blob{Data: []byte("ref: refs/heads/pwned\n")})
		if err != nil {
			t.Fatal(err)
		}
		meta := writeRawTree(t, r.Store, object.TreeEntry{Mode: object.TreeModeFile, Name: "HEAD", Hash: blob})
		root := writeRawTree(t, r.Store, object.TreeEntry{Mode: object.TreeModeDir, Name: name, Hash: meta})

		if err := Materialize(r.Store, root, dir); err == nil {
			t.Fatalf("Materialize accepted a tree containing %s/HEAD", name)
		}
		if _, err := IndexFromTree(r.Store, root); err == nil {
			t.Fatalf("IndexFromTree accepted a tree containing %s/HEAD", name)
		}

		c, err := CreateCommit(r.Store, root, nil, testIdent, testIdent, "evil\n")
		if err != nil {
			t.Fatal(err)
		}
		if err := r.SetRef("refs/heads/evil", c); err != nil {
			t.Fatal(err)
		}
		if err := r.Checkout("evil"); err == nil {
			t.Fatalf("Checkout accepted a tree containing %s/HEAD", name)
		}
		if got := readFile(t, dir, ".git/HEAD"); got != headBefore {
			t.Fatalf(".git/HEAD = %q, want %q", got, headBefore)
		}
	}
}

func TestIndexFromTreeRefusesLineBreaks(t *testing.T) {
	s := object.NewStore(t.TempDir())
	blob, err := s.WriteBlob(&object.Blob{Data: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a\nb", "a\rb"} {
		data, err := object.MarshalTree(&object.TreeObj{Entries: []object.TreeEntry{
			{Mode: object.TreeModeFile, Name: name, Hash: blob},
		}})
		if err != nil {
			t.Fatalf("MarshalTree(%q): %v", name, err)
		}
		root, err := s.Write(object.TypeTree, data)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := IndexFromTree(s, root); err == nil {
			t.Fatalf("IndexFromTree accepted entry %q", name)
		}
		if err := Materialize(s, root, t.TempDir()); err == nil {
			t.Fatalf("Materialize accepted entry %q", name)
		}
	}
}
