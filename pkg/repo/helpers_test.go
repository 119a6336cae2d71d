package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/gitcore/pkg/object"
)

var testIdent = object.Ident{
	Name:     "A U Thor",
	Email:    "author@example.com",
	When:     1700000000,
	Timezone: "+0000",
}

func initRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := Init(dir, InitOptions{DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("Init(%q): %v", dir, err)
	}
	return r, dir
}

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// commitFiles writes files into the working tree, stages them and commits.
func commitFiles(t *testing.T, r *Repo, files map[string]string, message string) object.Hash {
	t.Helper()
	var paths []string
	for rel, content := range files {
		paths = append(paths, writeFile(t, r.RootDir, rel, content))
	}
	if err := r.Add(paths); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.CommitIndex(message, testIdent, testIdent)
	if err != nil {
		t.Fatalf("CommitIndex(%q): %v", message, err)
	}
	return h
}

func fakeHash(i int) object.Hash {
	return object.HashObject(object.TypeBlob, []byte{byte(i >> 8), byte(i)})
}

func mustTree(t *testing.T, r *Repo, commit object.Hash) object.Hash {
	t.Helper()
	c, err := r.Store.ReadCommit(commit)
	if err != nil {
		t.Fatalf("ReadCommit(%s): %v", commit, err)
	}
	return c.TreeHash
}
