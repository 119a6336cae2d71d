package server

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/remote"
	"github.com/odvcencio/gitcore/pkg/repo"
)

var testIdent = object.Ident{
	Name:     "A U Thor",
	Email:    "author@example.com",
	When:     1700000000,
	Timezone: "+0000",
}

// startServer runs a server on a loopback port. The returned stop function
// shuts it down and waits for every connection to finish; it also runs on
// cleanup.
func startServer(t *testing.T, loader Loader) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(loader, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	stopped := false
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, ErrServerClosed) {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(10 * time.Second):
			srv.Close()
			t.Errorf("server did not stop")
		}
	}
	t.Cleanup(stop)
	return ln.Addr().String(), stop
}

func newClient(t *testing.T, addr, name string) *remote.Client {
	t.Helper()
	c, err := remote.NewClient("git://"+addr+"/"+name, remote.ClientOptions{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func initRepo(t *testing.T, bare bool) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir(), repo.InitOptions{Bare: bare, DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

// writeCommit stores files as a tree and a commit object without touching
// refs or the working tree.
func writeCommit(t *testing.T, r *repo.Repo, files map[string]string, parents []object.Hash, message string) object.Hash {
	t.Helper()
	ix := repo.NewIndex()
	for p, content := range files {
		h, err := r.Store.WriteBlob(&object.Blob{Data: []byte(content)})
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		ix.Set(p, h)
	}
	tree, err := repo.BuildTree(r.Store, ix)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	h, err := repo.CreateCommit(r.Store, tree, parents, testIdent, testIdent, message+"\n")
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	return h
}

// commitFiles writes files into the working tree of r, stages and commits
// them on the current branch.
func commitFiles(t *testing.T, r *repo.Repo, files map[string]string, message string) object.Hash {
	t.Helper()
	var paths []string
	for rel, content := range files {
		p := filepath.Join(r.RootDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
		paths = append(paths, p)
	}
	if err := r.Add(paths); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.CommitIndex(message, testIdent, testIdent)
	if err != nil {
		t.Fatalf("CommitIndex: %v", err)
	}
	return h
}

func mustRef(t *testing.T, r *repo.Repo, name string) object.Hash {
	t.Helper()
	h, err := r.ReadRef(name)
	if err != nil {
		t.Fatalf("ReadRef(%s): %v", name, err)
	}
	return h
}

func storeIDs(t *testing.T, r *repo.Repo) []object.Hash {
	t.Helper()
	ids, err := r.Store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func reachable(t *testing.T, r *repo.Repo, roots ...object.Hash) []object.Hash {
	t.Helper()
	set, err := object.ReachableSet(r.Store, roots)
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	ids := make([]object.Hash, 0, len(set))
	for h := range set {
		ids = append(ids, h)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
