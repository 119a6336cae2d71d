package repo

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/gitcore/pkg/object"
)

func TestUpdateRef_ConcurrentSingleWinner(t *testing.T) {
	r, _ := initRepo(t)

	base := fakeHash(0)
	if err := r.UpdateRef("refs/heads/main", object.ZeroHash, base); err != nil {
		t.Fatalf("UpdateRef(base): %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	successCh := make(chan object.Hash, workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := fakeHash(i + 1)
			if err := r.UpdateRef("refs/heads/main", base, next); err != nil {
				errCh <- err
				return
			}
			successCh <- next
		}()
	}
	wg.Wait()
	close(successCh)
	close(errCh)

	var winner object.Hash
	successes := 0
	for h := range successCh {
		successes++
		winner = h
	}
	if successes != 1 {
		t.Fatalf("successful updates = %d, want 1", successes)
	}
	stale := 0
	for err := range errCh {
		if !errors.Is(err, ErrStaleRef) {
			t.Fatalf("unexpected error: %v", err)
		}
		stale++
	}
	if stale != workers-1 {
		t.Fatalf("stale updates = %d, want %d", stale, workers-1)
	}

	got, err := r.ResolveRef("main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if got != winner {
		t.Fatalf("main = %s, want winner %s", got, winner)
	}
}

func TestUpdateRef_StaleLeavesRefUnchanged(t *testing.T) {
	r, _ := initRepo(t)
	h0, h1, h2 := fakeHash(0), fakeHash(1), fakeHash(2)

	if err := r.UpdateRef("refs/heads/main", "", h1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.UpdateRef("refs/heads/main", h0, h2); !errors.Is(err, ErrStaleRef) {
		t.Fatalf("UpdateRef with wrong old = %v, want ErrStaleRef", err)
	}
	if err := r.UpdateRef("refs/heads/main", "", h2); !errors.Is(err, ErrStaleRef) {
		t.Fatalf("create over existing = %v, want ErrStaleRef", err)
	}
	got, err := r.ReadRef("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadRef: %v", err)
	}
	if got != h1 {
		t.Fatalf("main = %s, want %s", got, h1)
	}
}

func TestUpdateRef_FailedCreateLeavesNoFile(t *testing.T) {
	r, _ := initRepo(t)

	err := r.UpdateRef("refs/heads/topic", fakeHash(1), fakeHash(2))
	if !errors.Is(err, ErrStaleRef) {
		t.Fatalf("UpdateRef = %v, want ErrStaleRef", err)
	}
	if _, err := os.Stat(filepath.Join(r.GitDir, "refs", "heads", "topic")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ref file after failed create: %v", err)
	}
	if _, err := r.ReadRef("refs/heads/topic"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("ReadRef = %v, want ErrNotFound", err)
	}
}

func TestUpdateRef_ZeroNewDeletes(t *testing.T) {
	r, _ := initRepo(t)
	h := fakeHash(1)
	if err := r.UpdateRef("refs/tags/v1", "", h); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.UpdateRef("refs/tags/v1", h, object.ZeroHash); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.ReadRef("refs/tags/v1"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("ReadRef after delete = %v, want ErrNotFound", err)
	}
}

func TestCheckRefName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"refs/heads/main", true},
		{"refs/remotes/origin/feature/x", true},
		{"heads/main", false},
		{"refs/heads/", false},
		{"refs/heads/a..b", false},
		{"refs/heads/.hidden", false},
		{"refs/heads/main.lock", false},
		{"refs/heads/has space", false},
		{"refs//heads", false},
	}
	for _, tt := range tests {
		err := CheckRefName(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("CheckRefName(%q) = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func TestListRefs_SkipsEmptyAndLockFiles(t *testing.T) {
	r, _ := initRepo(t)
	if err := r.SetRef("refs/heads/main", fakeHash(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRef("refs/remotes/origin/main", fakeHash(2)); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRef("refs/tags/v1", fakeHash(3)); err != nil {
		t.Fatal(err)
	}
	for _, junk := range []string{"refs/heads/empty", "refs/heads/main.lock"} {
		if err := os.WriteFile(filepath.Join(r.GitDir, filepath.FromSlash(junk)), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	refs, err := r.ListRefs()
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	want := []Ref{
		{Name: "refs/heads/main", Hash: fakeHash(1)},
		{Name: "refs/remotes/origin/main", Hash: fakeHash(2)},
		{Name: "refs/tags/v1", Hash: fakeHash(3)},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Fatalf("ListRefs mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRef_Order(t *testing.T) {
	r, _ := initRepo(t)
	if err := r.SetRef("refs/tags/v1", fakeHash(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRef("refs/remotes/origin/main", fakeHash(2)); err != nil {
		t.Fatal(err)
	}

	if got, err := r.ResolveRef("v1"); err != nil || got != fakeHash(1) {
		t.Fatalf("ResolveRef(v1) = %s, %v", got, err)
	}
	if got, err := r.ResolveRef("origin/main"); err != nil || got != fakeHash(2) {
		t.Fatalf("ResolveRef(origin/main) = %s, %v", got, err)
	}
	if got, err := r.ResolveRef(string(fakeHash(9))); err != nil || got != fakeHash(9) {
		t.Fatalf("ResolveRef(hex) = %s, %v", got, err)
	}
	if _, err := r.ResolveRef("HEAD"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("ResolveRef(HEAD) on unborn branch = %v, want ErrNotFound", err)
	}
	if _, err := r.ResolveRef("nope"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("ResolveRef(nope) = %v, want ErrNotFound", err)
	}
}

func TestSetHead(t *testing.T) {
	r, _ := initRepo(t)
	if err := r.SetHead("topic"); err != nil {
		t.Fatalf("SetHead: %v", err)
	}
	head, err := r.Head()
	if err != nil || head != "refs/heads/topic" {
		t.Fatalf("Head = %q, %v", head, err)
	}

	if err := r.SetHeadDetached(fakeHash(4)); err != nil {
		t.Fatalf("SetHeadDetached: %v", err)
	}
	if branch, err := r.CurrentBranch(); err != nil || branch != "" {
		t.Fatalf("CurrentBranch on detached HEAD = %q, %v", branch, err)
	}
	if got, err := r.ResolveRef("HEAD"); err != nil || got != fakeHash(4) {
		t.Fatalf("ResolveRef(HEAD) = %s, %v", got, err)
	}
}

func TestApplyRefUpdates_Atomic(t *testing.T) {
	r, _ := initRepo(t)
	// Point HEAD elsewhere so main is not the checked-out branch.
	if err := r.SetHead("elsewhere"); err != nil {
		t.Fatal(err)
	}
	h1, err := r.Store.WriteBlob(&object.Blob{Data: []byte("one")})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := r.Store.WriteBlob(&object.Blob{Data: []byte("two")})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetRef("refs/heads/main", h1); err != nil {
		t.Fatal(err)
	}

	results, err := r.ApplyRefUpdates([]RefUpdate{
		{Name: "refs/heads/topic", Old: "", New: h2},
		{Name: "refs/heads/main", Old: h2, New: h1},
	})
	if err != nil {
		t.Fatalf("ApplyRefUpdates: %v", err)
	}
	if !errors.Is(results[0], ErrAtomicRejected) {
		t.Errorf("results[0] = %v, want ErrAtomicRejected", results[0])
	}
	if !errors.Is(results[1], ErrStaleRef) {
		t.Errorf("results[1] = %v, want ErrStaleRef", results[1])
	}
	if _, err := r.ReadRef("refs/heads/topic"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("topic was created despite a failed batch: %v", err)
	}

	results, err = r.ApplyRefUpdates([]RefUpdate{
		{Name: "refs/heads/topic", Old: "", New: h2},
		{Name: "refs/heads/main", Old: h1, New: object.ZeroHash},
	})
	if err != nil {
		t.Fatalf("ApplyRefUpdates: %v", err)
	}
	for i, res := range results {
		if res != nil {
			t.Fatalf("results[%d] = %v", i, res)
		}
	}
	if got, _ := r.ReadRef("refs/heads/topic"); got != h2 {
		t.Fatalf("topic = %s, want %s", got, h2)
	}
	if _, err := r.ReadRef("refs/heads/main"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("main after delete: %v", err)
	}
}

func TestApplyRefUpdates_BusyBranch(t *testing.T) {
	r, _ := initRepo(t)
	tip := commitFiles(t, r, map[string]string{"a.txt": "a\n"}, "first")

	results, err := r.ApplyRefUpdates([]RefUpdate{{Name: "refs/heads/main", Old: tip, New: tip}})
	if err != nil {
		t.Fatalf("ApplyRefUpdates: %v", err)
	}
	if !errors.Is(results[0], ErrBusyBranch) {
		t.Fatalf("results[0] = %v, want ErrBusyBranch", results[0])
	}
}

func TestApplyRefUpdates_MissingObject(t *testing.T) {
	r, _ := initRepo(t)
	results, err := r.ApplyRefUpdates([]RefUpdate{{Name: "refs/heads/topic", New: fakeHash(7)}})
	if err != nil {
		t.Fatalf("ApplyRefUpdates: %v", err)
	}
	if !errors.Is(results[0], object.ErrNotFound) {
		t.Fatalf("results[0] = %v, want ErrNotFound", results[0])
	}
}
