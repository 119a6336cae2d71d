package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/repo"
)

// DefaultRemote is the remote name used by Clone.
const DefaultRemote = "origin"

const (
	headsPrefix   = "refs/heads/"
	tagsPrefix    = "refs/tags/"
	remotesPrefix = "refs/remotes/"
)

// ClientForRemote builds a client for the URL configured under name.
func ClientForRemote(r *repo.Repo, name string, opts ClientOptions) (*Client, error) {
	url, err := r.RemoteURL(name)
	if err != nil {
		return nil, err
	}
	return NewClient(url, opts)
}

// FetchSummary reports what Fetch changed.
type FetchSummary struct {
	Advertisement *Advertisement
	Objects       int
	Deltas        int
	// Updated lists the local refs written: remote-tracking branches and
	// newly created tags.
	Updated []repo.Ref
}

// Fetch downloads the objects behind every advertised branch and tag that
// are missing locally, then points refs/remotes/<remote>/<branch> at the
// advertised ids. Tags are created when absent and never moved.
func Fetch(ctx context.Context, r *repo.Repo, remoteName string, c *Client) (*FetchSummary, error) {
	up, err := c.OpenUpload(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}
	defer up.Close()
	adv := up.Advertisement()

	var wants []object.Hash
	for _, ref := range adv.Refs {
		if !strings.HasPrefix(ref.Name, headsPrefix) && !strings.HasPrefix(ref.Name, tagsPrefix) {
			continue
		}
		if !r.Store.Has(ref.Hash) {
			wants = append(wants, ref.Hash)
		}
	}
	haves, err := localTips(r)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}

	res, err := up.FetchPack(ctx, r.Store, uniqueHashes(wants), haves)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}
	summary := &FetchSummary{Advertisement: adv, Objects: res.Objects, Deltas: res.Deltas}

	for _, ref := range adv.Refs {
		switch {
		case strings.HasPrefix(ref.Name, headsPrefix):
			tracking := trackingRef(remoteName, ref.Name)
			if err := r.SetRef(tracking, ref.Hash); err != nil {
				return summary, fmt.Errorf("fetch %s: %w", remoteName, err)
			}
			summary.Updated = append(summary.Updated, repo.Ref{Name: tracking, Hash: ref.Hash})
		case strings.HasPrefix(ref.Name, tagsPrefix):
			err := r.UpdateRef(ref.Name, object.ZeroHash, ref.Hash)
			if errors.Is(err, repo.ErrStaleRef) {
				continue
			}
			if err != nil {
				return summary, fmt.Errorf("fetch %s: %w", remoteName, err)
			}
			summary.Updated = append(summary.Updated, ref)
		}
	}
	return summary, nil
}

// localTips returns the ids of local refs whose objects are present.
func localTips(r *repo.Repo) ([]object.Hash, error) {
	refs, err := r.ListRefs()
	if err != nil {
		return nil, err
	}
	var tips []object.Hash
	for _, ref := range refs {
		if r.Store.Has(ref.Hash) {
			tips = append(tips, ref.Hash)
		}
	}
	return uniqueHashes(tips), nil
}

func trackingRef(remoteName, branchRef string) string {
	return remotesPrefix + remoteName + "/" + strings.TrimPrefix(branchRef, headsPrefix)
}

// CloneOptions configures Clone.
type CloneOptions struct {
	Bare       bool
	RemoteName string // defaults to "origin"
	Client     ClientOptions
}

// Clone initializes a repository at dir, records remoteURL, fetches
// everything and checks out the remote's HEAD branch. A bare clone copies
// the remote branches to refs/heads directly. Cloning an empty remote
// leaves an empty repository.
func Clone(ctx context.Context, remoteURL, dir string, opts CloneOptions) (*repo.Repo, error) {
	if opts.RemoteName == "" {
		opts.RemoteName = DefaultRemote
	}
	c, err := NewClient(remoteURL, opts.Client)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	r, err := repo.Init(dir, repo.InitOptions{Bare: opts.Bare})
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if err := r.SetRemote(opts.RemoteName, c.Endpoint().String()); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	summary, err := Fetch(ctx, r, opts.RemoteName, c)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	adv := summary.Advertisement

	if opts.Bare {
		for _, ref := range adv.Refs {
			if strings.HasPrefix(ref.Name, headsPrefix) {
				if err := r.SetRef(ref.Name, ref.Hash); err != nil {
					return nil, fmt.Errorf("clone: %w", err)
				}
			}
		}
	}

	branch := adv.HeadBranch()
	if branch == "" {
		return r, nil
	}
	if err := r.SetHead(headsPrefix + branch); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if opts.Bare {
		return r, nil
	}
	tip, ok := adv.Lookup(headsPrefix + branch)
	if !ok {
		return r, nil
	}
	if err := r.FastForward(tip); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return r, nil
}

// Pull fetches from remoteName and fast-forwards the current branch to its
// remote-tracking counterpart.
func Pull(ctx context.Context, r *repo.Repo, remoteName string, c *Client) (object.Hash, error) {
	branch, err := r.CurrentBranch()
	if err != nil {
		return "", fmt.Errorf("pull: %w", err)
	}
	if branch == "" {
		return "", fmt.Errorf("pull: HEAD is detached")
	}
	if _, err := Fetch(ctx, r, remoteName, c); err != nil {
		return "", fmt.Errorf("pull: %w", err)
	}
	tracking := trackingRef(remoteName, headsPrefix+branch)
	target, err := r.ReadRef(tracking)
	if err != nil {
		return "", fmt.Errorf("pull: remote has no branch %q: %w", branch, err)
	}
	if err := r.FastForward(target); err != nil {
		return "", fmt.Errorf("pull: %w", err)
	}
	return target, nil
}

// PushOptions configures Push.
type PushOptions struct {
	// Force skips the local fast-forward check. The server still compares
	// the advertised id, so a concurrent update is never overwritten.
	Force bool
}

// ErrNonFastForward is returned when a pushed id does not descend from the
// remote's current id.
var ErrNonFastForward = errors.New("non-fast-forward")

// Push sends local refs to remoteName. Each refspec is "name" (same name on
// both sides), "src:dst", or ":dst" to delete dst. Short names expand to
// refs/heads/. Refs already up to date are skipped. Successful updates of
// branches are mirrored into the remote-tracking refs.
func Push(ctx context.Context, r *repo.Repo, remoteName string, c *Client, refspecs []string, opts PushOptions) (*Report, error) {
	rs, err := c.OpenReceive(ctx)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", remoteName, err)
	}
	defer rs.Close()
	adv := rs.Advertisement()

	var cmds []Command
	for _, spec := range refspecs {
		cmd, err := planPush(r, adv, spec, opts)
		if err != nil {
			return nil, fmt.Errorf("push %s: %w", remoteName, err)
		}
		if sameID(cmd.Old, cmd.New) {
			continue
		}
		cmds = append(cmds, cmd)
	}

	rep, err := rs.Push(ctx, r.Store, cmds)
	if rep == nil {
		return nil, fmt.Errorf("push %s: %w", remoteName, err)
	}
	for _, st := range rep.Refs {
		if st.Reason != "" || !strings.HasPrefix(st.Name, headsPrefix) {
			continue
		}
		for _, cmd := range cmds {
			if cmd.Name != st.Name {
				continue
			}
			tracking := trackingRef(remoteName, cmd.Name)
			var terr error
			if cmd.IsDelete() {
				terr = r.SetRef(tracking, "")
			} else {
				terr = r.SetRef(tracking, cmd.New)
			}
			if terr != nil {
				return rep, fmt.Errorf("push %s: %w", remoteName, terr)
			}
		}
	}
	if err != nil {
		return rep, fmt.Errorf("push %s: %w", remoteName, err)
	}
	return rep, nil
}

func planPush(r *repo.Repo, adv *Advertisement, spec string, opts PushOptions) (Command, error) {
	src, dst, hasDst := strings.Cut(strings.TrimPrefix(spec, "+"), ":")
	force := opts.Force || strings.HasPrefix(spec, "+")
	if !hasDst {
		dst = src
	}
	dst = expandRef(dst)
	if err := repo.CheckRefName(dst); err != nil {
		return Command{}, err
	}

	cmd := Command{Name: dst}
	if old, ok := adv.Lookup(dst); ok {
		cmd.Old = old
	}
	if src == "" {
		if cmd.Old.IsZero() {
			return Command{}, fmt.Errorf("delete %s: %w", dst, object.ErrNotFound)
		}
		return cmd, nil
	}

	h, err := r.ResolveRef(src)
	if err != nil {
		return Command{}, err
	}
	cmd.New = h
	if force || cmd.Old.IsZero() || sameID(cmd.Old, cmd.New) {
		return cmd, nil
	}
	if !r.Store.Has(cmd.Old) {
		return Command{}, fmt.Errorf("%s: %w: remote has %s, fetch first", dst, ErrNonFastForward, cmd.Old.Short())
	}
	ok, err := object.IsAncestor(r.Store, cmd.Old, cmd.New)
	if err != nil {
		return Command{}, err
	}
	if !ok {
		return Command{}, fmt.Errorf("%s: %w", dst, ErrNonFastForward)
	}
	return cmd, nil
}

func expandRef(name string) string {
	if name == "HEAD" || strings.HasPrefix(name, "refs/") {
		return name
	}
	return headsPrefix + name
}

func sameID(a, b object.Hash) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	return a == b
}

func uniqueHashes(in []object.Hash) []object.Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[object.Hash]struct{}, len(in))
	out := make([]object.Hash, 0, len(in))
	for _, h := range in {
		if h.IsZero() {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
