package server

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/pktline"
	"github.com/odvcencio/gitcore/pkg/remote"
	"github.com/odvcencio/gitcore/pkg/repo"
)

// advertisedRefs lists the refs of r. With head, HEAD comes first when it
// resolves, and the returned branch is the ref HEAD points at.
func advertisedRefs(r *repo.Repo, head bool) ([]repo.Ref, string, error) {
	refs, err := r.ListRefs()
	if err != nil {
		return nil, "", err
	}
	if !head {
		return refs, "", nil
	}
	target, err := r.Head()
	if err != nil {
		return nil, "", err
	}
	id, err := r.ResolveRef("HEAD")
	if err != nil {
		// Unborn branch: nothing to advertise for HEAD.
		return refs, "", nil
	}
	branch := ""
	if strings.HasPrefix(target, "refs/heads/") {
		branch = target
	}
	return append([]repo.Ref{{Name: "HEAD", Hash: id}}, refs...), branch, nil
}

// uploadPack serves a fetch: advertise, read wants and haves, answer with
// ACK or NAK, then stream the pack of everything the client lacks.
func (s *Server) uploadPack(ctx context.Context, c *conn) error {
	refs, headBranch, err := advertisedRefs(c.repo, true)
	if err != nil {
		return err
	}
	adv := &remote.Advertisement{Refs: refs, Caps: remote.UploadPackCapabilities()}
	if headBranch != "" {
		adv.Caps.Add(remote.CapSymref + "=HEAD:" + headBranch)
	}
	if err := remote.WriteAdvertisement(c.pw, adv); err != nil {
		return err
	}

	req, err := remote.ReadUploadRequest(c.pr)
	if err != nil {
		return err
	}
	if len(req.Wants) == 0 {
		return nil
	}
	start := time.Now()

	store := c.repo.Store
	for _, want := range req.Wants {
		if !store.Has(want) {
			return fmt.Errorf("want %s: %w", want, object.ErrNotFound)
		}
	}
	var common []object.Hash
	for _, have := range req.Haves {
		if store.Has(have) {
			common = append(common, have)
		}
	}

	ids, err := object.MissingFrom(store, req.Wants, common)
	if err != nil {
		return err
	}
	var pack bytes.Buffer
	summary, err := object.WritePack(&pack, store, ids)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(common) > 0 {
		err = c.pw.Writef("ACK %s\n", common[len(common)-1])
	} else {
		err = c.pw.WriteString("NAK\n")
	}
	if err != nil {
		return err
	}

	if req.Caps.Has(remote.CapSideBand64k) {
		sw := pktline.NewSidebandWriter(c)
		if err := sw.WriteProgress(fmt.Sprintf("Counting objects: %d, done.\n", summary.Objects)); err != nil {
			return err
		}
		if _, err := sw.Write(pack.Bytes()); err != nil {
			return err
		}
		if err := sw.Flush(); err != nil {
			return err
		}
	} else if _, err := c.Write(pack.Bytes()); err != nil {
		return fmt.Errorf("write pack: %w", err)
	}

	c.log.Info("upload complete",
		"objects", summary.Objects,
		"deltas", summary.Deltas,
		"bytes", pack.Len(),
		"duration", time.Since(start),
	)
	return nil
}
