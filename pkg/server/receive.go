package server

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/pktline"
	"github.com/odvcencio/gitcore/pkg/remote"
	"github.com/odvcencio/gitcore/pkg/repo"
)

// receivePack serves a push: advertise, read the commands and the pack,
// then, under the repository lock, unpack and apply every ref update as
// one atomic batch.
func (s *Server) receivePack(ctx context.Context, c *conn) error {
	refs, _, err := advertisedRefs(c.repo, false)
	if err != nil {
		return err
	}
	adv := &remote.Advertisement{Refs: refs, Caps: remote.ReceivePackCapabilities()}
	if err := remote.WriteAdvertisement(c.pw, adv); err != nil {
		return err
	}

	cmds, caps, err := remote.ReadCommands(c.pr)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return nil
	}
	start := time.Now()

	needPack := false
	for _, cmd := range cmds {
		if !cmd.IsDelete() {
			needPack = true
		}
	}
	var pack []byte
	if needPack {
		// A truncated or oversized pack fails here, before anything is
		// written to the store.
		pack, err = remote.ReadPackData(pktline.NewSidebandReader(c.pr, nil), s.maxPackBytes())
		if err != nil {
			return fmt.Errorf("receive pack: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rep, objects, err := s.applyPush(c.repo, cmds, pack)
	if err != nil {
		return err
	}

	rejected := 0
	for _, st := range rep.Refs {
		if st.Reason != "" {
			rejected++
			c.log.Warn("ref update rejected", "ref", st.Name, "reason", st.Reason)
		}
	}
	c.log.Info("receive complete",
		"objects", objects,
		"bytes", len(pack),
		"refs", len(cmds),
		"rejected", rejected,
		"duration", time.Since(start),
	)

	if !caps.Has(remote.CapReportStatus) {
		// Without report-status the only way to signal a rejection is ERR.
		return rep.Err()
	}
	data, err := remote.EncodeReport(rep)
	if err != nil {
		return err
	}
	if caps.Has(remote.CapSideBand64k) {
		sw := pktline.NewSidebandWriter(c)
		if _, err := sw.Write(data); err != nil {
			return err
		}
		return sw.Flush()
	}
	if _, err := c.Write(data); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// applyPush unpacks pack and applies cmds while holding the repository
// lock. A failed unpack rejects every command. The returned error is
// reserved for failures that leave no meaningful report.
func (s *Server) applyPush(r *repo.Repo, cmds []remote.Command, pack []byte) (*remote.Report, int, error) {
	unlock := s.locks.lock(r.GitDir)
	defer unlock()

	rep := &remote.Report{Refs: make([]remote.RefStatus, len(cmds))}
	for i, cmd := range cmds {
		rep.Refs[i].Name = cmd.Name
	}

	objects := 0
	if pack != nil {
		summary, err := object.Unpack(r.Store, pack)
		if err != nil {
			rep.UnpackError = err.Error()
			for i := range rep.Refs {
				rep.Refs[i].Reason = "unpacker error"
			}
			return rep, 0, nil
		}
		objects = summary.Objects
	}

	updates := make([]repo.RefUpdate, len(cmds))
	for i, cmd := range cmds {
		updates[i] = repo.RefUpdate{Name: cmd.Name, Old: cmd.Old, New: cmd.New}
	}
	results, err := r.ApplyRefUpdates(updates)
	if err != nil {
		return nil, objects, err
	}
	for i, res := range results {
		if res != nil {
			rep.Refs[i].Reason = remote.RejectReason(res)
		}
	}
	return rep, objects, nil
}
