package object

import (
	"fmt"
	"io"
)

// DefaultDeltaWindow is how many previously written entries of the same
// kind WritePack considers as delta bases.
const DefaultDeltaWindow = 10

const (
	// maxDeltaDepth bounds delta chains so readers never recurse deeply.
	maxDeltaDepth = 50
	// minLineShare is the fraction of lines a base must share with the
	// object before a delta is attempted.
	minLineShare = 0.8
)

// PackSummary reports what WritePack emitted.
type PackSummary struct {
	Objects  int
	Deltas   int
	Bytes    uint64
	Checksum Hash
}

type packedEntry struct {
	offset uint64
	data   []byte
	depth  int
}

// PackOptions tunes WritePackOptions.
type PackOptions struct {
	// DeltaWindow bounds how many earlier entries of the same kind are
	// tried as delta bases. Zero means DefaultDeltaWindow; a negative
	// value tries every entry already written.
	DeltaWindow int
}

// WritePack writes the objects named by ids, in order, as a complete pack.
// Each object is written as an offset-delta against the best recent entry of
// the same kind when one is close enough in size and lines, and as a plain
// entry otherwise. Output depends only on ids and the object contents.
func WritePack(w io.Writer, r ObjectReader, ids []Hash) (*PackSummary, error) {
	return WritePackOptions(w, r, ids, PackOptions{})
}

// WritePackOptions is WritePack with an explicit delta window.
func WritePackOptions(w io.Writer, r ObjectReader, ids []Hash, opts PackOptions) (*PackSummary, error) {
	window := opts.DeltaWindow
	if window == 0 {
		window = DefaultDeltaWindow
	}
	if uint64(len(ids)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("write pack: too many objects: %d", len(ids))
	}
	pw, err := NewPackWriter(w, uint32(len(ids)))
	if err != nil {
		return nil, err
	}

	summary := &PackSummary{}
	windows := make(map[ObjectType][]packedEntry)
	for _, h := range ids {
		objType, data, err := r.Read(h)
		if err != nil {
			return nil, fmt.Errorf("write pack: read %s: %w", h, err)
		}
		packType, ok := objectTypeToPackType(objType)
		if !ok {
			return nil, fmt.Errorf("write pack: %s has unsupported type %q", h, objType)
		}

		offset := pw.CurrentOffset()
		depth := 0
		base, delta := pickDeltaBase(windows[objType], data)
		if base != nil {
			if err := pw.WriteOfsDelta(base.offset, delta); err != nil {
				return nil, fmt.Errorf("write pack: %s: %w", h, err)
			}
			depth = base.depth + 1
			summary.Deltas++
		} else if err := pw.WriteEntry(packType, data); err != nil {
			return nil, fmt.Errorf("write pack: %s: %w", h, err)
		}
		summary.Objects++

		win := append(windows[objType], packedEntry{offset: offset, data: data, depth: depth})
		if window > 0 && len(win) > window {
			win = win[len(win)-window:]
		}
		windows[objType] = win
	}

	sum, err := pw.Finish()
	if err != nil {
		return nil, err
	}
	summary.Checksum = sum
	summary.Bytes = pw.CurrentOffset() + HashSize
	return summary, nil
}

// pickDeltaBase returns the candidate yielding the smallest delta for data,
// preferring the most recent candidate on ties, or nil when no delta beats
// storing data as is.
func pickDeltaBase(window []packedEntry, data []byte) (*packedEntry, []byte) {
	var (
		best      *packedEntry
		bestDelta []byte
	)
	for i := len(window) - 1; i >= 0; i-- {
		cand := &window[i]
		if cand.depth >= maxDeltaDepth {
			continue
		}
		if !sizesClose(len(cand.data), len(data)) {
			continue
		}
		if lineShare(cand.data, data) < minLineShare {
			continue
		}
		delta := ComputeDelta(cand.data, data)
		if len(delta) >= len(data) {
			continue
		}
		if best == nil || len(delta) < len(bestDelta) {
			best, bestDelta = cand, delta
		}
	}
	return best, bestDelta
}

// sizesClose reports whether target is within 20% of the base size.
func sizesClose(base, target int) bool {
	diff := base - target
	if diff < 0 {
		diff = -diff
	}
	return 5*diff <= base
}
