package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// PackEntry represents one object entry in a pack stream.
type PackEntry struct {
	Offset uint64
	Type   PackObjectType
	Size   uint64 // declared size of Data

	// BaseOffset is the absolute offset of the base entry of an ofs-delta.
	BaseOffset uint64
	// BaseHash names the base object of a ref-delta.
	BaseHash Hash

	// Data is the inflated payload: object content, or the delta stream for
	// delta entries.
	Data []byte
}

// PackFile is the decoded content of a full pack stream.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// PackObject is a fully resolved pack entry.
type PackObject struct {
	Hash Hash
	Type ObjectType
	Data []byte
}

// ReadPack parses a full pack, verifies the trailing SHA-1 and inflates every
// entry. Deltas are not applied; see Resolve.
func ReadPack(data []byte) (*PackFile, error) {
	if len(data) < packHeaderSize+sha1.Size {
		return nil, corruptf("pack too short: %d bytes", len(data))
	}

	payload := data[:len(data)-sha1.Size]
	trailer := data[len(data)-sha1.Size:]

	sum := sha1.Sum(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, corruptf("pack checksum mismatch")
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, min(int(header.NumObjects), len(payload)/2))
	for i := uint32(0); i < header.NumObjects; i++ {
		entry := PackEntry{Offset: uint64(offset)}
		objType, size, n, err := decodePackEntryHeader(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entry.Type = objType
		entry.Size = size
		offset += n

		switch objType {
		case PackCommit, PackTree, PackBlob, PackTag:
		case PackOfsDelta:
			dist, n, err := DecodeOffset(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			if dist == 0 || dist > entry.Offset {
				return nil, corruptf("entry %d: ofs-delta distance %d out of range", i, dist)
			}
			entry.BaseOffset = entry.Offset - dist
			offset += n
		case PackRefDelta:
			if len(payload)-offset < HashSize {
				return nil, corruptf("entry %d: ref-delta base truncated", i)
			}
			entry.BaseHash, _ = HashFromRaw(payload[offset : offset+HashSize])
			offset += HashSize
		default:
			return nil, corruptf("entry %d: unknown pack object type %d", i, objType)
		}

		raw, consumed, err := inflate(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, asCorrupt(err))
		}
		if uint64(len(raw)) != size {
			return nil, corruptf("entry %d: size mismatch header=%d decoded=%d", i, size, len(raw))
		}
		offset += consumed
		entry.Data = raw
		entries = append(entries, entry)
	}

	if offset != len(payload) {
		return nil, corruptf("pack has trailing undecoded bytes: %d", len(payload)-offset)
	}

	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: Hash(hex.EncodeToString(trailer)),
	}, nil
}

// ReadPackFromReader reads a complete pack stream from r. A limit above zero
// caps the number of bytes accepted.
func ReadPackFromReader(r io.Reader, limit int64) (*PackFile, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("read pack stream: pack exceeds %d bytes", limit)
	}
	return ReadPack(data)
}

// Resolve materializes every entry, applying ofs-delta chains within the
// pack. Ref-delta bases are looked up among the pack's own objects first and
// then in base, which may be nil. Nothing is written anywhere.
func (pf *PackFile) Resolve(base ObjectReader) ([]PackObject, error) {
	byOffset := make(map[uint64]int, len(pf.Entries))
	for i, e := range pf.Entries {
		byOffset[e.Offset] = i
	}

	resolved := make([]*PackObject, len(pf.Entries))
	byHash := make(map[Hash]*PackObject, len(pf.Entries))
	remaining := len(pf.Entries)

	// Each pass resolves every entry whose base is available. Ofs-delta bases
	// always precede their delta, so only ref-deltas need extra passes.
	for remaining > 0 {
		progress := false
		for i, e := range pf.Entries {
			if resolved[i] != nil {
				continue
			}
			obj, ok, err := pf.resolveEntry(e, byOffset, resolved, byHash, base)
			if err != nil {
				return nil, fmt.Errorf("resolve entry at offset %d: %w", e.Offset, err)
			}
			if !ok {
				continue
			}
			resolved[i] = obj
			byHash[obj.Hash] = obj
			remaining--
			progress = true
		}
		if !progress {
			return nil, corruptf("pack has %d entries with unresolvable delta bases", remaining)
		}
	}

	out := make([]PackObject, len(resolved))
	for i, obj := range resolved {
		out[i] = *obj
	}
	return out, nil
}

func (pf *PackFile) resolveEntry(e PackEntry, byOffset map[uint64]int, resolved []*PackObject, byHash map[Hash]*PackObject, base ObjectReader) (*PackObject, bool, error) {
	var (
		baseType ObjectType
		baseData []byte
	)
	switch e.Type {
	case PackOfsDelta:
		idx, ok := byOffset[e.BaseOffset]
		if !ok {
			return nil, false, corruptf("ofs-delta base offset %d is not an entry", e.BaseOffset)
		}
		if resolved[idx] == nil {
			return nil, false, nil
		}
		baseType, baseData = resolved[idx].Type, resolved[idx].Data
	case PackRefDelta:
		if obj, ok := byHash[e.BaseHash]; ok {
			baseType, baseData = obj.Type, obj.Data
		} else if base != nil && base.Has(e.BaseHash) {
			t, data, err := base.Read(e.BaseHash)
			if err != nil {
				return nil, false, err
			}
			baseType, baseData = t, data
		} else {
			return nil, false, nil
		}
	default:
		objType, ok := packTypeToObjectType(e.Type)
		if !ok {
			return nil, false, corruptf("unsupported pack object type %s", e.Type)
		}
		return &PackObject{Hash: HashObject(objType, e.Data), Type: objType, Data: e.Data}, true, nil
	}

	data, err := ApplyDelta(baseData, e.Data)
	if err != nil {
		return nil, false, err
	}
	return &PackObject{Hash: HashObject(baseType, data), Type: baseType, Data: data}, true, nil
}

// UnpackSummary reports the outcome of Unpack.
type UnpackSummary struct {
	Objects  int
	Deltas   int
	Checksum Hash
	Hashes   []Hash
}

// Unpack decodes a pack, resolves every entry and then writes the objects
// to store. Any decoding or resolution failure happens before the first
// write, so a corrupt pack leaves the store untouched.
func Unpack(store interface {
	ObjectReader
	ObjectWriter
}, data []byte) (*UnpackSummary, error) {
	pf, err := ReadPack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	objs, err := pf.Resolve(store)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}

	summary := &UnpackSummary{Checksum: pf.Checksum}
	for _, e := range pf.Entries {
		if e.Type.IsDelta() {
			summary.Deltas++
		}
	}
	for _, obj := range objs {
		h, err := store.Write(obj.Type, obj.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack: write %s: %w", obj.Hash, err)
		}
		summary.Objects++
		summary.Hashes = append(summary.Hashes, h)
	}
	return summary, nil
}
