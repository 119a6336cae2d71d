package object

import (
	"encoding/binary"
	"fmt"
)

const (
	packHeaderSize = 12
	packVersion    = 2
)

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

// PackObjectType is the type code carried in a pack entry header.
type PackObjectType uint8

const (
	PackCommit   PackObjectType = 1
	PackTree     PackObjectType = 2
	PackBlob     PackObjectType = 3
	PackTag      PackObjectType = 4
	PackOfsDelta PackObjectType = 6
	PackRefDelta PackObjectType = 7
)

func (t PackObjectType) String() string {
	switch t {
	case PackCommit:
		return "commit"
	case PackTree:
		return "tree"
	case PackBlob:
		return "blob"
	case PackTag:
		return "tag"
	case PackOfsDelta:
		return "ofs-delta"
	case PackRefDelta:
		return "ref-delta"
	}
	return fmt.Sprintf("pack-type-%d", uint8(t))
}

// IsDelta reports whether entries of this type carry a delta against a base.
func (t PackObjectType) IsDelta() bool {
	return t == PackOfsDelta || t == PackRefDelta
}

func objectTypeToPackType(t ObjectType) (PackObjectType, bool) {
	switch t {
	case TypeCommit:
		return PackCommit, true
	case TypeTree:
		return PackTree, true
	case TypeBlob:
		return PackBlob, true
	case TypeTag:
		return PackTag, true
	}
	return 0, false
}

func packTypeToObjectType(t PackObjectType) (ObjectType, bool) {
	switch t {
	case PackCommit:
		return TypeCommit, true
	case PackTree:
		return TypeTree, true
	case PackBlob:
		return TypeBlob, true
	case PackTag:
		return TypeTag, true
	}
	return "", false
}

// PackHeader is the fixed-size pack header.
//
// Bytes:
//   - 0..3:  "PACK"
//   - 4..7:  version (big-endian)
//   - 8..11: number of objects (big-endian)
type PackHeader struct {
	Version    uint32
	NumObjects uint32
}

// Marshal serializes the header to the canonical 12-byte pack header.
func (h PackHeader) Marshal() []byte {
	buf := make([]byte, packHeaderSize)
	copy(buf[:4], packMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	binary.BigEndian.PutUint32(buf[8:12], h.NumObjects)
	return buf
}

// UnmarshalPackHeader parses a pack header. Only version 2 is accepted.
func UnmarshalPackHeader(data []byte) (*PackHeader, error) {
	if len(data) < packHeaderSize {
		return nil, corruptf("pack header too short: got %d bytes", len(data))
	}
	if string(data[:4]) != string(packMagic[:]) {
		return nil, corruptf("invalid pack magic %q", data[:4])
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != packVersion {
		return nil, corruptf("unsupported pack version %d", version)
	}
	return &PackHeader{
		Version:    version,
		NumObjects: binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// encodePackEntryHeader encodes the entry header: type in bits 4..6 of the
// first byte, size in the low nibble and then 7-bit little-endian groups.
func encodePackEntryHeader(objType PackObjectType, size uint64) []byte {
	b := byte((objType & 0x7) << 4)
	b |= byte(size & 0x0f)
	size >>= 4

	out := make([]byte, 0, 10)
	if size > 0 {
		b |= 0x80
	}
	out = append(out, b)

	for size > 0 {
		next := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			next |= 0x80
		}
		out = append(out, next)
	}
	return out
}

// decodePackEntryHeader decodes an entry header, returning type, uncompressed
// size and the number of bytes consumed.
func decodePackEntryHeader(data []byte) (PackObjectType, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, corruptf("pack entry header truncated")
	}

	b := data[0]
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	consumed := 1

	for b&0x80 != 0 {
		if consumed >= len(data) {
			return 0, 0, 0, corruptf("pack entry header truncated")
		}
		if shift > 57 {
			return 0, 0, 0, corruptf("pack entry size overflows")
		}
		b = data[consumed]
		size |= uint64(b&0x7f) << shift
		shift += 7
		consumed++
	}
	return objType, size, consumed, nil
}
