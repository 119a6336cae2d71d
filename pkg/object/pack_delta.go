package object

import (
	"bytes"
	"fmt"
	"io"
)

const (
	maxCopySize   = 0xFFFFFF
	maxInsertSize = 0x7F
	maxCopyOffset = 0xFFFFFFFF
)

// EncodeSize encodes n as little-endian 7-bit groups with the high bit of
// each byte set when more bytes follow. Delta stream headers use it.
func EncodeSize(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	out := make([]byte, 0, 10)
	for n > 0 {
		b := byte(n & 0x7f)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// DecodeSize decodes a value written by EncodeSize and reports how many
// bytes it occupied.
func DecodeSize(data []byte) (uint64, int, error) {
	br := bytes.NewReader(data)
	n, err := readSize(br)
	if err != nil {
		return 0, 0, err
	}
	return n, len(data) - br.Len(), nil
}

func readSize(r io.ByteReader) (uint64, error) {
	var (
		value uint64
		shift uint
	)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, corruptf("delta size truncated")
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift > 63 {
			return 0, corruptf("delta size too large")
		}
	}
}

// EncodeOffset encodes a back-pointer distance for offset-delta entries:
// big-endian 7-bit groups, each byte after the first biased by one.
func EncodeOffset(n uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(n & 0x7f)
	for n >>= 7; n > 0; n >>= 7 {
		n--
		i--
		tmp[i] = byte(n&0x7f) | 0x80
	}
	out := make([]byte, len(tmp)-i)
	copy(out, tmp[i:])
	return out
}

// DecodeOffset decodes a value written by EncodeOffset and reports how many
// bytes it occupied.
func DecodeOffset(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, corruptf("ofs-delta distance truncated")
	}
	i := 0
	c := data[i]
	i++
	offset := uint64(c & 0x7f)
	for c&0x80 != 0 {
		if i >= len(data) {
			return 0, 0, corruptf("ofs-delta distance truncated")
		}
		if offset >= 1<<56 {
			return 0, 0, corruptf("ofs-delta distance overflows")
		}
		c = data[i]
		i++
		offset = ((offset + 1) << 7) | uint64(c&0x7f)
	}
	return offset, i, nil
}

// appendCopy appends copy commands for base[offset:offset+size], splitting
// anything longer than maxCopySize.
func appendCopy(out []byte, offset, size uint64) []byte {
	for size > 0 {
		n := size
		if n > maxCopySize {
			n = maxCopySize
		}
		out = appendCopyCommand(out, offset, n)
		offset += n
		size -= n
	}
	return out
}

func appendCopyCommand(out []byte, offset, size uint64) []byte {
	cmdAt := len(out)
	out = append(out, 0x80)
	cmd := byte(0x80)
	for i := uint(0); i < 4; i++ {
		if b := byte(offset >> (8 * i)); b != 0 {
			cmd |= 1 << i
			out = append(out, b)
		}
	}
	// A size of 0x10000 is written with no size bytes at all.
	if size != 0x10000 {
		for i := uint(0); i < 3; i++ {
			if b := byte(size >> (8 * i)); b != 0 {
				cmd |= 0x10 << i
				out = append(out, b)
			}
		}
	}
	out[cmdAt] = cmd
	return out
}

// appendInsert appends insert commands carrying data, at most 127 bytes each.
func appendInsert(out, data []byte) []byte {
	for len(data) > 0 {
		n := len(data)
		if n > maxInsertSize {
			n = maxInsertSize
		}
		out = append(out, byte(n))
		out = append(out, data[:n]...)
		data = data[n:]
	}
	return out
}

// ApplyDelta applies a delta stream to base. The stream's declared base size
// must equal len(base) and the produced bytes must equal its declared result
// size; any disagreement is ErrCorrupt.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	dr := bytes.NewReader(delta)

	baseSize, err := readSize(dr)
	if err != nil {
		return nil, fmt.Errorf("read base size: %w", err)
	}
	if baseSize != uint64(len(base)) {
		return nil, corruptf("delta base size mismatch: got %d want %d", baseSize, len(base))
	}
	resultSize, err := readSize(dr)
	if err != nil {
		return nil, fmt.Errorf("read result size: %w", err)
	}

	prealloc := resultSize
	if prealloc > 1<<26 {
		prealloc = 1 << 26
	}
	out := make([]byte, 0, prealloc)
	for dr.Len() > 0 {
		cmd, _ := dr.ReadByte()
		if cmd&0x80 != 0 {
			var offset, size uint64
			for i := uint(0); i < 4; i++ {
				if cmd&(1<<i) == 0 {
					continue
				}
				b, err := readDeltaCopyArgByte(dr, "offset")
				if err != nil {
					return nil, err
				}
				offset |= uint64(b) << (8 * i)
			}
			for i := uint(0); i < 3; i++ {
				if cmd&(0x10<<i) == 0 {
					continue
				}
				b, err := readDeltaCopyArgByte(dr, "size")
				if err != nil {
					return nil, err
				}
				size |= uint64(b) << (8 * i)
			}
			if size == 0 {
				size = 0x10000
			}
			if offset+size > uint64(len(base)) {
				return nil, corruptf("delta copy out of bounds: offset %d size %d base %d", offset, size, len(base))
			}
			out = append(out, base[offset:offset+size]...)
		} else {
			if cmd == 0 {
				return nil, corruptf("invalid delta command: 0")
			}
			if dr.Len() < int(cmd) {
				return nil, corruptf("delta insert truncated")
			}
			start := len(delta) - dr.Len()
			out = append(out, delta[start:start+int(cmd)]...)
			_, _ = dr.Seek(int64(cmd), io.SeekCurrent)
		}
		if uint64(len(out)) > resultSize {
			return nil, corruptf("delta result exceeds declared size %d", resultSize)
		}
	}

	if uint64(len(out)) != resultSize {
		return nil, corruptf("delta result size mismatch: got %d expected %d", len(out), resultSize)
	}
	return out, nil
}

func readDeltaCopyArgByte(r io.ByteReader, field string) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, corruptf("delta copy %s truncated", field)
	}
	return b, nil
}
