package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

type packCountedWriter struct {
	w io.Writer
	n uint64
}

func (cw *packCountedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

func (cw *packCountedWriter) Count() uint64 {
	return cw.n
}

// PackWriter writes pack streams with zlib-compressed object entries. The
// trailer is the SHA-1 of all bytes preceding it.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	counter  *packCountedWriter
	expected uint32
	written  uint32
	finished bool
}

// NewPackWriter initializes a new writer and writes the fixed pack header.
func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	hasher := sha1.New()
	counter := &packCountedWriter{w: out}
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(counter, hasher),
		counter:  counter,
		expected: numObjects,
	}

	header := PackHeader{
		Version:    packVersion,
		NumObjects: numObjects,
	}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

// CurrentOffset returns the current byte offset in the pack stream,
// excluding the trailing checksum written by Finish.
func (p *PackWriter) CurrentOffset() uint64 {
	return p.counter.Count()
}

func (p *PackWriter) checkWritable() error {
	if p.finished {
		return fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return fmt.Errorf("pack object count exceeded: expected %d", p.expected)
	}
	return nil
}

// WriteEntry appends one non-delta entry to the pack stream.
func (p *PackWriter) WriteEntry(objType PackObjectType, data []byte) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if objType.IsDelta() {
		return fmt.Errorf("write pack entry: %s needs a base", objType)
	}
	return p.writeEntry(encodePackEntryHeader(objType, uint64(len(data))), data)
}

// WriteOfsDelta appends an offset-delta entry whose base starts at
// baseOffset. delta is a complete delta stream as built by ComputeDelta.
func (p *PackWriter) WriteOfsDelta(baseOffset uint64, delta []byte) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	current := p.CurrentOffset()
	if baseOffset >= current {
		return fmt.Errorf("base offset %d must be before current offset %d", baseOffset, current)
	}
	header := encodePackEntryHeader(PackOfsDelta, uint64(len(delta)))
	header = append(header, EncodeOffset(current-baseOffset)...)
	return p.writeEntry(header, delta)
}

func (p *PackWriter) writeEntry(header, data []byte) error {
	compressed, err := Compress(data)
	if err != nil {
		return fmt.Errorf("compress pack entry: %w", err)
	}
	if _, err := p.hashedW.Write(header); err != nil {
		return fmt.Errorf("write pack entry header: %w", err)
	}
	if _, err := p.hashedW.Write(compressed); err != nil {
		return fmt.Errorf("write compressed pack entry: %w", err)
	}
	p.written++
	return nil
}

// Finish validates the object count, writes the trailing checksum and
// returns it as a hex digest.
func (p *PackWriter) Finish() (Hash, error) {
	if p.finished {
		return "", fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return "", fmt.Errorf("pack object count mismatch: wrote %d, expected %d", p.written, p.expected)
	}
	sum := p.hasher.Sum(nil)
	if _, err := p.out.Write(sum); err != nil {
		return "", fmt.Errorf("write pack trailer checksum: %w", err)
	}
	p.finished = true
	return Hash(hex.EncodeToString(sum)), nil
}
