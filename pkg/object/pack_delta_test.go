package object

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEncodeSizeVectors(t *testing.T) {
	tests := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tt := range tests {
		got := EncodeSize(tt.n)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeSize(%d) = % x, want % x", tt.n, got, tt.want)
		}
		n, consumed, err := DecodeSize(got)
		if err != nil || n != tt.n || consumed != len(got) {
			t.Errorf("DecodeSize(% x) = (%d, %d, %v), want (%d, %d, nil)", got, n, consumed, err, tt.n, len(got))
		}
	}
}

func TestEncodeOffsetVectors(t *testing.T) {
	tests := []struct {
		n    uint64
		want []byte
	}{
		{53, []byte{0x35}},
		{479, []byte{0x82, 0x5F}},
		{1187, []byte{0x88, 0x23}},
	}
	for _, tt := range tests {
		got := EncodeOffset(tt.n)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeOffset(%d) = % x, want % x", tt.n, got, tt.want)
		}
		n, consumed, err := DecodeOffset(got)
		if err != nil || n != tt.n || consumed != len(got) {
			t.Errorf("DecodeOffset(% x) = (%d, %d, %v), want (%d, %d, nil)", got, n, consumed, err, tt.n, len(got))
		}
	}
}

func TestVarintLaws(t *testing.T) {
	// Walk [0, 2^28) with a stride that hits every group boundary.
	var values []uint64
	for shift := uint(0); shift < 28; shift++ {
		base := uint64(1) << shift
		values = append(values, base-1, base, base+1)
	}
	for n := uint64(0); n < 1<<28; n += 9973 {
		values = append(values, n)
	}
	values = append(values, 1<<28-1)

	for _, n := range values {
		if got, _, err := DecodeSize(EncodeSize(n)); err != nil || got != n {
			t.Fatalf("DecodeSize(EncodeSize(%d)) = %d, %v", n, got, err)
		}
		if got, _, err := DecodeOffset(EncodeOffset(n)); err != nil || got != n {
			t.Fatalf("DecodeOffset(EncodeOffset(%d)) = %d, %v", n, got, err)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, _, err := DecodeSize([]byte{0x80}); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("DecodeSize truncated: err = %v, want ErrCorrupt", err)
	}
	if _, _, err := DecodeOffset([]byte{0x82}); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("DecodeOffset truncated: err = %v, want ErrCorrupt", err)
	}
}

func TestAppendCopySplitsLargeCopies(t *testing.T) {
	got := appendCopy(nil, 0, maxCopySize+5)
	want := []byte{
		0xF0, 0xFF, 0xFF, 0xFF, // copy offset 0 size 0xFFFFFF
		0x97, 0xFF, 0xFF, 0xFF, 0x05, // copy offset 0xFFFFFF size 5
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("appendCopy = % x, want % x", got, want)
	}
}

func TestCopySizeZeroMeans64K(t *testing.T) {
	base := bytes.Repeat([]byte{'x'}, 0x10000+10)
	delta := EncodeSize(uint64(len(base)))
	delta = append(delta, EncodeSize(0x10000)...)
	delta = appendCopy(delta, 0, 0x10000)
	if delta[len(delta)-1] != 0x80 {
		t.Fatalf("0x10000 copy should carry no size bytes, got % x", delta[len(delta)-1:])
	}
	out, err := ApplyDelta(base, delta)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if len(out) != 0x10000 {
		t.Fatalf("result length = %d, want %d", len(out), 0x10000)
	}
}

func TestApplyDeltaRejectsBadStreams(t *testing.T) {
	base := []byte("0123456789")
	header := func(resultSize int) []byte {
		return append(EncodeSize(uint64(len(base))), EncodeSize(uint64(resultSize))...)
	}
	tests := []struct {
		name  string
		delta []byte
	}{
		{name: "zero-command", delta: append(header(1), 0x00)},
		{name: "base-size", delta: append(EncodeSize(3), EncodeSize(1)...)},
		{name: "copy-out-of-bounds", delta: appendCopy(header(4), 8, 4)},
		{name: "insert-truncated", delta: append(header(5), 0x05, 'a', 'b')},
		{name: "result-too-long", delta: appendInsert(header(2), []byte("abc"))},
		{name: "result-too-short", delta: appendInsert(header(4), []byte("abc"))},
		{name: "copy-args-truncated", delta: append(header(2), 0x91)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ApplyDelta(base, tt.delta); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("ApplyDelta: err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func lines(n int, width int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		s := fmt.Sprintf("%s line %05d ", prefix, i)
		out[i] = s + strings.Repeat("-", width-len(s)-1) + "\n"
	}
	return out
}

func TestComputeDeltaRoundTrip(t *testing.T) {
	baseLines := lines(200, 60, "base")
	base := []byte(strings.Join(baseLines, ""))

	edited := append([]string(nil), baseLines[:50]...)
	edited = append(edited, "inserted\n")
	edited = append(edited, baseLines[60:150]...)
	edited = append(edited, "tail without newline")

	tests := []struct {
		name   string
		base   []byte
		target []byte
	}{
		{name: "identical", base: base, target: base},
		{name: "edited", base: base, target: []byte(strings.Join(edited, ""))},
		{name: "empty-target", base: base, target: nil},
		{name: "empty-base", base: nil, target: []byte("fresh\ncontent\n")},
		{name: "binary", base: bytes.Repeat([]byte{0, 1, 2}, 400), target: bytes.Repeat([]byte{0, 1, 3}, 400)},
		{name: "reordered", base: []byte("a\nb\nc\n"), target: []byte("c\nb\na\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta := ComputeDelta(tt.base, tt.target)
			got, err := ApplyDelta(tt.base, delta)
			if err != nil {
				t.Fatalf("ApplyDelta: %v", err)
			}
			if !bytes.Equal(got, tt.target) {
				t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(got), len(tt.target))
			}
		})
	}
}

func TestComputeDeltaMergesCopies(t *testing.T) {
	base := []byte(strings.Join(lines(100, 50, "b"), ""))
	delta := ComputeDelta(base, base)
	// Header plus exactly one copy of the whole base.
	want := append(EncodeSize(uint64(len(base))), EncodeSize(uint64(len(base)))...)
	want = appendCopy(want, 0, uint64(len(base)))
	if !bytes.Equal(delta, want) {
		t.Fatalf("ComputeDelta(base, base) = % x, want % x", delta, want)
	}
}

func TestComputeDeltaConcatenatesInserts(t *testing.T) {
	target := []byte("x\ny\nz\n")
	delta := ComputeDelta([]byte("unrelated\n"), target)
	want := append(EncodeSize(10), EncodeSize(6)...)
	want = append(want, 6)
	want = append(want, target...)
	if !bytes.Equal(delta, want) {
		t.Fatalf("ComputeDelta = % x, want % x", delta, want)
	}
}

func TestLineShare(t *testing.T) {
	if got := lineShare([]byte("a\nb\nc\nd\n"), []byte("a\nb\nc\nd\n")); got != 1 {
		t.Fatalf("identical share = %v, want 1", got)
	}
	if got := lineShare([]byte("a\nb\nc\nd\n"), []byte("a\nb\nx\ny\n")); got != 0.5 {
		t.Fatalf("half share = %v, want 0.5", got)
	}
	// Duplicate target lines only match as many base copies as exist.
	if got := lineShare([]byte("a\nb\n"), []byte("a\na\n")); got != 0.5 {
		t.Fatalf("duplicate share = %v, want 0.5", got)
	}
}
