package object

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestWritePackDeterministic(t *testing.T) {
	h := buildHistory(t)
	ids, err := MissingFrom(h.store, []Hash{h.c1}, nil)
	if err != nil {
		t.Fatalf("MissingFrom: %v", err)
	}
	first := packBytes(t, h.store, ids)
	second := packBytes(t, h.store, ids)
	if !bytes.Equal(first, second) {
		t.Fatal("two packs of the same ids differ")
	}
	if _, err := ReadPack(first); err != nil {
		t.Fatalf("ReadPack: %v", err)
	}
}

func TestWritePackPlainWhenUnrelated(t *testing.T) {
	src := tempStore(t)
	ids := writeBlobs(t, src,
		[]byte(strings.Repeat("first file line\n", 50)),
		[]byte(strings.Repeat("another thing entirely\n", 50)),
		bytes.Repeat([]byte("tiny"), 1),
	)
	var buf bytes.Buffer
	summary, err := WritePack(&buf, src, ids)
	if err != nil {
		t.Fatalf("WritePack: %v", err)
	}
	if summary.Deltas != 0 || summary.Objects != 3 {
		t.Fatalf("summary = %+v, want 3 plain objects", summary)
	}
	if summary.Bytes != uint64(buf.Len()) {
		t.Fatalf("summary bytes = %d, buffer has %d", summary.Bytes, buf.Len())
	}
}

func TestWritePackBoundsDeltaDepth(t *testing.T) {
	src := tempStore(t)
	var text strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&text, "base line %d\n", i)
	}
	var versions [][]byte
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&text, "appended line %d\n", i)
		versions = append(versions, []byte(text.String()))
	}
	ids := writeBlobs(t, src, versions...)

	data := packBytes(t, src, ids)
	pf, err := ReadPack(data)
	if err != nil {
		t.Fatalf("ReadPack: %v", err)
	}
	depthAt := make(map[uint64]int, len(pf.Entries))
	maxDepth := 0
	for _, e := range pf.Entries {
		d := 0
		if e.Type == PackOfsDelta {
			d = depthAt[e.BaseOffset] + 1
		}
		depthAt[e.Offset] = d
		if d > maxDepth {
			maxDepth = d
		}
	}
	if maxDepth == 0 || maxDepth > maxDeltaDepth {
		t.Fatalf("max delta depth = %d, want 1..%d", maxDepth, maxDeltaDepth)
	}

	dst := tempStore(t)
	if _, err := Unpack(dst, data); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	for i, id := range ids {
		_, got, err := dst.Read(id)
		if err != nil || !bytes.Equal(got, versions[i]) {
			t.Fatalf("version %d differs after unpack (err=%v)", i, err)
		}
	}
}

func TestPackWriterObjectCount(t *testing.T) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 1)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	if _, err := pw.Finish(); err == nil {
		t.Fatal("Finish with missing entries succeeded")
	}
	if err := pw.WriteEntry(PackBlob, []byte("x")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := pw.WriteEntry(PackBlob, []byte("y")); err == nil {
		t.Fatal("WriteEntry past the declared count succeeded")
	}
	if err := pw.WriteOfsDelta(pw.CurrentOffset(), nil); err == nil {
		t.Fatal("WriteOfsDelta past the declared count succeeded")
	}
	if _, err := pw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := pw.Finish(); err == nil {
		t.Fatal("second Finish succeeded")
	}
}

func TestSizesClose(t *testing.T) {
	tests := []struct {
		base, target int
		want         bool
	}{
		{100, 100, true},
		{100, 120, true},
		{100, 80, true},
		{100, 121, false},
		{100, 79, false},
		{0, 0, true},
		{0, 1, false},
	}
	for _, tt := range tests {
		if got := sizesClose(tt.base, tt.target); got != tt.want {
			t.Errorf("sizesClose(%d, %d) = %v, want %v", tt.base, tt.target, got, tt.want)
		}
	}
}

func TestWritePackDeltaWindow(t *testing.T) {
	src := tempStore(t)
	base, obj := s3Blobs()
	contents := [][]byte{base}
	for i := 0; i < 3; i++ {
		contents = append(contents, []byte(strings.Join(lines(2000, 100, fmt.Sprintf("filler-%d", i)), "")))
	}
	contents = append(contents, obj)
	ids := writeBlobs(t, src, contents...)

	tests := []struct {
		name   string
		window int
		deltas int
	}{
		{name: "base outside window", window: 2, deltas: 0},
		{name: "base inside window", window: 4, deltas: 1},
		{name: "every earlier entry", window: -1, deltas: 1},
		{name: "default", window: 0, deltas: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			summary, err := WritePackOptions(&buf, src, ids, PackOptions{DeltaWindow: tt.window})
			if err != nil {
				t.Fatalf("WritePackOptions: %v", err)
			}
			if summary.Deltas != tt.deltas {
				t.Fatalf("deltas = %d, want %d", summary.Deltas, tt.deltas)
			}
			pf, err := ReadPack(buf.Bytes())
			if err != nil {
				t.Fatalf("ReadPack: %v", err)
			}
			if len(pf.Entries) != len(ids) {
				t.Fatalf("entries = %d, want %d", len(pf.Entries), len(ids))
			}
		})
	}
}
