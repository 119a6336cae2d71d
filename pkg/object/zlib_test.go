package object

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("compress me\n"), 1000)
	c, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := Decompress(c)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-trip mismatch")
	}
}

func TestDecompressDistinguishesTruncationFromChecksum(t *testing.T) {
	c, err := Compress([]byte("the quick brown fox jumps over the lazy dog"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	_, err = Decompress(c[:len(c)-2])
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("truncated stream: err = %v, want ErrTruncated", err)
	}
	if errors.Is(err, ErrCorrupt) {
		t.Fatalf("truncated stream also matched ErrCorrupt: %v", err)
	}

	bad := append([]byte(nil), c...)
	bad[len(bad)-1] ^= 0xff
	_, err = Decompress(bad)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("checksum failure: err = %v, want ErrCorrupt", err)
	}
	if errors.Is(err, ErrTruncated) {
		t.Fatalf("checksum failure matched ErrTruncated: %v", err)
	}
}

func TestInflateReportsConsumedBytes(t *testing.T) {
	c, err := Compress([]byte("entry"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	stream := append(append([]byte(nil), c...), "TRAILING"...)
	raw, n, err := inflate(stream)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if string(raw) != "entry" || n != len(c) {
		t.Fatalf("inflate = (%q, %d), want (entry, %d)", raw, n, len(c))
	}
}
