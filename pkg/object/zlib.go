package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compress deflates data into a zlib stream at the default level.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a complete zlib stream. A stream that ends early
// yields ErrTruncated; a bad header, bad deflate data or an Adler-32
// mismatch yields ErrCorrupt.
func Decompress(data []byte) ([]byte, error) {
	raw, _, err := inflate(data)
	return raw, err
}

// inflate decompresses the zlib stream at the start of data and reports how
// many input bytes it occupied. bytes.Reader is an io.ByteReader, so the
// decoder never reads past the end of the stream.
func inflate(data []byte) ([]byte, int, error) {
	src := bytes.NewReader(data)
	zr, err := zlib.NewReader(src)
	if err != nil {
		return nil, 0, classifyZlibError(err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, 0, classifyZlibError(err)
	}
	if err := zr.Close(); err != nil {
		return nil, 0, classifyZlibError(err)
	}
	return raw, len(data) - src.Len(), nil
}

func classifyZlibError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("zlib decompress: %w: %w", ErrTruncated, err)
	}
	return fmt.Errorf("zlib decompress: %w: %w", ErrCorrupt, err)
}
