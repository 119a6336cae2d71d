package object

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing object, ref, path or index entry.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt reports framing, checksum or size mismatches in stored or
	// transferred data.
	ErrCorrupt = errors.New("corrupt data")

	// ErrTruncated reports a compressed stream that ended early. Callers
	// use it to tell a partial read from a checksum failure.
	ErrTruncated = errors.New("truncated data")
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// asCorrupt makes sure err matches ErrCorrupt. Truncation keeps matching
// ErrTruncated as well.
func asCorrupt(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}
