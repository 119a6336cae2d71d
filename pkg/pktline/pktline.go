// Package pktline reads and writes the pkt-line framing used by the
// transport: a 4-hex-digit length that counts itself, then the payload.
// "0000" is a flush-pkt and ends a logical group.
package pktline

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// MaxSize is the maximum payload carried by a single pkt-line.
	MaxSize = 65516
	// MaxLineSize is MaxSize plus the 4 length bytes.
	MaxLineSize = MaxSize + 4

	headerSize = 4
)

// ErrProtocol reports a pkt-line structure violation or an unexpected
// message from the peer.
var ErrProtocol = errors.New("protocol error")

// Errorf formats a protocol error that matches ErrProtocol.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// Type indicates the type of a packet.
type Type int8

const (
	// Flush ends a logical group. Any length below 4 reads as Flush.
	Flush Type = 0
	// Data is a packet carrying a payload.
	Data Type = 4
)

// Reader reads pkt-lines from an io.Reader. It does no internal buffering
// and never reads past the end of the current packet.
type Reader struct {
	r      io.Reader
	typ    Type
	length int
	buf    []byte
	err    error
}

// NewReader returns a new Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   r,
		buf: make([]byte, 0, 1024),
	}
}

// Next advances to the next pkt-line. It returns false on error; Err then
// reports it. A clean end of stream before any length byte matches io.EOF.
func (pr *Reader) Next() bool {
	if pr.err != nil {
		return false
	}
	pr.typ, pr.length, pr.buf, pr.err = read(pr.r, pr.buf)
	return pr.err == nil
}

// ReadPacket reads the next pkt-line and returns its declared length and
// payload. A length below 4 denotes a flush. The payload is only valid
// until the next read.
func (pr *Reader) ReadPacket() (int, []byte, error) {
	if !pr.Next() {
		return 0, nil, pr.err
	}
	return pr.length, pr.buf, nil
}

func read(r io.Reader, buf []byte) (Type, int, []byte, error) {
	var lengthHex [headerSize]byte
	if _, err := io.ReadFull(r, lengthHex[:]); err != nil {
		return Flush, 0, buf[:0], fmt.Errorf("read packet line: %w", err)
	}
	var length [2]byte
	if _, err := hex.Decode(length[:], lengthHex[:]); err != nil {
		return Flush, 0, buf[:0], Errorf("read packet line: invalid length %q", lengthHex[:])
	}
	total := int(length[0])<<8 | int(length[1])
	if total < headerSize {
		return Flush, total, buf[:0], nil
	}
	n := total - headerSize
	if n > MaxSize {
		return Flush, 0, buf[:0], Errorf("read packet line: length %d exceeds %d", total, MaxLineSize)
	}
	if n > cap(buf) {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Flush, 0, buf[:0], fmt.Errorf("read packet line: %w", err)
	}
	return Data, total, buf, nil
}

// Type returns the type of the most recent packet read by Next.
func (pr *Reader) Type() Type {
	return pr.typ
}

// Err returns the first error encountered by the Reader.
func (pr *Reader) Err() error {
	return pr.err
}

// Bytes returns the payload of the most recent packet. It fails if Next
// returned false or the packet was a flush. The slice is overwritten by the
// next call to Next.
func (pr *Reader) Bytes() ([]byte, error) {
	if pr.err != nil {
		return nil, pr.err
	}
	if pr.typ != Data {
		return nil, Errorf("unexpected flush-pkt")
	}
	return pr.buf, nil
}

// Text is Bytes with one trailing line feed removed.
func (pr *Reader) Text() (string, error) {
	data, err := pr.Bytes()
	if err != nil {
		return "", err
	}
	return string(trimLF(data)), nil
}

// ReadText reads the next packet and returns its text. A flush-pkt is a
// protocol error and an "ERR" packet is returned as a *RemoteError.
func (pr *Reader) ReadText() (string, error) {
	if !pr.Next() {
		return "", pr.err
	}
	text, err := pr.Text()
	if err != nil {
		return "", err
	}
	if msg, ok := strings.CutPrefix(text, "ERR "); ok {
		return "", &RemoteError{Message: msg}
	}
	return text, nil
}

// RemoteError is an error reported by the peer, either in an "ERR" packet
// or on side-band channel 3.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}

// ReadFlush reads the next packet and fails unless it is a flush-pkt.
func (pr *Reader) ReadFlush() error {
	if !pr.Next() {
		return pr.err
	}
	if pr.typ != Flush {
		return Errorf("expected flush-pkt, got %q", trimLF(pr.buf))
	}
	return nil
}

func trimLF(line []byte) []byte {
	if len(line) == 0 || line[len(line)-1] != '\n' {
		return line
	}
	return line[:len(line)-1]
}

// Writer writes pkt-lines to an io.Writer.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WritePacket writes one data packet carrying line.
func (pw *Writer) WritePacket(line []byte) error {
	buf, err := Append(make([]byte, 0, len(line)+headerSize), line)
	if err != nil {
		return err
	}
	if _, err := pw.w.Write(buf); err != nil {
		return fmt.Errorf("write packet line: %w", err)
	}
	return nil
}

// WriteString writes one data packet carrying s.
func (pw *Writer) WriteString(s string) error {
	return pw.WritePacket([]byte(s))
}

// Writef formats a data packet.
func (pw *Writer) Writef(format string, args ...any) error {
	return pw.WriteString(fmt.Sprintf(format, args...))
}

// Flush writes a flush-pkt.
func (pw *Writer) Flush() error {
	if _, err := pw.w.Write(AppendFlush(nil)); err != nil {
		return fmt.Errorf("write flush packet: %w", err)
	}
	return nil
}

// WriteError writes an "ERR <msg>\n" packet.
func (pw *Writer) WriteError(msg string) error {
	line := "ERR " + msg
	if len(line)+1 > MaxSize {
		line = line[:MaxSize-1]
	}
	return pw.WriteString(line + "\n")
}

// Append appends a data packet carrying line to dst. Empty and oversized
// payloads are rejected.
func Append(dst []byte, line []byte) ([]byte, error) {
	if len(line) == 0 {
		return dst, Errorf("empty pkt-line")
	}
	if len(line) > MaxSize {
		return dst, Errorf("pkt-line payload of %d bytes exceeds %d", len(line), MaxSize)
	}
	n := len(line) + headerSize
	dst = append(dst,
		hexDigits[n>>12],
		hexDigits[n>>8&0xf],
		hexDigits[n>>4&0xf],
		hexDigits[n&0xf],
	)
	return append(dst, line...), nil
}

// AppendFlush appends a flush-pkt to dst.
func AppendFlush(dst []byte) []byte {
	return append(dst, "0000"...)
}

const hexDigits = "0123456789abcdef"
