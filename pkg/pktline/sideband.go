package pktline

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Side-band channel identifiers.
const (
	SidebandData     byte = 0x01
	SidebandProgress byte = 0x02
	SidebandError    byte = 0x03
)

// SidebandWriter multiplexes data onto side-band channels. Each frame is one
// pkt-line whose first payload byte is the channel.
type SidebandWriter struct {
	pw *Writer
}

// NewSidebandWriter returns a SidebandWriter that writes pkt-lines to w.
func NewSidebandWriter(w io.Writer) *SidebandWriter {
	return &SidebandWriter{pw: NewWriter(w)}
}

func (sw *SidebandWriter) writeFrames(channel byte, data []byte) error {
	frame := make([]byte, 0, MaxSize)
	for len(data) > 0 {
		n := min(len(data), MaxSize-1)
		frame = append(frame[:0], channel)
		frame = append(frame, data[:n]...)
		if err := sw.pw.WritePacket(frame); err != nil {
			return fmt.Errorf("write side-band %d: %w", channel, err)
		}
		data = data[n:]
	}
	return nil
}

// Write sends p on the data channel, split into as many frames as needed.
func (sw *SidebandWriter) Write(p []byte) (int, error) {
	if err := sw.writeFrames(SidebandData, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteProgress sends a progress message on channel 2.
func (sw *SidebandWriter) WriteProgress(msg string) error {
	return sw.writeFrames(SidebandProgress, []byte(msg))
}

// WriteError sends a fatal error message on channel 3.
func (sw *SidebandWriter) WriteError(msg string) error {
	return sw.writeFrames(SidebandError, []byte(msg))
}

// Flush ends the side-band stream with a flush-pkt.
func (sw *SidebandWriter) Flush() error {
	return sw.pw.Flush()
}

// SidebandReader presents side-band data frames as a sequential io.Reader
// that ends at the next flush-pkt. Progress frames are passed to a callback;
// an error frame or ERR packet ends the stream with a *RemoteError.
type SidebandReader struct {
	pr         *Reader
	onProgress func(string)
	buf        []byte
	err        error
}

// NewSidebandReader reads side-band frames from pr.
func NewSidebandReader(pr *Reader, onProgress func(string)) *SidebandReader {
	return &SidebandReader{pr: pr, onProgress: onProgress}
}

func (sr *SidebandReader) Read(p []byte) (int, error) {
	for len(sr.buf) == 0 {
		if sr.err != nil {
			return 0, sr.err
		}
		sr.err = sr.fill()
	}
	n := copy(p, sr.buf)
	sr.buf = sr.buf[n:]
	return n, nil
}

func (sr *SidebandReader) fill() error {
	if !sr.pr.Next() {
		err := sr.pr.Err()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("side-band stream ended before flush: %w", io.ErrUnexpectedEOF)
		}
		return err
	}
	if sr.pr.Type() == Flush {
		return io.EOF
	}
	frame, err := sr.pr.Bytes()
	if err != nil {
		return err
	}
	if msg, ok := strings.CutPrefix(string(frame), "ERR "); ok {
		return &RemoteError{Message: strings.TrimSuffix(msg, "\n")}
	}
	if len(frame) == 0 {
		return nil
	}
	switch frame[0] {
	case SidebandData:
		sr.buf = append(sr.buf[:0], frame[1:]...)
	case SidebandProgress:
		if sr.onProgress != nil {
			sr.onProgress(string(frame[1:]))
		}
	case SidebandError:
		return &RemoteError{Message: strings.TrimSuffix(string(frame[1:]), "\n")}
	default:
		return Errorf("unknown side-band channel %d", frame[0])
	}
	return nil
}
