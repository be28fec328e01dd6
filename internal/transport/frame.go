// Package transport wraps QUIC streams with the length-prefixed,
// multi-part frame format the proxy speaks on the wire: a frame is
// [command_name][arg1][arg2]… in both directions. No route id is
// written into frames; the proxy tracks each accepted connection's
// route itself.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxMessageSize mirrors the transport's configurable inbound
// frame cap (SN_ZMQ_MAX_MSG_SIZE in the system this generalizes);
// oversize frames close the connection rather than being delivered.
const DefaultMaxMessageSize = 1 << 20 // 1 MiB

var (
	ErrFrameTooLarge = errors.New("transport: frame exceeds max message size")
	ErrEmptyFrame    = errors.New("transport: frame has zero parts")
)

// WriteFrame writes a multi-part frame as a part count followed by
// each part's length-prefixed bytes. It does not flush; callers that
// wrap w in a *bufio.Writer are responsible for flushing after a
// batch of frames if they want bounded latency.
func WriteFrame(w io.Writer, parts [][]byte) error {
	if len(parts) == 0 {
		return ErrEmptyFrame
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(parts)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, p := range parts {
		binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if len(p) > 0 {
			if _, err := w.Write(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame, rejecting frames
// whose total size exceeds maxSize (0 = DefaultMaxMessageSize,
// negative = unlimited, matching the proxy's own Config.MaxMessageSize
// sentinel convention).
func ReadFrame(r *bufio.Reader, maxSize int) ([][]byte, error) {
	limit := effectiveMax(maxSize)
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(hdr[:])
	if count == 0 {
		return nil, ErrEmptyFrame
	}
	parts := make([][]byte, count)
	total := 0
	for i := range parts {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		n := int(binary.BigEndian.Uint32(hdr[:]))
		if n < 0 {
			return nil, fmt.Errorf("transport: negative part length")
		}
		total += n
		if limit >= 0 && total > limit {
			return nil, ErrFrameTooLarge
		}
		buf := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
		}
		parts[i] = buf
	}
	return parts, nil
}

func effectiveMax(maxSize int) int {
	if maxSize == 0 {
		return DefaultMaxMessageSize
	}
	return maxSize
}
