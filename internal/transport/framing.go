// Package transport implements the framed unix-socket transport: a 4-byte
// big-endian length prefix followed by a msgpack-encoded message body.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds the message body at 10 MiB.
const DefaultMaxFrameSize = 10 * 1024 * 1024

// Framing errors.
var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrEmptyFrame    = errors.New("frame declares zero length")
	ErrNotConnected  = errors.New("not connected")
)

// WriteFrame writes one length-prefixed frame. The caller serializes writes;
// WriteFrame itself does not lock.
func WriteFrame(w io.Writer, body []byte, maxSize int) error {
	if len(body) == 0 {
		return ErrEmptyFrame
	}
	if len(body) > maxSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame. A zero-length or oversize
// declaration is rejected without draining the body; the caller must close
// the connection on ErrFrameTooLarge. io.EOF is returned unwrapped on a
// clean close before the header.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if int(length) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes declared", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
