package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("hello framed world")

	if err := WriteFrame(&buf, body, DefaultMaxFrameSize); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, err := ReadFrame(&buf, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("body mismatch: %q != %q", got, body)
	}
}

func TestFrameHeaderIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{0xAA, 0xBB, 0xCC}

	if err := WriteFrame(&buf, body, DefaultMaxFrameSize); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	header := buf.Bytes()[:4]
	if got := binary.BigEndian.Uint32(header); got != 3 {
		t.Errorf("header = %d, want 3", got)
	}
}

func TestWriteFrameRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil, DefaultMaxFrameSize); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written for an empty frame")
	}
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	body := make([]byte, 64)
	if err := WriteFrame(&buf, body, 32); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameRejectsZeroLengthWithoutDraining(t *testing.T) {
	var buf bytes.Buffer
	_ = binaryWrite(&buf, 0)
	buf.WriteString("trailing")

	if _, err := ReadFrame(&buf, DefaultMaxFrameSize); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
	// The trailing bytes must remain unread.
	if buf.Len() != len("trailing") {
		t.Errorf("expected trailing bytes untouched, %d left", buf.Len())
	}
}

func TestReadFrameRejectsOversizeWithoutDraining(t *testing.T) {
	var buf bytes.Buffer
	_ = binaryWrite(&buf, 1<<30)
	buf.WriteString("garbage")

	if _, err := ReadFrame(&buf, DefaultMaxFrameSize); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if buf.Len() != len("garbage") {
		t.Errorf("expected body left unread, %d bytes remain", buf.Len())
	}
}

func TestReadFrameShortRead(t *testing.T) {
	var buf bytes.Buffer
	_ = binaryWrite(&buf, 100)
	buf.WriteString("only a few bytes")

	if _, err := ReadFrame(&buf, DefaultMaxFrameSize); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF on short read, got %v", err)
	}
}

func TestReadFrameEOF(t *testing.T) {
	var buf bytes.Buffer
	if _, err := ReadFrame(&buf, DefaultMaxFrameSize); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestFrameOrderPreserved(t *testing.T) {
	var buf bytes.Buffer
	frames := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	for _, f := range frames {
		if err := WriteFrame(&buf, f, DefaultMaxFrameSize); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	for i, want := range frames {
		got, err := ReadFrame(&buf, DefaultMaxFrameSize)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
}

func binaryWrite(buf *bytes.Buffer, length uint32) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], length)
	_, err := buf.Write(header[:])
	return err
}
