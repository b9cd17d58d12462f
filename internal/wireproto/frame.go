// Package wireproto frames sync messages on a byte stream as
// [4-byte big-endian length][payload].
package wireproto

import (
	"encoding/binary"
	"io"

	"github.com/openmined/treesync/internal/syncmsg"
)

const headerSize = 4

// MaxFrameSize bounds a single payload. Larger frames are skipped and
// reported as protocol errors.
var MaxFrameSize uint32 = 1 << 30

// EncodeFrame marshals msg and prepends the length header, producing one
// buffer that can be written with a single call.
func EncodeFrame(msg *syncmsg.Message) ([]byte, error) {
	payload, err := Marshal(msg)
	if err != nil {
		return nil, &ProtocolError{Reason: "encode", Err: err}
	}
	if uint64(len(payload)) > uint64(MaxFrameSize) {
		return nil, &ProtocolError{Reason: "frame too large"}
	}

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// WriteFrame writes an encoded frame. Any error or short write leaves the
// stream in an unknown state and is reported as a disconnect.
func WriteFrame(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return disconnected(err)
	}
	if n != len(frame) {
		return disconnected(io.ErrShortWrite)
	}
	return nil
}

// WriteMessage encodes and writes msg, returning the frame size.
func WriteMessage(w io.Writer, msg *syncmsg.Message) (int, error) {
	frame, err := EncodeFrame(msg)
	if err != nil {
		return 0, err
	}
	return len(frame), WriteFrame(w, frame)
}

// ReadFrame reads one frame payload. A stream that ends before or inside a
// frame yields ErrDisconnected (io.EOF when no byte of the header arrived).
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, disconnected(err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		// skip the payload so the next read starts on a frame boundary
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return nil, disconnected(err)
		}
		return nil, &ProtocolError{Reason: "frame too large"}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, disconnected(err)
	}
	return payload, nil
}

// ReadMessage reads and decodes one frame, returning the frame size.
func ReadMessage(r io.Reader) (*syncmsg.Message, int, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, 0, err
	}

	msg, err := Unmarshal(payload)
	if err != nil {
		return nil, headerSize + len(payload), &ProtocolError{Reason: "decode", Err: err}
	}
	return msg, headerSize + len(payload), nil
}
