package wireproto

import (
	"errors"
	"fmt"
)

// ErrDisconnected wraps every failure that means the underlying stream is gone:
// orderly EOF, truncated frames, broken pipes and failed writes.
var ErrDisconnected = errors.New("wireproto: disconnected")

// ProtocolError is a malformed frame or an undecodable payload. The stream is
// still aligned on a frame boundary, so readers may keep going.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "wireproto: protocol error: " + e.Reason
	}
	return fmt.Sprintf("wireproto: protocol error: %s: %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func IsDisconnect(err error) bool {
	return errors.Is(err, ErrDisconnected)
}

func IsProtocolError(err error) bool {
	var perr *ProtocolError
	return errors.As(err, &perr)
}

func disconnected(err error) error {
	return fmt.Errorf("%w: %w", ErrDisconnected, err)
}
