// Package session carries framed sync messages over a single TCP connection.
package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/utils"
	"github.com/openmined/treesync/internal/wireproto"
)

const (
	writeTimeout = 20 * time.Second
	dialTimeout  = 10 * time.Second
	readBufSize  = 64 * 1024
)

// Conn is one framed connection to a peer. Reads must come from a single
// goroutine; writes may come from many and are serialized so frames never
// interleave.
type Conn struct {
	Id string

	conn      net.Conn
	r         *bufio.Reader
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func New(conn net.Conn) *Conn {
	return &Conn{
		Id:   utils.TokenHex(4),
		conn: conn,
		r:    bufio.NewReaderSize(conn, readBufSize),
	}
}

// Dial opens a TCP connection to addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(nc), nil
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) ReadMessage() (*syncmsg.Message, error) {
	msg, n, err := wireproto.ReadMessage(c.r)
	if err != nil {
		return nil, err
	}
	slog.Debug("session read", "conn", c.Id, "type", msg.Type, "msgId", msg.Id, "size", humanize.Bytes(uint64(n)))
	return msg, nil
}

func (c *Conn) WriteMessage(msg *syncmsg.Message) error {
	frame, err := wireproto.EncodeFrame(msg)
	if err != nil {
		return err
	}
	if err := c.WriteFrame(frame); err != nil {
		return err
	}
	slog.Debug("session write", "conn", c.Id, "type", msg.Type, "msgId", msg.Id, "size", humanize.Bytes(uint64(len(frame))))
	return nil
}

// WriteFrame writes a pre-encoded frame within the write timeout.
func (c *Conn) WriteFrame(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return wireproto.WriteFrame(errWriter{err}, frame)
	}
	return wireproto.WriteFrame(c.conn, frame)
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		slog.Debug("session closed", "conn", c.Id)
	})
	return c.closeErr
}

// ReadLoop reads messages and hands each to handle until the stream ends.
// Malformed frames are logged and skipped. It returns nil when the peer
// disconnects cleanly or the connection is closed locally, which happens when
// ctx is done.
func (c *Conn) ReadLoop(ctx context.Context, handle func(*syncmsg.Message)) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		msg, err := c.ReadMessage()
		if err == nil {
			handle(msg)
			continue
		}

		switch {
		case wireproto.IsProtocolError(err):
			slog.Warn("session malformed frame skipped", "conn", c.Id, "error", err)
		case errors.Is(err, io.EOF):
			slog.Info("session peer disconnected", "conn", c.Id, "remote", c.RemoteAddr())
			return nil
		case errors.Is(err, net.ErrClosed) || ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

// errWriter reports err for any write, so a failed deadline surfaces as a
// disconnect the same way a failed write does.
type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) {
	return 0, w.err
}
