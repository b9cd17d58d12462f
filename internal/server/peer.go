package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openmined/treesync/internal/session"
)

// Peer is a connected client as seen by the server. Frames queued on MsgTx
// are written in order by the peer's writer.
type Peer struct {
	Id     string
	MsgTx  chan []byte
	Closed chan struct{}

	conn      *session.Conn
	closeOnce sync.Once
}

func NewPeer(conn *session.Conn, queueSize int) *Peer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Peer{
		Id:     conn.Id,
		MsgTx:  make(chan []byte, queueSize),
		Closed: make(chan struct{}),
		conn:   conn,
	}
}

// Close closes the connection, which also ends the reader. MsgTx is left
// open so late broadcasts never panic.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.Closed)
		p.conn.Close()
		slog.Debug("peer closed", "peer", p.Id)
	})
}

// writeLoop drains MsgTx until the peer closes or a write fails. onWrite is
// called after every frame written.
func (p *Peer) writeLoop(ctx context.Context, onWrite func()) error {
	defer slog.Debug("peer writer shutdown", "peer", p.Id)

	for {
		select {
		case frame := <-p.MsgTx:
			if err := p.conn.WriteFrame(frame); err != nil {
				return err
			}
			onWrite()

		case <-p.Closed:
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}
