// Package server accepts sync clients, sends each a snapshot of the tree,
// then relays file events between the local tree and every connected peer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/openmined/treesync/internal/session"
	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/watchstate"
	"github.com/openmined/treesync/internal/wireproto"
	"golang.org/x/sync/errgroup"
)

const DefaultQueueSize = 256

type Config struct {
	// Addr is the host:port to listen on.
	Addr      string
	QueueSize int
}

// Stats is a point-in-time view of server activity.
type Stats struct {
	PeersConnected int
	FramesIn       uint64
	FramesOut      uint64
	FramesDropped  uint64
}

type Server struct {
	config   *Config
	state    *watchstate.WatchState
	hub      *Hub
	listener net.Listener

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	handlers  sync.WaitGroup
}

func New(config *Config, state *watchstate.WatchState) *Server {
	return &Server{
		config: config,
		state:  state,
		hub:    NewHub(),
	}
}

// Listen binds the listening socket. Start calls it when it has not been
// called yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stats() Stats {
	return Stats{
		PeersConnected: s.hub.Count(),
		FramesIn:       s.framesIn.Load(),
		FramesOut:      s.framesOut.Load(),
		FramesDropped:  s.hub.Dropped(),
	}
}

// Start serves until ctx is done or the local watcher fails.
func (s *Server) Start(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	slog.Info("server start", "addr", s.listener.Addr().String(), "root", s.state.Root())
	defer slog.Info("server stop")

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return s.acceptLoop(egCtx)
	})

	eg.Go(func() error {
		return s.state.Run(egCtx, s.broadcastLocal)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		s.listener.Close()
		s.hub.Shutdown()
		return nil
	})

	err := eg.Wait()
	s.handlers.Wait()

	stats := s.Stats()
	slog.Info("server stats", "framesIn", stats.FramesIn, "framesOut", stats.FramesOut, "framesDropped", stats.FramesDropped)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handleConn(ctx, nc)
		}()
	}
}

// handleConn registers the peer before sending the snapshot, so events
// detected meanwhile wait in its queue and are written after the snapshot.
func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	conn := session.New(nc)
	peer := NewPeer(conn, s.config.QueueSize)

	s.hub.Register(peer)
	defer s.hub.Unregister(peer)

	slog.Info("server peer connected", "peer", peer.Id, "remote", conn.RemoteAddr())
	defer slog.Info("server peer disconnected", "peer", peer.Id)

	snapshot := syncmsg.NewSync(s.state.Snapshot())
	if err := conn.WriteMessage(snapshot); err != nil {
		slog.Warn("server snapshot send failed", "peer", peer.Id, "error", err)
		return
	}
	s.framesOut.Add(1)
	slog.Info("server snapshot sent", "peer", peer.Id, "files", len(snapshot.Data.(*syncmsg.Sync).Files))

	go func() {
		if err := peer.writeLoop(ctx, func() { s.framesOut.Add(1) }); err != nil {
			slog.Warn("server peer write failed", "peer", peer.Id, "error", err)
		}
		peer.Close()
	}()

	if err := conn.ReadLoop(ctx, func(msg *syncmsg.Message) {
		s.handleMessage(peer, msg)
	}); err != nil {
		slog.Warn("server peer read failed", "peer", peer.Id, "error", err)
	}
}

// handleMessage applies an event from a peer and relays it to every other peer.
func (s *Server) handleMessage(from *Peer, msg *syncmsg.Message) {
	s.framesIn.Add(1)
	slog.Info("server received", "peer", from.Id, "msgId", msg.Id, "type", msg.Type, "paths", msg.Paths())

	if err := s.state.HandleMessage(msg, true); err != nil {
		if errors.Is(err, watchstate.ErrUnexpectedSync) {
			slog.Warn("server ignored sync from peer", "peer", from.Id, "msgId", msg.Id)
		} else {
			slog.Warn("server apply failed", "peer", from.Id, "msgId", msg.Id, "error", err)
		}
		return
	}

	frame, err := wireproto.EncodeFrame(msg)
	if err != nil {
		slog.Warn("server relay encode failed", "msgId", msg.Id, "error", err)
		return
	}
	s.hub.BroadcastExcept(frame, from.Id)
}

// broadcastLocal sends an event detected in the server's own tree to all peers.
func (s *Server) broadcastLocal(msg *syncmsg.Message) error {
	frame, err := wireproto.EncodeFrame(msg)
	if err != nil {
		slog.Warn("server encode failed", "msgId", msg.Id, "type", msg.Type, "error", err)
		return nil
	}
	n := s.hub.Broadcast(frame)
	slog.Debug("server broadcast", "msgId", msg.Id, "type", msg.Type, "peers", n)
	return nil
}
