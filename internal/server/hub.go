package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub tracks connected peers and fans frames out to their send queues.
// A full queue drops the frame for that peer only.
type Hub struct {
	peers   map[string]*Peer
	mu      sync.RWMutex
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		peers: make(map[string]*Peer),
	}
}

func (h *Hub) Register(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.peers[p.Id] = p
	slog.Debug("hub registered", "peer", p.Id, "total", len(h.peers))
}

// Unregister removes and closes the peer. It reports false if the peer was
// already gone.
func (h *Hub) Unregister(p *Peer) bool {
	h.mu.Lock()
	_, ok := h.peers[p.Id]
	delete(h.peers, p.Id)
	total := len(h.peers)
	h.mu.Unlock()

	p.Close()
	if ok {
		slog.Debug("hub removed", "peer", p.Id, "total", total)
	}
	return ok
}

// Broadcast queues frame for every peer and returns how many accepted it.
func (h *Hub) Broadcast(frame []byte) int {
	return h.BroadcastExcept(frame, "")
}

// BroadcastExcept queues frame for every peer other than the one with id except.
func (h *Hub) BroadcastExcept(frame []byte, except string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for id, p := range h.peers {
		if id == except {
			continue
		}
		select {
		case p.MsgTx <- frame:
			sent++
		default:
			h.dropped.Add(1)
			slog.Warn("hub send buffer full, frame dropped", "peer", p.Id)
		}
	}
	return sent
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Shutdown closes every peer. Their handlers unregister them as they exit.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.Close()
	}
	slog.Info("hub shutdown", "peers", len(peers))
}
