package notifier

import (
	"fmt"
	"log/slog"
)

const eventBufferSize = 256

// Notifier delivers raw events for a recursively watched root.
// The Events channel is closed after Close returns.
type Notifier interface {
	Events() <-chan Event
	Close() error
}

type Backend string

const (
	BackendNotify   Backend = "notify"
	BackendFsnotify Backend = "fsnotify"
)

// New starts watching root with the given backend. An empty backend selects
// BackendNotify.
func New(backend Backend, root string) (Notifier, error) {
	switch backend {
	case BackendNotify, "":
		return NewNotify(root)
	case BackendFsnotify:
		return NewFsnotify(root)
	default:
		return nil, fmt.Errorf("unknown notifier backend %q", backend)
	}
}

// send delivers ev without blocking; a full buffer drops the event.
func send(events chan<- Event, ev Event) {
	select {
	case events <- ev:
	default:
		slog.Warn("notifier dropped", "reason", "channel full", "event", ev.String())
	}
}
