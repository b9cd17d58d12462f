package notifier

import "sync"

// Channel is an in-memory Notifier fed by Push. It backs tests and embedders
// that receive change notifications from somewhere other than the OS.
type Channel struct {
	events    chan Event
	closeOnce sync.Once
}

func NewChannel(size int) *Channel {
	return &Channel{events: make(chan Event, size)}
}

// Push enqueues ev, blocking while the buffer is full.
func (c *Channel) Push(ev Event) {
	c.events <- ev
}

func (c *Channel) Events() <-chan Event {
	return c.events
}

func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.events)
	})
	return nil
}
