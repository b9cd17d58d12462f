package notifier

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/rjeczalik/notify"
)

// NotifyWatcher is the default backend, built on rjeczalik/notify recursive watches.
type NotifyWatcher struct {
	root      string
	raw       chan notify.EventInfo
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewNotify(root string) (*NotifyWatcher, error) {
	w := &NotifyWatcher{
		root:   root,
		raw:    make(chan notify.EventInfo, eventBufferSize),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}

	recursivePath := filepath.Join(root, "...")
	if err := notify.Watch(recursivePath, w.raw, notify.Create, notify.Remove, notify.Write, notify.Rename); err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go w.translate()

	slog.Info("notifier start", "backend", BackendNotify, "dir", root)
	return w, nil
}

func (w *NotifyWatcher) Events() <-chan Event {
	return w.events
}

func (w *NotifyWatcher) Close() error {
	w.closeOnce.Do(func() {
		notify.Stop(w.raw)
		close(w.done)
		w.wg.Wait()
		close(w.events)
		slog.Info("notifier stopped", "backend", BackendNotify, "dir", w.root)
	})
	return nil
}

func (w *NotifyWatcher) translate() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ei := <-w.raw:
			send(w.events, fromNotify(ei))
		}
	}
}

func fromNotify(ei notify.EventInfo) Event {
	path := ei.Path()
	switch ei.Event() {
	case notify.Create:
		return Event{Kind: KindCreate, Paths: []string{path}}
	case notify.Write:
		return Event{Kind: KindModify, Modify: ModifyData, Paths: []string{path}}
	case notify.Remove:
		return Event{Kind: KindRemove, Paths: []string{path}}
	case notify.Rename:
		return renameEvent(path)
	default:
		return Event{Kind: KindOther, Paths: []string{path}}
	}
}
