package notifier

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
)

// FsnotifyWatcher emulates a recursive watch on top of fsnotify by adding
// every directory under root and every directory created later.
type FsnotifyWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewFsnotify(root string) (*FsnotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FsnotifyWatcher{
		root:    root,
		watcher: watcher,
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(root, false); err != nil {
		watcher.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.run()

	slog.Info("notifier start", "backend", BackendFsnotify, "dir", root)
	return w, nil
}

func (w *FsnotifyWatcher) Events() <-chan Event {
	return w.events
}

func (w *FsnotifyWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
		close(w.events)
		slog.Info("notifier stopped", "backend", BackendFsnotify, "dir", w.root)
	})
	return err
}

func (w *FsnotifyWatcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			send(w.events, Event{Err: err})
		}
	}
}

func (w *FsnotifyWatcher) handle(ev fsnotify.Event) {
	path := ev.Name

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			// files may land in the new directory before its watch exists
			if err := w.addRecursive(path, true); err != nil {
				slog.Warn("notifier add watch", "path", path, "error", err)
			}
		}
		send(w.events, Event{Kind: KindCreate, Paths: []string{path}})

	case ev.Has(fsnotify.Write):
		send(w.events, Event{Kind: KindModify, Modify: ModifyData, Paths: []string{path}})

	case ev.Has(fsnotify.Remove):
		w.unwatch(path)
		send(w.events, Event{Kind: KindRemove, Paths: []string{path}})

	case ev.Has(fsnotify.Rename):
		w.unwatch(path)
		send(w.events, renameEvent(path))

	case ev.Has(fsnotify.Chmod):
		send(w.events, Event{Kind: KindModify, Modify: ModifyMetadata, Paths: []string{path}})
	}
}

func (w *FsnotifyWatcher) unwatch(path string) {
	if err := w.watcher.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		slog.Debug("notifier remove watch", "path", path, "error", err)
	}
}

// addRecursive watches dir and all directories below it. With announce set,
// files found on the way are reported as created.
func (w *FsnotifyWatcher) addRecursive(dir string, announce bool) error {
	conf := &fastwalk.Config{Follow: false}
	return fastwalk.Walk(conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}

		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("fsnotify add watch %s: %w", path, err)
			}
			return nil
		}

		if announce && d.Type().IsRegular() {
			send(w.events, Event{Kind: KindCreate, Paths: []string{path}})
		}
		return nil
	})
}
