package watchstate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/treesync/internal/hasher"
	"github.com/openmined/treesync/internal/notifier"
	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/utils"
)

const (
	pollMaxWait = 30 * time.Millisecond
	pollMinWait = 10 * time.Millisecond
	pollStep    = 10 * time.Millisecond
	idleBackoff = 10 * time.Millisecond
)

// TryGetEvent waits briefly for the next raw notification that yields a sync
// event. Each rejected notification shortens the wait, 30ms down to a 10ms
// floor. ErrNoEvent is returned when the wait runs out.
func (w *WatchState) TryGetEvent(ctx context.Context) (*syncmsg.Message, error) {
	wait := pollMaxWait
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			return nil, ErrNoEvent

		case ev, ok := <-w.events:
			if !ok {
				return nil, ErrNotifierClosed
			}
			if msg := w.normalize(ev); msg != nil {
				return msg, nil
			}

			wait = max(wait-pollStep, pollMinWait)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
		}
	}
}

// Run turns notifications into events and passes them to emit until ctx is
// done or emit fails. Expired debounce entries are pruned periodically.
func (w *WatchState) Run(ctx context.Context, emit func(*syncmsg.Message) error) error {
	slog.Info("watcher started", "root", w.root)
	defer slog.Info("watcher stopped", "root", w.root)

	prune := time.NewTicker(w.pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-prune.C:
			if n := w.PruneExpired(); n > 0 {
				slog.Debug("watcher pruned ignores", "count", n, "pending", w.pendingIgnores())
			}
		default:
		}

		msg, err := w.TryGetEvent(ctx)
		switch {
		case err == nil:
			if err := emit(msg); err != nil {
				return err
			}
		case errors.Is(err, ErrNoEvent):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleBackoff):
			}
		default:
			return err
		}
	}
}

// normalize applies the acceptance rules to one raw notification. It returns
// nil when the notification should not be sent to peers.
func (w *WatchState) normalize(ev notifier.Event) *syncmsg.Message {
	if ev.Err != nil {
		slog.Warn("watcher notifier error", "error", ev.Err)
		return nil
	}

	path := ev.Path()
	if path == "" {
		return nil
	}
	path = filepath.Clean(path)

	var (
		accepted bool
		found    []string
	)
	switch ev.Kind {
	case notifier.KindCreate:
		accepted, found = w.acceptCreate(path)
	case notifier.KindModify:
		switch ev.Modify {
		case notifier.ModifyData:
			accepted, _ = w.contentChanged(path, false)
		case notifier.ModifyName:
			accepted, found = w.contentChanged(path, true)
		}
	case notifier.KindRemove:
		accepted = w.untrack(path)
	}

	w.announce(path, found)

	if !accepted {
		slog.Debug("watcher rejected", "event", ev.String())
		return nil
	}

	if w.suppressed(path) {
		return nil
	}

	msg := w.compose(ev.Kind, path)
	if msg != nil {
		slog.Info("watcher detected", "type", msg.Type, "path", path)
	}
	return msg
}

// acceptCreate re-indexes the tree and accepts the create if path is now part
// of it. Ignored files and paths outside the root never are. When path is a
// directory, the files newly indexed under it are returned instead: they may
// have been written before the OS watched the directory and would otherwise
// never produce a notification of their own.
func (w *WatchState) acceptCreate(path string) (bool, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.fileSet.Clone()
	if err := w.indexLocked(); err != nil {
		slog.Warn("watcher reindex failed", "error", err)
		return false, nil
	}

	if !w.fileSet.Contains(path) {
		return false, w.newUnderLocked(path, before)
	}

	sent, ok := w.announced[path]
	if !ok {
		return true, nil
	}
	delete(w.announced, path)

	// already sent from the directory scan
	h, err := hasher.File(path)
	if err != nil || h == sent {
		return false, nil
	}
	w.fileHashes[path] = h
	return true, nil
}

// contentChanged reports whether the content of path differs from the last
// hash seen and records the new hash. A rename onto an unindexed path
// re-indexes first, since it may have moved a file or a whole directory
// into the tree.
func (w *WatchState) contentChanged(path string, renamed bool) (bool, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.fileSet.Contains(path) {
		if !renamed {
			return false, nil
		}
		before := w.fileSet.Clone()
		if err := w.indexLocked(); err != nil {
			slog.Warn("watcher reindex failed", "error", err)
			return false, nil
		}
		if w.fileSet.Contains(path) {
			return true, nil
		}
		return false, w.newUnderLocked(path, before)
	}

	h, err := hasher.File(path)
	if err != nil {
		slog.Warn("watcher hash failed, event dropped", "path", path, "error", err)
		return false, nil
	}
	if w.fileHashes[path] == h {
		return false, nil
	}
	w.fileHashes[path] = h
	delete(w.announced, path)
	return true, nil
}

// newUnderLocked lists indexed files below dir that were not in before.
func (w *WatchState) newUnderLocked(dir string, before mapset.Set[string]) []string {
	prefix := dir + string(filepath.Separator)
	i, _ := slices.BinarySearch(w.files, prefix)

	var found []string
	for ; i < len(w.files) && strings.HasPrefix(w.files[i], prefix); i++ {
		if !before.Contains(w.files[i]) {
			found = append(found, w.files[i])
		}
	}
	return found
}

// announce queues a Create for each file found under dir. The hash of the
// contents sent is remembered so the file's own Create, if one follows,
// is not sent twice.
func (w *WatchState) announce(dir string, files []string) {
	for _, path := range files {
		if w.suppressed(path) {
			continue
		}
		msg := w.compose(notifier.KindCreate, path)
		if msg == nil {
			continue
		}
		h := hasher.Sum64(msg.Data.(*syncmsg.FileWrite).Contents)

		w.mu.Lock()
		if w.fileSet.Contains(path) {
			w.fileHashes[path] = h
			w.announced[path] = h
		}
		w.discovered = append(w.discovered, msg)
		w.mu.Unlock()

		slog.Info("watcher detected", "type", msg.Type, "path", path, "dir", dir)
	}
}

func (w *WatchState) nextDiscovered() *syncmsg.Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.discovered) == 0 {
		return nil
	}
	msg := w.discovered[0]
	w.discovered[0] = nil
	w.discovered = w.discovered[1:]
	return msg
}

func (w *WatchState) compose(kind notifier.Kind, path string) *syncmsg.Message {
	rel, err := utils.RelSlash(w.root, path)
	if err != nil {
		slog.Warn("watcher path outside root", "path", path, "root", w.root)
		return nil
	}

	switch kind {
	case notifier.KindCreate, notifier.KindModify:
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("watcher read failed, event dropped", "path", path, "error", err)
			return nil
		}
		if kind == notifier.KindCreate {
			return syncmsg.NewFileCreate(rel, data)
		}
		return syncmsg.NewFileModify(rel, data)

	case notifier.KindRemove:
		return syncmsg.NewFileDelete(rel)
	}
	return nil
}
