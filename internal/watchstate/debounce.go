package watchstate

import "log/slog"

// MarkAsModified suppresses events for the absolute path until the debounce
// window has elapsed. Called for every path written on behalf of a peer.
func (w *WatchState) MarkAsModified(path string) {
	deadline := w.now().Add(w.window).UnixMilli()

	w.ignoreMu.Lock()
	w.ignoreUntil[path] = deadline
	w.ignoreMu.Unlock()

	slog.Debug("watcher ignoring", "path", path, "window", w.window)
}

// suppressed reports whether path is inside its debounce window. An expired
// entry is cleared.
func (w *WatchState) suppressed(path string) bool {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()

	deadline, ok := w.ignoreUntil[path]
	if !ok {
		return false
	}

	now := w.now().UnixMilli()
	if deadline > now {
		slog.Debug("watcher suppressed", "path", path, "remainingMs", deadline-now)
		return true
	}

	delete(w.ignoreUntil, path)
	slog.Debug("watcher debounce expired", "path", path, "expiredMs", now-deadline)
	return false
}

// PruneExpired removes deadlines that have passed and returns how many were removed.
func (w *WatchState) PruneExpired() int {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()

	now := w.now().UnixMilli()
	pruned := 0
	for path, deadline := range w.ignoreUntil {
		if deadline <= now {
			delete(w.ignoreUntil, path)
			pruned++
		}
	}
	return pruned
}

func (w *WatchState) pendingIgnores() int {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	return len(w.ignoreUntil)
}
